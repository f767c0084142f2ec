package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/gomart/order-engine/internal/domain/product"
	"github.com/gomart/order-engine/internal/gateway"
	"github.com/gomart/order-engine/internal/notify"
)

// EventSink receives lifecycle events after each successful durable
// transition. Delivery is fire-and-forget; implementations must never block
// the caller on the notification collaborator.
type EventSink interface {
	Dispatch(ctx context.Context, ev notify.Event)
}

// Service is the order lifecycle engine. It is the only component that
// coordinates the catalog, inventory, gateway and repository; everything it
// depends on is a narrow interface so it can be tested without a database or
// network. The service keeps no cross-request state: all coordination races
// are resolved by the storage layer's conditional updates.
type Service struct {
	orders    Repository
	catalog   product.Catalog
	inventory product.Inventory
	gateway   gateway.Client
	events    EventSink
	pricing   PricingPolicy

	now func() time.Time
}

// NewService creates the lifecycle engine with its collaborators.
func NewService(
	orders Repository,
	catalog product.Catalog,
	inventory product.Inventory,
	gw gateway.Client,
	events EventSink,
	pricing PricingPolicy,
) *Service {
	return &Service{
		orders:    orders,
		catalog:   catalog,
		inventory: inventory,
		gateway:   gw,
		events:    events,
		pricing:   pricing,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrderRequest holds the input for creating an order.
type CreateOrderRequest struct {
	UserID        string
	ProductID     string
	Quantity      int
	Shipping      ShippingAddress
	PaymentMethod PaymentMethod
}

// CreateOrder validates the request, snapshots the product, computes prices,
// persists the order, registers a provider-side order for gateway payments,
// and reserves stock.
//
// The step order (price, persist, gateway order, reserve) is deliberate: a
// gateway failure can never leave stock decremented. The one compensable
// case is a reservation that fails after the order row exists; that order is
// rolled forward to the terminal failed status within this call, never left
// pending without stock.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if !req.PaymentMethod.Valid() {
		return nil, &InvalidPaymentMethodError{Method: string(req.PaymentMethod)}
	}

	p, err := s.catalog.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", req.ProductID)
	}

	// Fast-path stock check. The authoritative check is the conditional
	// update inside Reserve; this only rejects obviously doomed requests
	// before writing anything.
	if p.CountInStock < req.Quantity {
		return nil, ErrOutOfStock
	}

	quote, err := Price(s.pricing, p.Price, req.Quantity)
	if err != nil {
		return nil, err
	}

	status := StatusPending
	if req.PaymentMethod == PaymentCash {
		status = StatusConfirmed
	}

	o := &Order{
		UserID: req.UserID,
		Item: Item{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			UnitPrice: p.Price,
			Quantity:  req.Quantity,
		},
		Shipping:      req.Shipping,
		PaymentMethod: req.PaymentMethod,
		ItemsPrice:    quote.ItemsPrice,
		ShippingPrice: quote.ShippingPrice,
		TotalPrice:    quote.TotalPrice,
		Status:        status,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "persist order")
	}

	if req.PaymentMethod == PaymentGateway {
		gw, err := s.gateway.CreateOrder(ctx, quote.TotalPrice)
		if err != nil {
			// Nothing to compensate: stock is untouched and the pending
			// order row is the only durable effect so far.
			return nil, errors.Wrap(err, "create gateway order")
		}

		o, err = s.updateWithRetry(ctx, o.ID, nil, Patch{
			GatewayOrderID: &gw.ID,
			PaymentStatus:  &gw.Status,
		})
		if err != nil {
			return nil, errors.Wrap(err, "attach gateway order")
		}
	}

	if err := s.inventory.Reserve(ctx, p.ID, req.Quantity); err != nil {
		s.failOrder(ctx, o)
		if errors.Is(err, product.ErrInsufficientStock) {
			return nil, ErrOutOfStock
		}
		return nil, errors.Wrapf(err, "reserve stock for %q", p.ID)
	}

	s.events.Dispatch(ctx, notify.Event{
		Type:    notify.EventCreated,
		OrderID: o.ID,
		UserID:  o.UserID,
		At:      s.now(),
	})
	return o, nil
}

// failOrder rolls a freshly created order forward to the failed terminal
// status after its reservation could not be made. Best effort: the order is
// already unusable either way, so a failed compensation is only logged.
func (s *Service) failOrder(ctx context.Context, o *Order) {
	failed := StatusFailed
	expected := o.Status
	if _, err := s.updateWithRetry(ctx, o.ID, &expected, Patch{Status: &failed}); err != nil {
		zctx.From(ctx).Error("mark order failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

// VerifyPayment checks the gateway signature for a pending order and, on
// success, transitions it to paid. Verification of an already-paid order is
// a no-op returning the paid order, so client retries are safe.
func (s *Service) VerifyPayment(ctx context.Context, orderID, userID, gatewayOrderID, gatewayPaymentID, signature string) (*Order, error) {
	o, err := s.orders.GetByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	if !s.gateway.VerifySignature(gatewayOrderID, gatewayPaymentID, signature) {
		return nil, ErrVerificationFailed
	}

	if o.IsPaid || o.Status == StatusPaid {
		return o, nil
	}
	if o.Status != StatusPending {
		return nil, ErrConflict
	}

	providerStatus, err := s.gateway.FetchPayment(ctx, gatewayPaymentID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch payment")
	}

	paid := StatusPaid
	pending := StatusPending
	isPaid := true
	paidAt := s.now()
	updated, err := s.orders.ConditionalUpdate(ctx, o.ID, &pending, Patch{
		Status:           &paid,
		GatewayPaymentID: &gatewayPaymentID,
		Signature:        &signature,
		PaymentStatus:    &providerStatus,
		IsPaid:           &isPaid,
		PaidAt:           &paidAt,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost the race. If a concurrent verification won, this call
			// still succeeded from the client's point of view.
			current, getErr := s.orders.GetByIDForUser(ctx, orderID, userID)
			if getErr == nil && current.IsPaid {
				return current, nil
			}
			return nil, ErrConflict
		}
		return nil, errors.Wrap(err, "mark order paid")
	}

	s.events.Dispatch(ctx, notify.Event{
		Type:    notify.EventPaid,
		OrderID: updated.ID,
		UserID:  updated.UserID,
		At:      paidAt,
	})
	return updated, nil
}

// UpdateStatusRequest is a partial order update. Nil fields keep their prior
// value; there are no truthiness rules.
type UpdateStatusRequest struct {
	Status      *Status
	IsDelivered *bool
	DeliveredAt *time.Time
}

// UpdateStatus merges the provided fields over the stored order. Status
// changes must follow the state machine; paid and cancelled are reserved for
// VerifyPayment and Cancel, which carry the money and stock side effects.
func (s *Service) UpdateStatus(ctx context.Context, orderID, userID string, req UpdateStatusRequest) (*Order, error) {
	o, err := s.orders.GetByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	patch := Patch{
		IsDelivered: req.IsDelivered,
		DeliveredAt: req.DeliveredAt,
	}

	if req.Status != nil {
		next := *req.Status
		if !KnownStatus(next) || next == StatusPaid || next == StatusCancelled || next == StatusFailed {
			return nil, ErrInvalidStatus
		}
		if !CanTransition(o.Status, next) {
			return nil, ErrInvalidStatus
		}
		patch.Status = &next

		if next == StatusDelivered && req.IsDelivered == nil {
			delivered := true
			patch.IsDelivered = &delivered
		}
	}

	if patch.IsDelivered != nil && *patch.IsDelivered && patch.DeliveredAt == nil {
		at := s.now()
		patch.DeliveredAt = &at
	}

	if patch.Empty() {
		return o, nil
	}

	expected := o.Status
	updated, err := s.updateWithRetry(ctx, o.ID, &expected, patch)
	if err != nil {
		return nil, errors.Wrap(err, "update order")
	}
	return updated, nil
}

// Cancel cancels an order, refunding a captured gateway payment first and
// releasing the stock reservation after. The refund-then-release order is
// fixed: stock must not become resellable while the customer's money has not
// actually been returned.
func (s *Service) Cancel(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.orders.GetByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	switch {
	case o.Status == StatusCancelled:
		return nil, ErrAlreadyCancelled
	case o.IsDelivered || o.Status == StatusDelivered:
		return nil, ErrCannotCancelDelivered
	case o.Status != StatusPending && o.Status != StatusConfirmed && o.Status != StatusPaid:
		return nil, ErrInvalidStatus
	}

	if o.IsPaid && o.PaymentMethod == PaymentGateway {
		refund, err := s.gateway.Refund(ctx, o.Payment.GatewayPaymentID, 0)
		if err != nil {
			// Stock stays reserved: releasing it would make units
			// resellable while the customer is still charged.
			return nil, errors.Wrapf(ErrRefundFailed, "payment %s: %s", o.Payment.GatewayPaymentID, err)
		}

		// Attach the refund record immediately so it survives even if the
		// final status write loses a race; eligibility was already checked.
		refundedAt := s.now()
		o, err = s.updateWithRetry(ctx, o.ID, nil, Patch{
			RefundID:     &refund.ID,
			RefundStatus: &refund.Status,
			RefundedAt:   &refundedAt,
		})
		if err != nil {
			return nil, errors.Wrap(err, "attach refund record")
		}
	}

	if err := s.inventory.Release(ctx, o.Item.ProductID, o.Item.Quantity); err != nil {
		// Best-effort compensation: an unknown product means the catalog
		// row is gone and there is nothing to release into.
		zctx.From(ctx).Warn("release stock",
			zap.String("order_id", o.ID),
			zap.String("product_id", o.Item.ProductID),
			zap.Error(err),
		)
	}

	cancelled := StatusCancelled
	cancelledAt := s.now()
	expected := o.Status
	updated, err := s.updateWithRetry(ctx, o.ID, &expected, Patch{
		Status:      &cancelled,
		CancelledAt: &cancelledAt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "mark order cancelled")
	}

	s.events.Dispatch(ctx, notify.Event{
		Type:    notify.EventCancelled,
		OrderID: updated.ID,
		UserID:  updated.UserID,
		At:      cancelledAt,
	})
	return updated, nil
}

// GetOrder returns a single order scoped to its owner.
func (s *Service) GetOrder(ctx context.Context, orderID, userID string) (*Order, error) {
	return s.orders.GetByIDForUser(ctx, orderID, userID)
}

// ListOrders returns the user's orders, hiding synthetic failed ones.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID, []Status{StatusFailed})
}

// updateWithRetry applies a conditional update, retrying exactly once on a
// conflict. Retrying a conditional update is idempotent by construction, so
// a single retry absorbs transient races without masking real contention.
func (s *Service) updateWithRetry(ctx context.Context, id string, expected *Status, patch Patch) (*Order, error) {
	o, err := s.orders.ConditionalUpdate(ctx, id, expected, patch)
	if !errors.Is(err, ErrConflict) {
		return o, err
	}
	return s.orders.ConditionalUpdate(ctx, id, expected, patch)
}
