package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	// StatusPending is a gateway order awaiting payment.
	StatusPending Status = "pending"
	// StatusConfirmed is a cash order accepted for fulfilment.
	StatusConfirmed Status = "confirmed"
	// StatusPaid is a gateway order with a verified payment.
	StatusPaid Status = "paid"
	// StatusShipped is an order handed to the carrier.
	StatusShipped Status = "shipped"
	// StatusDelivered is terminal: the order reached the customer.
	StatusDelivered Status = "delivered"
	// StatusCancelled is terminal: the order was cancelled and its
	// reservation released.
	StatusCancelled Status = "cancelled"
	// StatusFailed is terminal: order creation could not reserve stock
	// after the record was persisted. Failed orders are kept for audit
	// but hidden from user listings.
	StatusFailed Status = "failed"
)

// PaymentMethod is the closed set of supported payment methods.
type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentGateway PaymentMethod = "gateway"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentGateway
}

// Sentinel errors shared across the order domain.
var (
	ErrNotFound              = errors.New("order not found")
	ErrUnauthorized          = errors.New("order belongs to another user")
	ErrOutOfStock            = errors.New("out of stock")
	ErrAlreadyCancelled      = errors.New("order already cancelled")
	ErrCannotCancelDelivered = errors.New("delivered order cannot be cancelled")
	ErrVerificationFailed    = errors.New("payment verification failed")
	ErrRefundFailed          = errors.New("refund failed")
	ErrConflict              = errors.New("conditional update conflict")
	ErrInvalidAmount         = errors.New("price and quantity must be positive")
	ErrInvalidStatus         = errors.New("invalid order status")
)

// InvalidPaymentMethodError indicates a create request named an unknown
// payment method.
type InvalidPaymentMethodError struct {
	Method string
}

func (e *InvalidPaymentMethodError) Error() string {
	return "invalid payment method " + e.Method
}

// ShippingAddress is the destination captured at order time.
type ShippingAddress struct {
	Address    string
	City       string
	PostalCode string
	Region     string
	Phone      string
}

// Item is the single ordered line. Name, image and unit price are snapshots
// of the product taken at creation time so later catalog edits do not
// retroactively change historical orders.
type Item struct {
	ProductID string
	Name      string
	Image     string
	UnitPrice int64 // minor currency units
	Quantity  int
}

// PaymentRecord holds the external gateway's view of the charge.
type PaymentRecord struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Status           string
}

// RefundRecord holds the external gateway's view of a refund.
type RefundRecord struct {
	RefundID   string
	Status     string
	RefundedAt *time.Time
}

// Order is the durable order record. It is created only through the
// lifecycle service and mutated only through its defined transitions; it is
// never deleted.
type Order struct {
	ID       string
	UserID   string
	Item     Item
	Shipping ShippingAddress

	PaymentMethod PaymentMethod
	ItemsPrice    int64
	ShippingPrice int64
	TotalPrice    int64

	Status  Status
	Payment PaymentRecord
	Refund  RefundRecord

	IsPaid      bool
	PaidAt      *time.Time
	IsDelivered bool
	DeliveredAt *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
}

// transitions maps each status to the set of statuses reachable from it.
// Delivered, cancelled and failed are terminal.
var transitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusPaid:      {},
		StatusCancelled: {},
		StatusFailed:    {},
	},
	StatusConfirmed: {
		StatusShipped:   {},
		StatusCancelled: {},
		StatusFailed:    {},
	},
	StatusPaid: {
		StatusShipped:   {},
		StatusCancelled: {},
	},
	StatusShipped: {
		StatusDelivered: {},
	},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// KnownStatus reports whether s is one of the defined order statuses.
func KnownStatus(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPaid, StatusShipped,
		StatusDelivered, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}

// Patch describes a partial order update. Nil fields keep their prior value:
// the repository only writes columns whose patch field is set.
type Patch struct {
	Status           *Status
	GatewayOrderID   *string
	GatewayPaymentID *string
	Signature        *string
	PaymentStatus    *string
	IsPaid           *bool
	PaidAt           *time.Time
	RefundID         *string
	RefundStatus     *string
	RefundedAt       *time.Time
	IsDelivered      *bool
	DeliveredAt      *time.Time
	CancelledAt      *time.Time
}

// Empty reports whether the patch sets no fields.
func (p Patch) Empty() bool {
	return p.Status == nil &&
		p.GatewayOrderID == nil &&
		p.GatewayPaymentID == nil &&
		p.Signature == nil &&
		p.PaymentStatus == nil &&
		p.IsPaid == nil &&
		p.PaidAt == nil &&
		p.RefundID == nil &&
		p.RefundStatus == nil &&
		p.RefundedAt == nil &&
		p.IsDelivered == nil &&
		p.DeliveredAt == nil &&
		p.CancelledAt == nil
}

// Repository defines durable storage for orders.
type Repository interface {
	// Create persists a new order, assigning its creation timestamp.
	Create(ctx context.Context, o *Order) error
	// GetByID returns an order regardless of owner.
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetByIDForUser returns an order only when it belongs to userID.
	// A missing order yields ErrNotFound; an existing order owned by a
	// different user yields ErrUnauthorized.
	GetByIDForUser(ctx context.Context, id, userID string) (*Order, error)
	// ConditionalUpdate applies the patch atomically. When expectedStatus
	// is non-nil the write only succeeds while that status still holds;
	// a lost race yields ErrConflict. Returns the updated order.
	ConditionalUpdate(ctx context.Context, id string, expectedStatus *Status, patch Patch) (*Order, error)
	// ListByUser returns the user's orders, newest first, excluding the
	// given statuses.
	ListByUser(ctx context.Context, userID string, excludeStatuses []Status) ([]Order, error)
}
