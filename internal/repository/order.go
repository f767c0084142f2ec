package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gomart/order-engine/internal/domain/order"
)

const orderColumns = `id, user_id, product_id, product_name, product_image, unit_price, quantity,
	ship_address, ship_city, ship_postal_code, ship_region, ship_phone,
	payment_method, items_price, shipping_price, total_price, status,
	gateway_order_id, gateway_payment_id, gateway_signature, payment_status, is_paid, paid_at,
	refund_id, refund_status, refunded_at,
	is_delivered, delivered_at, cancelled_at, created_at`

const (
	createOrderSQL = `INSERT INTO orders (
		id, user_id, product_id, product_name, product_image, unit_price, quantity,
		ship_address, ship_city, ship_postal_code, ship_region, ship_phone,
		payment_method, items_price, shipping_price, total_price, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	RETURNING created_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE user_id = $1 AND status != ALL($2)
	ORDER BY created_at DESC`
)

// patchColumns maps each order.Patch field to its column. Only set fields
// end up in the UPDATE statement, which is what gives the patch its
// "missing field keeps prior value" semantics.
func patchColumns(p order.Patch) (cols []string, args []any) {
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.GatewayOrderID != nil {
		add("gateway_order_id", *p.GatewayOrderID)
	}
	if p.GatewayPaymentID != nil {
		add("gateway_payment_id", *p.GatewayPaymentID)
	}
	if p.Signature != nil {
		add("gateway_signature", *p.Signature)
	}
	if p.PaymentStatus != nil {
		add("payment_status", *p.PaymentStatus)
	}
	if p.IsPaid != nil {
		add("is_paid", *p.IsPaid)
	}
	if p.PaidAt != nil {
		add("paid_at", *p.PaidAt)
	}
	if p.RefundID != nil {
		add("refund_id", *p.RefundID)
	}
	if p.RefundStatus != nil {
		add("refund_status", *p.RefundStatus)
	}
	if p.RefundedAt != nil {
		add("refunded_at", *p.RefundedAt)
	}
	if p.IsDelivered != nil {
		add("is_delivered", *p.IsDelivered)
	}
	if p.DeliveredAt != nil {
		add("delivered_at", *p.DeliveredAt)
	}
	if p.CancelledAt != nil {
		add("cancelled_at", *p.CancelledAt)
	}
	return cols, args
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order, assigning its id and creation timestamp.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}

	row := r.pool.QueryRow(ctx, createOrderSQL,
		o.ID, o.UserID,
		o.Item.ProductID, o.Item.Name, o.Item.Image, o.Item.UnitPrice, o.Item.Quantity,
		o.Shipping.Address, o.Shipping.City, o.Shipping.PostalCode, o.Shipping.Region, o.Shipping.Phone,
		o.PaymentMethod, o.ItemsPrice, o.ShippingPrice, o.TotalPrice, o.Status,
	)
	if err := row.Scan(&o.CreatedAt); err != nil {
		return errors.Wrapf(err, "creating order %q", o.ID)
	}
	return nil
}

// GetByID returns an order regardless of owner.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting order %q", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting order %q", id)
	}
	return &o, nil
}

// GetByIDForUser returns an order only when it belongs to userID. The
// missing-versus-foreign distinction lets callers answer 404 and 401
// accurately.
func (r *OrderRepository) GetByIDForUser(ctx context.Context, id, userID string) (*order.Order, error) {
	o, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, order.ErrUnauthorized
	}
	return o, nil
}

// ConditionalUpdate applies the patch in a single UPDATE statement. When
// expectedStatus is given the WHERE clause pins the current status, so a
// concurrent transition makes this write affect zero rows instead of
// clobbering it.
func (r *OrderRepository) ConditionalUpdate(ctx context.Context, id string, expectedStatus *order.Status, patch order.Patch) (*order.Order, error) {
	cols, args := patchColumns(patch)
	if len(cols) == 0 {
		return r.GetByID(ctx, id)
	}

	var b strings.Builder
	b.WriteString("UPDATE orders SET ")
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = $%d", col, i+1)
	}
	fmt.Fprintf(&b, " WHERE id = $%d", len(cols)+1)
	args = append(args, id)
	if expectedStatus != nil {
		fmt.Fprintf(&b, " AND status = $%d", len(cols)+2)
		args = append(args, *expectedStatus)
	}
	b.WriteString(" RETURNING " + orderColumns)

	rows, err := r.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "updating order %q", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Zero rows means either the order is gone or the expected
			// status no longer holds; probe once to tell them apart.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, order.ErrConflict
		}
		return nil, errors.Wrapf(err, "updating order %q", id)
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first, excluding the given
// statuses.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, excludeStatuses []order.Status) ([]order.Order, error) {
	excluded := make([]string, len(excludeStatuses))
	for i, s := range excludeStatuses {
		excluded[i] = string(s)
	}

	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID, excluded)
	if err != nil {
		return nil, errors.Wrapf(err, "listing orders for user %q", userID)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		paidAt      *time.Time
		refundedAt  *time.Time
		deliveredAt *time.Time
		cancelledAt *time.Time
	)
	err := row.Scan(
		&o.ID, &o.UserID,
		&o.Item.ProductID, &o.Item.Name, &o.Item.Image, &o.Item.UnitPrice, &o.Item.Quantity,
		&o.Shipping.Address, &o.Shipping.City, &o.Shipping.PostalCode, &o.Shipping.Region, &o.Shipping.Phone,
		&o.PaymentMethod, &o.ItemsPrice, &o.ShippingPrice, &o.TotalPrice, &o.Status,
		&o.Payment.GatewayOrderID, &o.Payment.GatewayPaymentID, &o.Payment.Signature, &o.Payment.Status,
		&o.IsPaid, &paidAt,
		&o.Refund.RefundID, &o.Refund.Status, &refundedAt,
		&o.IsDelivered, &deliveredAt, &cancelledAt, &o.CreatedAt,
	)
	o.PaidAt = paidAt
	o.Refund.RefundedAt = refundedAt
	o.DeliveredAt = deliveredAt
	o.CancelledAt = cancelledAt
	return o, err
}
