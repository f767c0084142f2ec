// Package gateway wraps the external payment provider's order, payment and
// refund lifecycle behind a narrow interface so the order engine can be
// tested against a fake without network access.
package gateway

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrUnavailable wraps every transport or provider failure. The gateway
// never retries; idempotent receipts make caller-side retries safe instead.
var ErrUnavailable = errors.New("payment gateway unavailable")

// GatewayOrder is the provider's representation of a pending charge,
// distinct from the store's own order record.
type GatewayOrder struct {
	ID        string
	Status    string
	CreatedAt time.Time
}

// Refund is the provider's representation of a completed refund request.
type Refund struct {
	ID     string
	Status string
}

// Client is the stable interface the order engine depends on. Each method
// maps to exactly one external call, except VerifySignature which is a local
// HMAC computation.
type Client interface {
	// CreateOrder registers a pending charge for amount minor currency
	// units and returns the provider-side order. Each call attaches a
	// fresh random receipt token so client retries cannot double-charge.
	CreateOrder(ctx context.Context, amount int64) (GatewayOrder, error)
	// VerifySignature recomputes the provider's HMAC over
	// "orderID|paymentID" and compares it to signature in constant time.
	// It reports false on mismatch and never fails.
	VerifySignature(orderID, paymentID, signature string) bool
	// FetchPayment returns the provider's status string for a payment.
	FetchPayment(ctx context.Context, paymentID string) (string, error)
	// Refund returns amount minor units of the payment to the customer.
	// A zero amount requests a full refund of the original charge.
	Refund(ctx context.Context, paymentID string, amount int64) (Refund, error)
}
