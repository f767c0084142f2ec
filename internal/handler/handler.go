// Package handler is the thin HTTP adapter over the order lifecycle engine.
// It owns request decoding, identity extraction and error mapping; all
// business rules live in the domain service.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/gomart/order-engine/internal/domain/order"
	"github.com/gomart/order-engine/internal/domain/product"
	"github.com/gomart/order-engine/internal/gateway"
)

// OrderService is the engine surface the HTTP layer depends on.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.Order, error)
	VerifyPayment(ctx context.Context, orderID, userID, gatewayOrderID, gatewayPaymentID, signature string) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID, userID string, req order.UpdateStatusRequest) (*order.Order, error)
	Cancel(ctx context.Context, orderID, userID string) (*order.Order, error)
	GetOrder(ctx context.Context, orderID, userID string) (*order.Order, error)
	ListOrders(ctx context.Context, userID string) ([]order.Order, error)
}

// Handler wires the order endpoints into a chi router.
type Handler struct {
	orders OrderService
}

// NewHandler constructs a Handler around the order service.
func NewHandler(orders OrderService) *Handler {
	return &Handler{orders: orders}
}

// Routes registers the /orders endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Put("/orders", h.updateOrder)
	r.Put("/orders/verify", h.verifyPayment)
	r.Put("/orders/cancel", h.cancelOrder)
}

// errorResponse is the canonical JSON error envelope. Kind is the stable
// machine-readable error name; message is for humans. Provider payloads and
// stack traces never leak through here.
type errorResponse struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(ctx).Debug("write response", zap.Error(err))
	}
}

func writeErrorKind(ctx context.Context, w http.ResponseWriter, status int, kind, message string) {
	writeJSON(ctx, w, status, errorResponse{Code: status, Kind: kind, Message: message})
}

// writeError maps a domain error onto the envelope. Unknown errors become an
// opaque 500 and are logged with their full chain.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var kind string
	var status int

	var ipm *order.InvalidPaymentMethodError
	switch {
	case errors.As(err, &ipm):
		kind, status = "InvalidInput", http.StatusBadRequest
	case errors.Is(err, order.ErrInvalidAmount), errors.Is(err, order.ErrInvalidStatus):
		kind, status = "InvalidInput", http.StatusBadRequest
	case errors.Is(err, order.ErrOutOfStock):
		kind, status = "OutOfStock", http.StatusBadRequest
	case errors.Is(err, order.ErrAlreadyCancelled):
		kind, status = "AlreadyCancelled", http.StatusBadRequest
	case errors.Is(err, order.ErrCannotCancelDelivered):
		kind, status = "CannotCancelDelivered", http.StatusBadRequest
	case errors.Is(err, order.ErrVerificationFailed):
		kind, status = "PaymentVerificationFailed", http.StatusBadRequest
	case errors.Is(err, order.ErrRefundFailed):
		kind, status = "RefundFailed", http.StatusBadRequest
	case errors.Is(err, order.ErrNotFound), errors.Is(err, product.ErrNotFound):
		kind, status = "NotFound", http.StatusNotFound
	case errors.Is(err, order.ErrUnauthorized):
		kind, status = "Unauthorized", http.StatusUnauthorized
	case errors.Is(err, order.ErrConflict):
		kind, status = "Conflict", http.StatusConflict
	case errors.Is(err, gateway.ErrUnavailable):
		kind, status = "GatewayUnavailable", http.StatusBadGateway
	default:
		zctx.From(ctx).Error("request failed", zap.Error(err))
		writeErrorKind(ctx, w, http.StatusInternalServerError, "Internal", "internal server error")
		return
	}

	writeErrorKind(ctx, w, status, kind, kindMessages[kind])
}

// kindMessages are the stable human-readable texts per error kind. Wrapped
// causes (provider payloads, SQL errors) deliberately never reach clients.
var kindMessages = map[string]string{
	"InvalidInput":              "invalid request",
	"OutOfStock":                "not enough stock available",
	"AlreadyCancelled":          "order is already cancelled",
	"CannotCancelDelivered":     "delivered orders cannot be cancelled",
	"PaymentVerificationFailed": "payment verification failed",
	"RefundFailed":              "refund could not be processed",
	"NotFound":                  "resource not found",
	"Unauthorized":              "order belongs to another user",
	"Conflict":                  "order was modified concurrently, retry",
	"GatewayUnavailable":        "payment gateway unavailable",
}
