package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gomart/order-engine/internal/domain/auth"
	"github.com/gomart/order-engine/internal/domain/order"
)

const maxBodySize = 64 * 1024

type shippingAddressJSON struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Region     string `json:"region"`
	Phone      string `json:"phone"`
}

type createOrderRequest struct {
	ProductID       string              `json:"productId"`
	Qty             int                 `json:"qty"`
	ShippingAddress shippingAddressJSON `json:"shippingAddress"`
	PaymentMethod   string              `json:"paymentMethod"`
}

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

type updateOrderRequest struct {
	Status      *string    `json:"status"`
	IsDelivered *bool      `json:"isDelivered"`
	DeliveredAt *time.Time `json:"deliveredAt"`
}

type orderItemJSON struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	UnitPrice int64  `json:"unitPrice"`
	Qty       int    `json:"qty"`
}

type paymentJSON struct {
	GatewayOrderID   string `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string `json:"gatewayPaymentId,omitempty"`
	Status           string `json:"status,omitempty"`
}

type refundJSON struct {
	RefundID   string     `json:"refundId,omitempty"`
	Status     string     `json:"status,omitempty"`
	RefundedAt *time.Time `json:"refundedAt,omitempty"`
}

type orderJSON struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	Item            orderItemJSON       `json:"item"`
	ShippingAddress shippingAddressJSON `json:"shippingAddress"`
	PaymentMethod   string              `json:"paymentMethod"`
	ItemsPrice      int64               `json:"itemsPrice"`
	ShippingPrice   int64               `json:"shippingPrice"`
	TotalPrice      int64               `json:"totalPrice"`
	Status          string              `json:"status"`
	Payment         paymentJSON         `json:"payment"`
	Refund          refundJSON          `json:"refund"`
	IsPaid          bool                `json:"isPaid"`
	PaidAt          *time.Time          `json:"paidAt,omitempty"`
	IsDelivered     bool                `json:"isDelivered"`
	DeliveredAt     *time.Time          `json:"deliveredAt,omitempty"`
	CancelledAt     *time.Time          `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
}

func toOrderJSON(o *order.Order) orderJSON {
	return orderJSON{
		ID:     o.ID,
		UserID: o.UserID,
		Item: orderItemJSON{
			ProductID: o.Item.ProductID,
			Name:      o.Item.Name,
			Image:     o.Item.Image,
			UnitPrice: o.Item.UnitPrice,
			Qty:       o.Item.Quantity,
		},
		ShippingAddress: shippingAddressJSON{
			Address:    o.Shipping.Address,
			City:       o.Shipping.City,
			PostalCode: o.Shipping.PostalCode,
			Region:     o.Shipping.Region,
			Phone:      o.Shipping.Phone,
		},
		PaymentMethod: string(o.PaymentMethod),
		ItemsPrice:    o.ItemsPrice,
		ShippingPrice: o.ShippingPrice,
		TotalPrice:    o.TotalPrice,
		Status:        string(o.Status),
		Payment: paymentJSON{
			GatewayOrderID:   o.Payment.GatewayOrderID,
			GatewayPaymentID: o.Payment.GatewayPaymentID,
			Status:           o.Payment.Status,
		},
		Refund: refundJSON{
			RefundID:   o.Refund.RefundID,
			Status:     o.Refund.Status,
			RefundedAt: o.Refund.RefundedAt,
		},
		IsPaid:      o.IsPaid,
		PaidAt:      o.PaidAt,
		IsDelivered: o.IsDelivered,
		DeliveredAt: o.DeliveredAt,
		CancelledAt: o.CancelledAt,
		CreatedAt:   o.CreatedAt,
	}
}

// decodeBody decodes a bounded JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ctx := r.Context()
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil && err != io.EOF {
		writeErrorKind(ctx, w, http.StatusBadRequest, "InvalidInput", "malformed JSON body")
		return false
	}
	return true
}

// identity pulls the authenticated caller out of the context. The auth
// middleware guarantees it is present on these routes.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeErrorKind(r.Context(), w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return auth.Identity{}, false
	}
	return id, true
}

// orderIDQuery reads the orderId query parameter used by the PUT endpoints.
func orderIDQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("orderId")
	if id == "" {
		writeErrorKind(r.Context(), w, http.StatusBadRequest, "InvalidInput", "orderId query parameter is required")
		return "", false
	}
	return id, true
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID == "" || req.Qty <= 0 {
		writeErrorKind(ctx, w, http.StatusBadRequest, "InvalidInput", "productId and a positive qty are required")
		return
	}

	o, err := h.orders.CreateOrder(ctx, order.CreateOrderRequest{
		UserID:    id.UserID,
		ProductID: req.ProductID,
		Quantity:  req.Qty,
		Shipping: order.ShippingAddress{
			Address:    req.ShippingAddress.Address,
			City:       req.ShippingAddress.City,
			PostalCode: req.ShippingAddress.PostalCode,
			Region:     req.ShippingAddress.Region,
			Phone:      req.ShippingAddress.Phone,
		},
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusCreated, toOrderJSON(o))
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := identity(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDQuery(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		writeErrorKind(ctx, w, http.StatusBadRequest, "InvalidInput", "gatewayOrderId, gatewayPaymentId and signature are required")
		return
	}

	o, err := h.orders.VerifyPayment(ctx, orderID, id.UserID, req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, toOrderJSON(o))
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := identity(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDQuery(w, r)
	if !ok {
		return
	}

	var req updateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var status *order.Status
	if req.Status != nil {
		s := order.Status(*req.Status)
		status = &s
	}

	o, err := h.orders.UpdateStatus(ctx, orderID, id.UserID, order.UpdateStatusRequest{
		Status:      status,
		IsDelivered: req.IsDelivered,
		DeliveredAt: req.DeliveredAt,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, toOrderJSON(o))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := identity(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDQuery(w, r)
	if !ok {
		return
	}

	o, err := h.orders.Cancel(ctx, orderID, id.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, toOrderJSON(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := identity(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"), id.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, toOrderJSON(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := identity(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(ctx, id.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	out := make([]orderJSON, len(orders))
	for i := range orders {
		out[i] = toOrderJSON(&orders[i])
	}
	writeJSON(ctx, w, http.StatusOK, out)
}
