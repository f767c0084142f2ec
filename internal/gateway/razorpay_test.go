package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *RazorpayClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewRazorpayClient(Config{
		BaseURL:   srv.URL,
		KeyID:     "rzp_test_key",
		KeySecret: "rzp_test_secret",
	})
	require.NoError(t, err)
	return c
}

func TestNewRazorpayClient_RequiresCredentials(t *testing.T) {
	_, err := NewRazorpayClient(Config{KeyID: "id"})
	require.Error(t, err)

	_, err = NewRazorpayClient(Config{KeySecret: "secret"})
	require.Error(t, err)
}

func TestCreateOrder(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc123","entity":"order","status":"created","created_at":1700000000}`))
	})

	o, err := c.CreateOrder(context.Background(), 8000)

	require.NoError(t, err)
	assert.Equal(t, "order_abc123", o.ID)
	assert.Equal(t, "created", o.Status)
	assert.Equal(t, int64(1700000000), o.CreatedAt.Unix())

	assert.Equal(t, float64(8000), gotBody["amount"])
	assert.Equal(t, "INR", gotBody["currency"])
	assert.Equal(t, float64(1), gotBody["payment_capture"])

	receipt, ok := gotBody["receipt"].(string)
	require.True(t, ok)
	assert.Len(t, receipt, 20)
	_, err = hex.DecodeString(receipt)
	assert.NoError(t, err)
}

func TestCreateOrder_FreshReceiptPerCall(t *testing.T) {
	var receipts []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		receipts = append(receipts, body["receipt"].(string))
		_, _ = w.Write([]byte(`{"id":"order_1","status":"created"}`))
	})

	_, err := c.CreateOrder(context.Background(), 100)
	require.NoError(t, err)
	_, err = c.CreateOrder(context.Background(), 100)
	require.NoError(t, err)

	require.Len(t, receipts, 2)
	assert.NotEqual(t, receipts[0], receipts[1])
}

func TestCreateOrder_ProviderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"description":"auth failed"}}`, http.StatusUnauthorized)
	})

	_, err := c.CreateOrder(context.Background(), 100)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCreateOrder_MissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"created"}`))
	})

	_, err := c.CreateOrder(context.Background(), 100)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCreateOrder_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := NewRazorpayClient(Config{
		BaseURL:   srv.URL,
		KeyID:     "k",
		KeySecret: "s",
	})
	require.NoError(t, err)

	_, err = c.CreateOrder(context.Background(), 100)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestVerifySignature(t *testing.T) {
	c, err := NewRazorpayClient(Config{KeyID: "k", KeySecret: "topsecret"})
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write([]byte("order_abc|pay_xyz"))
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, c.VerifySignature("order_abc", "pay_xyz", valid))
	assert.False(t, c.VerifySignature("order_abc", "pay_xyz", valid[:len(valid)-1]+"0"))
	assert.False(t, c.VerifySignature("order_other", "pay_xyz", valid))
	assert.False(t, c.VerifySignature("order_abc", "pay_xyz", ""))
}

func TestFetchPayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/payments/pay_xyz", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"pay_xyz","entity":"payment","status":"captured","amount":8000}`))
	})

	status, err := c.FetchPayment(context.Background(), "pay_xyz")

	require.NoError(t, err)
	assert.Equal(t, "captured", status)
}

func TestFetchPayment_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"description":"no such payment"}}`, http.StatusNotFound)
	})

	_, err := c.FetchPayment(context.Background(), "pay_missing")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRefund_FullOmitsAmount(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments/pay_xyz/refund", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		_, _ = w.Write([]byte(`{"id":"rfnd_1","entity":"refund","status":"processed"}`))
	})

	ref, err := c.Refund(context.Background(), "pay_xyz", 0)

	require.NoError(t, err)
	assert.Equal(t, "rfnd_1", ref.ID)
	assert.Equal(t, "processed", ref.Status)
	assert.NotContains(t, gotBody, "amount")
}

func TestRefund_PartialSendsAmount(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"id":"rfnd_2","status":"processed"}`))
	})

	_, err := c.Refund(context.Background(), "pay_xyz", 500)

	require.NoError(t, err)
	assert.Equal(t, float64(500), gotBody["amount"])
}

func TestRefund_ProviderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"description":"already refunded"}}`, http.StatusBadRequest)
	})

	_, err := c.Refund(context.Background(), "pay_xyz", 0)
	require.ErrorIs(t, err, ErrUnavailable)
}
