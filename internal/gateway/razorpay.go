package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// DefaultTimeout bounds every provider call. It must stay shorter than the
// server's client-facing write timeout so a stuck provider cannot hold a
// request open past its deadline.
const DefaultTimeout = 10 * time.Second

const defaultBaseURL = "https://api.razorpay.com/v1"

// Config configures the Razorpay-compatible client.
type Config struct {
	// BaseURL of the provider API. Defaults to the Razorpay production URL;
	// tests point it at a local httptest server.
	BaseURL string
	// KeyID and KeySecret authenticate requests via HTTP basic auth. The
	// secret also keys the payment signature HMAC.
	KeyID     string
	KeySecret string
	// Timeout bounds each call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// RazorpayClient implements Client against a Razorpay-compatible REST API.
type RazorpayClient struct {
	baseURL string
	keyID   string
	secret  []byte
	http    *http.Client
}

var _ Client = (*RazorpayClient)(nil)

// NewRazorpayClient creates a client from the given configuration.
func NewRazorpayClient(cfg Config) (*RazorpayClient, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, errors.New("gateway key id and secret are required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &RazorpayClient{
		baseURL: baseURL,
		keyID:   cfg.KeyID,
		secret:  []byte(cfg.KeySecret),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// CreateOrder registers a pending charge with the provider. The amount is
// already in the provider's minor-unit convention (paise); a fresh random
// receipt token makes retried calls idempotent on the provider side.
func (c *RazorpayClient) CreateOrder(ctx context.Context, amount int64) (GatewayOrder, error) {
	receipt, err := newReceipt()
	if err != nil {
		return GatewayOrder{}, errors.Wrap(err, "generate receipt")
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("amount")
	e.Int64(amount)
	e.FieldStart("currency")
	e.Str("INR")
	e.FieldStart("receipt")
	e.Str(receipt)
	e.FieldStart("payment_capture")
	e.Int(1)
	e.ObjEnd()

	body, err := c.do(ctx, http.MethodPost, "/orders", e.Bytes())
	if err != nil {
		return GatewayOrder{}, err
	}

	var (
		o       GatewayOrder
		created int64
	)
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			o.ID = v
			return err
		case "status":
			v, err := d.Str()
			o.Status = v
			return err
		case "created_at":
			v, err := d.Int64()
			created = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return GatewayOrder{}, errors.Wrap(ErrUnavailable, "decode order response")
	}
	if o.ID == "" {
		return GatewayOrder{}, errors.Wrap(ErrUnavailable, "order response missing id")
	}

	if created > 0 {
		o.CreatedAt = time.Unix(created, 0).UTC()
	} else {
		o.CreatedAt = time.Now().UTC()
	}
	return o, nil
}

// VerifySignature recomputes HMAC-SHA256(orderID|paymentID) with the key
// secret and compares it to the provided signature in constant time.
func (c *RazorpayClient) VerifySignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// FetchPayment returns the provider's status for the given payment.
func (c *RazorpayClient) FetchPayment(ctx context.Context, paymentID string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil)
	if err != nil {
		return "", err
	}

	var status string
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		v, err := d.Str()
		status = v
		return err
	}); err != nil {
		return "", errors.Wrap(ErrUnavailable, "decode payment response")
	}
	return status, nil
}

// Refund returns amount minor units of the payment to the customer. A zero
// amount omits the field, which the provider treats as a full refund.
func (c *RazorpayClient) Refund(ctx context.Context, paymentID string, amount int64) (Refund, error) {
	var e jx.Encoder
	e.ObjStart()
	if amount > 0 {
		e.FieldStart("amount")
		e.Int64(amount)
	}
	e.ObjEnd()

	body, err := c.do(ctx, http.MethodPost, "/payments/"+paymentID+"/refund", e.Bytes())
	if err != nil {
		return Refund{}, err
	}

	var r Refund
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			r.ID = v
			return err
		case "status":
			v, err := d.Str()
			r.Status = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return Refund{}, errors.Wrap(ErrUnavailable, "decode refund response")
	}
	if r.ID == "" {
		return Refund{}, errors.Wrap(ErrUnavailable, "refund response missing id")
	}
	return r, nil
}

// do performs one authenticated provider call. Any transport failure or
// non-2xx response wraps ErrUnavailable; the caller decides what, if
// anything, to compensate.
func (c *RazorpayClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.SetBasicAuth(c.keyID, string(c.secret))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s %s: %s", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s %s: read body", method, path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrapf(ErrUnavailable, "%s %s: status %d", method, path, resp.StatusCode)
	}
	return payload, nil
}

// newReceipt returns a 10-byte random token in hex, matching the provider's
// receipt length limits.
func newReceipt() (string, error) {
	var b [10]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
