// Package notify delivers order lifecycle events to the notification
// collaborator. Delivery is fire-and-forget: a failed notification is logged
// and never rolls back the order transition that produced it.
package notify

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// EventType enumerates the lifecycle transitions worth announcing.
type EventType string

const (
	EventCreated   EventType = "created"
	EventPaid      EventType = "paid"
	EventCancelled EventType = "cancelled"
)

// Event describes one durable order transition.
type Event struct {
	Type    EventType
	OrderID string
	UserID  string
	At      time.Time
}

// Notifier delivers a single event. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// LogNotifier writes events to the log only. It is the fallback when no
// webhook endpoint is configured.
type LogNotifier struct{}

// Notify logs the event at info level.
func (LogNotifier) Notify(ctx context.Context, ev Event) error {
	zctx.From(ctx).Info("order event",
		zap.String("type", string(ev.Type)),
		zap.String("order_id", ev.OrderID),
		zap.String("user_id", ev.UserID),
	)
	return nil
}

// WebhookNotifier POSTs events as JSON to a fixed endpoint, typically the
// email service's intake URL.
type WebhookNotifier struct {
	url  string
	http *http.Client
}

// NewWebhookNotifier creates a notifier for the given endpoint. A zero
// timeout defaults to 5s.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// Notify delivers the event. Non-2xx responses are errors so the dispatcher
// can log them.
func (n *WebhookNotifier) Notify(ctx context.Context, ev Event) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("type")
	e.Str(string(ev.Type))
	e.FieldStart("orderId")
	e.Str(ev.OrderID)
	e.FieldStart("userId")
	e.Str(ev.UserID)
	e.FieldStart("at")
	e.Str(ev.At.UTC().Format(time.RFC3339))
	e.ObjEnd()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(e.Bytes()))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "post event")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("post event: status %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher fans events out to a Notifier on background goroutines so the
// request path never blocks on, or fails with, the notification collaborator.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher wraps the notifier. perEventTimeout bounds each delivery;
// zero defaults to 5s.
func NewDispatcher(notifier Notifier, perEventTimeout time.Duration) *Dispatcher {
	if perEventTimeout <= 0 {
		perEventTimeout = 5 * time.Second
	}
	return &Dispatcher{notifier: notifier, timeout: perEventTimeout}
}

// Dispatch delivers the event asynchronously. The passed context supplies
// the logger; delivery uses a detached context so an already-finished
// request cannot cancel it.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	lg := zctx.From(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		deliverCtx, cancel := context.WithTimeout(zctx.Base(context.Background(), lg), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(deliverCtx, ev); err != nil {
			lg.Warn("notification delivery failed",
				zap.String("type", string(ev.Type)),
				zap.String("order_id", ev.OrderID),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until all in-flight deliveries finish. Called during graceful
// shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
