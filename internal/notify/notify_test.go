package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	mu    sync.Mutex
	calls []Event
	err   error
}

func (n *countingNotifier) Notify(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, ev)
	return n.err
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func TestDispatcher_DeliversAllEvents(t *testing.T) {
	n := &countingNotifier{}
	d := NewDispatcher(n, time.Second)

	for i := 0; i < 5; i++ {
		d.Dispatch(context.Background(), Event{Type: EventCreated, OrderID: "o1", UserID: "u1", At: time.Now()})
	}
	d.Wait()

	assert.Equal(t, 5, n.count())
}

func TestDispatcher_FailuresNeverPropagate(t *testing.T) {
	n := &countingNotifier{err: errors.New("smtp down")}
	d := NewDispatcher(n, time.Second)

	// Dispatch must not panic or block on a failing notifier.
	d.Dispatch(context.Background(), Event{Type: EventPaid, OrderID: "o1"})
	d.Wait()

	assert.Equal(t, 1, n.count())
}

func TestDispatcher_SurvivesCancelledRequestContext(t *testing.T) {
	n := &countingNotifier{}
	d := NewDispatcher(n, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, Event{Type: EventCancelled, OrderID: "o1"})
	d.Wait()

	// Delivery runs on a detached context, so the finished request's
	// cancellation must not abort it.
	assert.Equal(t, 1, n.count())
}

func TestWebhookNotifier_PostsEvent(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	err := n.Notify(context.Background(), Event{
		Type:    EventPaid,
		OrderID: "order-1",
		UserID:  "user-1",
		At:      at,
	})

	require.NoError(t, err)
	assert.Equal(t, "paid", got["type"])
	assert.Equal(t, "order-1", got["orderId"])
	assert.Equal(t, "user-1", got["userId"])
	assert.Equal(t, "2026-03-04T05:06:07Z", got["at"])
}

func TestWebhookNotifier_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "intake full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	err := n.Notify(context.Background(), Event{Type: EventCreated, OrderID: "o1"})

	require.Error(t, err)
}

func TestLogNotifier_NeverFails(t *testing.T) {
	var n LogNotifier
	require.NoError(t, n.Notify(context.Background(), Event{Type: EventCreated, OrderID: "o1"}))
}
