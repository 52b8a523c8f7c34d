package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/ticketdesk/internal/live"
)

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "sync.completed", Data: map[string]int{"attempted": 2}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: sync.completed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"attempted":2`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishTicketEvent_ProjectionThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishTicketEvent("updated", "T1")
	b.PublishTicketEvent("pending", "T2")

	time.Sleep(50 * time.Millisecond)
	projection, tickets := 0, 0
	for _, s := range drain(ch) {
		if strings.Contains(s, "projection.changed") {
			projection++
		} else {
			tickets++
		}
	}
	if tickets != 2 {
		t.Errorf("ticket events = %d, want 2", tickets)
	}
	if projection != 1 {
		t.Errorf("projection events = %d, want 1 (throttled)", projection)
	}
}

func TestPublishTicketEvent_Names(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishTicketEvent("loaded", "")
	b.PublishTicketEvent("confirmed", "T9")
	time.Sleep(50 * time.Millisecond)

	all := strings.Join(drain(ch), "")
	for _, want := range []string{"event: tickets.loaded", "event: ticket.confirmed", `"id":"T9"`} {
		if !strings.Contains(all, want) {
			t.Errorf("stream missing %q:\n%s", want, all)
		}
	}
}

func waitFor(t *testing.T, ch chan []byte, want string) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	var seen []string
	for {
		select {
		case msg := <-ch:
			seen = append(seen, string(msg))
			if strings.Contains(string(msg), want) {
				return string(msg)
			}
		case <-deadline:
			t.Fatalf("no event containing %q; got:\n%s", want, strings.Join(seen, ""))
		}
	}
}

func TestTrackQueue(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	pending := live.New(0, func(a, b int) bool { return a == b })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.TrackQueue(ctx, pending)
	}()

	waitFor(t, ch, `"pending":0`)
	pending.Set(2)
	msg := waitFor(t, ch, "event: queue.changed")
	if !strings.Contains(msg, `"pending":2`) {
		t.Errorf("queue.changed = %q, want pending 2", msg)
	}

	b.PublishTicketEvent("pending", "T1")
	msg = waitFor(t, ch, "event: ticket.pending")
	if !strings.Contains(msg, `"pending":2`) || !strings.Contains(msg, `"id":"T1"`) {
		t.Errorf("ticket.pending = %q, want id and queue length", msg)
	}

	b.PublishTicketEvent("updated", "T1")
	msg = waitFor(t, ch, "event: ticket.updated")
	if strings.Contains(msg, "pending") {
		t.Errorf("ticket.updated = %q, should not carry the queue length", msg)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("TrackQueue did not return after cancel")
	}
}

// syncRecorder guards the body so the test can read it while the handler writes.
type syncRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Body.String()
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishTicketEvent("updated", "T1")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.body()
	if !strings.Contains(body, "event: ticket.updated") {
		t.Errorf("handler output missing event: %q", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Buffer holds 64; the rest must be dropped without blocking.
	for i := 0; i < 70; i++ {
		b.PublishTicketEvent("updated", "T1")
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: "ticket.updated", Data: map[string]string{"id": "T1"}})
	b.PublishTicketEvent("updated", "T1")
}
