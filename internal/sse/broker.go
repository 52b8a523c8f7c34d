// Package sse implements a Server-Sent Events broker that streams ticket
// changes to connected clients.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/ticketdesk/internal/live"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ticketEventReq struct {
	kind string
	id   string
}

// Ticket event kinds that change the pending queue.
const (
	kindPending = "pending"
	kindSynced  = "synced"
)

// keepAlive is how often an idle stream receives a comment line.
const keepAlive = 15 * time.Second

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the client set and the projection
// throttle timestamp. Public methods talk to it over channels.
type Broker struct {
	projectionMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	ticketEventCh chan ticketEventReq
	queueCh       chan live.Signal[int]
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits projection.changed at most once per
// projectionThrottle.
func NewBroker(projectionThrottle time.Duration) *Broker {
	if projectionThrottle <= 0 {
		projectionThrottle = time.Second
	}

	b := &Broker{
		projectionMin: projectionThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		ticketEventCh: make(chan ticketEventReq, 256),
		queueCh:       make(chan live.Signal[int]),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastProjection time.Time
		queue          live.Signal[int]
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
		raw := []byte(msg)

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case sig := <-b.queueCh:
			queue = sig

		case req := <-b.ticketEventCh:
			data := map[string]any{}
			typ := "tickets." + req.kind
			if req.id != "" {
				data["id"] = req.id
				typ = "ticket." + req.kind
			}
			if queue != nil && (req.kind == kindPending || req.kind == kindSynced) {
				data["pending"] = queue.Get()
			}
			broadcast(Event{Type: typ, Data: data})

			now := time.Now()
			if now.Sub(lastProjection) >= b.projectionMin {
				lastProjection = now
				broadcast(Event{Type: "projection.changed", Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishTicketEvent publishes ticket.<kind> for one ticket, or tickets.<kind>
// when id is empty, followed by a throttled projection.changed.
func (b *Broker) PublishTicketEvent(kind, id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.ticketEventCh <- ticketEventReq{kind: kind, id: id}:
	case <-b.stopped:
	}
}

// TrackQueue streams the pending queue length as queue.changed events and
// adds it to ticket.pending and ticket.synced payloads. It blocks until ctx
// is done, the signal closes or the broker stops.
func (b *Broker) TrackQueue(ctx context.Context, pending live.Signal[int]) {
	if b.closed.Load() {
		return
	}
	select {
	case b.queueCh <- pending:
	case <-b.stopped:
		return
	case <-ctx.Done():
		return
	}

	ch, unsubscribe := pending.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopped:
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			b.Publish(Event{Type: "queue.changed", Data: map[string]int{"pending": n}})
		}
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). Idle streams get a
// comment line every keepAlive so proxies keep them open.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
