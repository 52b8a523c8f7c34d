// Package testutil provides shared test helpers: a scriptable gateway, a
// temporary sqlite cache and a seeded ticket set.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/ticketdesk/internal/apperr"
	"github.com/starford/ticketdesk/internal/cache"
	"github.com/starford/ticketdesk/internal/models"
)

// TestCache creates a temporary SQLite cache that is automatically closed.
func TestCache(t *testing.T) *cache.SQLite {
	t.Helper()
	c := cache.OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	t.Cleanup(func() { c.Close() })
	return c
}

// Call records one UpdateOne received by a Gateway.
type Call struct {
	ID    string
	Patch models.Patch
}

// Gateway is an in-memory gateway whose failures can be switched on and off.
type Gateway struct {
	mu         sync.Mutex
	records    []any
	failFetch  bool
	failUpdate bool
	calls      []Call
	updateGate chan struct{}
}

// NewGateway returns a gateway serving records.
func NewGateway(records ...any) *Gateway {
	return &Gateway{records: records}
}

// SetRecords replaces what FetchAll returns.
func (g *Gateway) SetRecords(records ...any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = records
}

// FailFetch makes FetchAll fail while on is true.
func (g *Gateway) FailFetch(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failFetch = on
}

// FailUpdate makes UpdateOne fail while on is true.
func (g *Gateway) FailUpdate(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failUpdate = on
}

// Hold blocks every UpdateOne until the returned release func is called.
func (g *Gateway) Hold() (release func()) {
	gate := make(chan struct{})
	g.mu.Lock()
	g.updateGate = gate
	g.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.updateGate = nil
			g.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns every UpdateOne received so far, in arrival order.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

func (g *Gateway) FetchAll(context.Context) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFetch {
		return nil, fmt.Errorf("fake: fetch all: %w", apperr.ErrGateway)
	}
	return append([]any(nil), g.records...), nil
}

func (g *Gateway) UpdateOne(ctx context.Context, id string, patch models.Patch) (any, error) {
	g.mu.Lock()
	gate := g.updateGate
	g.calls = append(g.calls, Call{ID: id, Patch: patch})
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failUpdate {
		return nil, fmt.Errorf("fake: update %s: %w", id, apperr.ErrGateway)
	}
	return map[string]any{"id": id}, nil
}

func (g *Gateway) Health(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFetch {
		return apperr.ErrGateway
	}
	return nil
}

// SeedTickets returns five tickets spanning four statuses, three priority
// levels and overlapping tags, created between March and August 2024.
func SeedTickets() []models.Ticket {
	tier := models.TierEnterprise
	return []models.Ticket{
		{
			ID: "T1", Title: "Login page broken", Status: models.StatusOpen, Priority: 1,
			Assignee:  models.Ptr("Alice Johnson"),
			CreatedAt: "2024-03-05T09:00:00.000Z", UpdatedAt: "2024-03-06T09:00:00.000Z",
			Tags: []string{"bug", "auth"}, Meta: &models.Meta{CustomerTier: &tier},
		},
		{
			ID: "T2", Title: "Export to CSV", Status: models.StatusInProgress, Priority: 3,
			CreatedAt: "2024-04-10T12:00:00.000Z", UpdatedAt: "2024-04-11T12:00:00.000Z",
			Tags: []string{"feature"},
		},
		{
			ID: "T3", Title: "Payment webhook fails", Status: models.StatusBlocked, Priority: 1,
			Assignee:  models.Ptr("Bob Smith"),
			CreatedAt: "2024-05-20T08:30:00.000Z", UpdatedAt: "2024-05-21T08:30:00.000Z",
			Tags: []string{"bug", "billing"},
		},
		{
			ID: "T4", Title: "Update docs", Status: models.StatusClosed, Priority: 5,
			CreatedAt: "2024-07-01T10:00:00.000Z", UpdatedAt: "2024-07-02T10:00:00.000Z",
			Tags: []string{"docs"},
		},
		{
			ID: "T5", Title: "Slow dashboard", Status: models.StatusOpen, Priority: 3,
			Assignee:  models.Ptr("Carol White"),
			CreatedAt: "2024-08-15T16:45:00.000Z", UpdatedAt: "2024-08-16T16:45:00.000Z",
			Tags: []string{"performance", "feature"},
		},
	}
}

// RawTickets returns SeedTickets as untyped records, as a gateway would.
func RawTickets() []any {
	var out []any
	for _, t := range SeedTickets() {
		rec := map[string]any{
			"id":        t.ID,
			"title":     t.Title,
			"status":    string(t.Status),
			"priority":  float64(t.Priority),
			"createdAt": t.CreatedAt,
			"updatedAt": t.UpdatedAt,
		}
		tags := make([]any, len(t.Tags))
		for i, tag := range t.Tags {
			tags[i] = tag
		}
		rec["tags"] = tags
		if t.Assignee != nil {
			rec["assignee"] = *t.Assignee
		}
		if t.Meta != nil && t.Meta.CustomerTier != nil {
			rec["meta"] = map[string]any{"customerTier": string(*t.Meta.CustomerTier)}
		}
		out = append(out, rec)
	}
	return out
}
