// Package gateway talks to the authoritative ticket source.
package gateway

import (
	"context"
	"fmt"

	"github.com/starford/ticketdesk/internal/apperr"
	"github.com/starford/ticketdesk/internal/models"
)

// Gateway is the remote source of truth. Results are untyped; callers run
// them through the sanitizer.
type Gateway interface {
	FetchAll(ctx context.Context) (any, error)
	UpdateOne(ctx context.Context, id string, patch models.Patch) (any, error)
}

// HealthChecker is implemented by gateways that can report reachability
// without fetching data.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// guarded refuses all calls while online reports false.
type guarded struct {
	next   Gateway
	online func() bool
}

// OnlineOnly wraps g so that every call fails fast with apperr.ErrGateway
// while online() is false.
func OnlineOnly(g Gateway, online func() bool) Gateway {
	return &guarded{next: g, online: online}
}

func (g *guarded) FetchAll(ctx context.Context) (any, error) {
	if !g.online() {
		return nil, fmt.Errorf("gateway: fetch all: offline: %w", apperr.ErrGateway)
	}
	return g.next.FetchAll(ctx)
}

func (g *guarded) UpdateOne(ctx context.Context, id string, patch models.Patch) (any, error) {
	if !g.online() {
		return nil, fmt.Errorf("gateway: update %s: offline: %w", id, apperr.ErrGateway)
	}
	return g.next.UpdateOne(ctx, id, patch)
}

// Health reports the wrapped gateway's health, ignoring the online guard so
// probes can still detect recovery.
func (g *guarded) Health(ctx context.Context) error {
	if hc, ok := g.next.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}
