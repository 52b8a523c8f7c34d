// Package cache implements the durable local cache: a mirror of the last known
// good ticket set plus an ordered queue of pending changes.
package cache

import (
	"context"

	"github.com/starford/ticketdesk/internal/models"
)

// SchemaVersion gates the persisted layout. A store holding another version
// drops and re-creates its tables on first use.
const SchemaVersion = 1

// Mirror is a single-version copy of canonical tickets keyed by id.
type Mirror interface {
	ReplaceAll(ctx context.Context, tickets []models.Ticket) error
	ReadAll(ctx context.Context) ([]models.Ticket, error)
	UpsertOne(ctx context.Context, t models.Ticket) error
}

// Queue is a FIFO of pending changes keyed by an auto-assigned sequence number
// and ordered by enqueue timestamp.
type Queue interface {
	Append(ctx context.Context, c models.PendingChange) (int64, error)
	ReadAllOrdered(ctx context.Context) ([]models.PendingChange, error)
	Remove(ctx context.Context, key int64) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Cache is the full durable cache contract.
type Cache interface {
	Mirror
	Queue
	Close() error
}

// Verify implementations satisfy Cache at compile time.
var (
	_ Cache = (*SQLite)(nil)
	_ Cache = (*Memory)(nil)
	_ Cache = (*Redis)(nil)
)
