package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/ticketdesk/internal/apperr"
	"github.com/starford/ticketdesk/internal/models"
)

// UpdateOne applies patch to the ticket with id immediately, stamping a fresh
// updatedAt, and returns the optimistic result. The gateway write happens in
// the background:
//
//   - on success the ticket is mirrored to the cache and marked clean;
//   - on failure the patch is re-applied with the pending flag set and a
//     PendingChange is appended to the cache queue.
//
// Gateway failures are never reported to the caller. Writes for the same id
// reach the gateway one at a time, in call order.
func (s *Store) UpdateOne(_ context.Context, id string, patch models.Patch) (models.Ticket, error) {
	var (
		before, after models.Ticket
		found         bool
	)
	s.update(func(st state) state {
		next := make([]models.Ticket, len(st.tickets))
		copy(next, st.tickets)
		for i, t := range next {
			if t.ID != id {
				continue
			}
			found = true
			before = t
			after = patch.Apply(t)
			after.UpdatedAt = models.FormatTime(s.now())
			after.SyncState = models.SyncOptimistic
			if t.PendingSync {
				after.SyncState = models.SyncPending
			}
			next[i] = after
		}
		if !found {
			return st
		}
		st.tickets = next
		return st
	})
	if !found {
		return models.Ticket{}, fmt.Errorf("store: update %s: %w", id, apperr.ErrNotFound)
	}
	s.notify(EventUpdated, id)

	change := models.PendingChange{
		TicketID:          id,
		Patch:             patch,
		OriginalUpdatedAt: before.UpdatedAt,
	}
	s.enqueueWrite(id, func(ctx context.Context, superseded func() bool) {
		s.push(ctx, change, superseded)
	})
	return after.Clone(), nil
}

// CheckEdit reports whether patch, applied to the current ticket with id,
// leaves a ticket that satisfies the edit rules. It changes nothing.
func (s *Store) CheckEdit(id string, patch models.Patch) error {
	t, ok := s.Ticket(id)
	if !ok {
		return fmt.Errorf("store: check edit %s: %w", id, apperr.ErrNotFound)
	}
	if patch.IsEmpty() {
		return fmt.Errorf("%w: nothing to change", apperr.ErrInvalidPatch)
	}
	if err := models.ValidateEdit(patch.Apply(t)); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidPatch, err)
	}
	return nil
}

// enqueueWrite runs fn after every earlier write for id has finished.
// superseded reports whether a later write for id has been enqueued since.
func (s *Store) enqueueWrite(id string, fn func(ctx context.Context, superseded func() bool)) {
	done := make(chan struct{})
	s.chainMu.Lock()
	prev := s.chains[id]
	s.chains[id] = done
	s.chainMu.Unlock()

	s.background(func(ctx context.Context) {
		defer func() {
			s.chainMu.Lock()
			if s.chains[id] == done {
				delete(s.chains, id)
			}
			s.chainMu.Unlock()
			close(done)
		}()
		if prev != nil {
			<-prev
		}
		fn(ctx, func() bool {
			s.chainMu.Lock()
			defer s.chainMu.Unlock()
			return s.chains[id] != done
		})
	})
}

// push sends one optimistic change to the gateway and settles the outcome.
func (s *Store) push(ctx context.Context, change models.PendingChange, superseded func() bool) {
	id := change.TicketID
	if _, err := s.gw.UpdateOne(ctx, id, change.Patch); err != nil {
		s.logger.Warn("store: update failed, queueing change",
			slog.String("id", id), slog.String("error", err.Error()))
		s.markPending(context.WithoutCancel(ctx), change, superseded())
		return
	}

	t, ok := s.settle(id, func(t models.Ticket) models.Ticket {
		if !t.PendingSync && !superseded() {
			t.SyncState = models.SyncClean
		}
		return t
	})
	if ok {
		s.mirrorOne(t)
	}
	s.notify(EventConfirmed, id)
}

// markPending re-applies the failed patch with the pending flag and enqueues
// it. A superseded patch is not re-applied so a later edit stays visible.
// The queue append completes before the failure counts as handled.
func (s *Store) markPending(ctx context.Context, change models.PendingChange, superseded bool) {
	s.queueMu.Lock()
	t, ok := s.settle(change.TicketID, func(t models.Ticket) models.Ticket {
		if !superseded {
			t = change.Patch.Apply(t)
		}
		t.PendingSync = true
		t.SyncState = models.SyncPending
		return t
	})

	change.Timestamp = s.now().UnixMilli()
	if _, err := s.cache.Append(ctx, change); err != nil {
		s.logger.Error("store: enqueue pending change",
			slog.String("id", change.TicketID), slog.String("error", err.Error()))
	}
	s.appended[change.TicketID]++
	s.queueMu.Unlock()

	s.refreshPendingCount(ctx)
	if ok {
		s.mirrorOne(t)
	}
	s.notify(EventPending, change.TicketID)
}

// settle replaces the ticket with id by fn(ticket) if it is still present.
func (s *Store) settle(id string, fn func(models.Ticket) models.Ticket) (models.Ticket, bool) {
	var (
		out   models.Ticket
		found bool
	)
	s.update(func(st state) state {
		i := indexOf(st.tickets, id)
		if i < 0 {
			return st
		}
		found = true
		next := make([]models.Ticket, len(st.tickets))
		copy(next, st.tickets)
		out = fn(next[i].Clone())
		next[i] = out
		st.tickets = next
		return st
	})
	return out, found
}

func indexOf(tickets []models.Ticket, id string) int {
	for i := range tickets {
		if tickets[i].ID == id {
			return i
		}
	}
	return -1
}
