package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/ticketdesk/internal/models"
)

// SyncResult summarizes one replay pass.
type SyncResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// SyncPendingChanges replays the pending queue oldest first, one change at a
// time. Every attempted change leaves the queue whatever the outcome: a
// change that fails again is dropped (last write wins). Once a ticket's last
// queued change has been attempted its pending flag is cleared.
//
// Only one pass runs at a time; callers arriving during a pass share its
// result.
func (s *Store) SyncPendingChanges(ctx context.Context) (SyncResult, error) {
	v, err, _ := s.replay.Do("replay", func() (any, error) {
		return s.replayQueue(ctx)
	})
	res, _ := v.(SyncResult)
	return res, err
}

func (s *Store) replayQueue(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	s.queueMu.Lock()
	items, err := s.cache.ReadAllOrdered(ctx)
	marks := make(map[string]uint64, len(s.appended))
	for id, n := range s.appended {
		marks[id] = n
	}
	s.queueMu.Unlock()
	if err != nil {
		return res, fmt.Errorf("store: read pending changes: %w", err)
	}
	if len(items) == 0 {
		return res, nil
	}
	s.logger.Info("store: replaying pending changes", slog.Int("count", len(items)))

	remaining := make(map[string]int, len(items))
	for _, it := range items {
		remaining[it.TicketID]++
	}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++
		_, gwErr := s.gw.UpdateOne(ctx, it.TicketID, it.Patch)
		if gwErr != nil {
			res.Failed++
			s.logger.Warn("store: replay failed, dropping change",
				slog.String("id", it.TicketID),
				slog.Int64("key", it.Key),
				slog.String("error", gwErr.Error()))
		} else {
			res.Succeeded++
		}

		if err := s.cache.Remove(context.WithoutCancel(ctx), it.Key); err != nil {
			s.logger.Error("store: remove pending change",
				slog.Int64("key", it.Key), slog.String("error", err.Error()))
		}
		s.refreshPendingCount(ctx)

		remaining[it.TicketID]--
		if remaining[it.TicketID] > 0 {
			continue
		}
		s.settleReplayed(it.TicketID, marks[it.TicketID])
	}

	s.logger.Info("store: replay finished",
		slog.Int("succeeded", res.Succeeded), slog.Int("failed", res.Failed))
	return res, nil
}

// settleReplayed clears the pending flag of a ticket whose queued changes
// have all been attempted, unless a change for it was queued after the pass
// read the queue.
func (s *Store) settleReplayed(id string, mark uint64) {
	s.queueMu.Lock()
	if s.appended[id] != mark {
		s.queueMu.Unlock()
		return
	}
	t, ok := s.settle(id, func(t models.Ticket) models.Ticket {
		t.PendingSync = false
		t.SyncState = models.SyncClean
		return t
	})
	s.queueMu.Unlock()

	if ok {
		s.mirrorOne(t)
	}
	s.notify(EventSynced, id)
}

// ClearPendingChanges empties the queue without replaying it and clears
// every pending flag.
func (s *Store) ClearPendingChanges(ctx context.Context) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("store: clear pending changes: %w", err)
	}
	s.refreshPendingCount(ctx)
	s.update(func(st state) state {
		next := make([]models.Ticket, len(st.tickets))
		for i, t := range st.tickets {
			if t.PendingSync {
				t = t.Clone()
				t.PendingSync = false
				t.SyncState = models.SyncClean
			}
			next[i] = t
		}
		st.tickets = next
		return st
	})
	return nil
}

// maxReconnectPasses bounds the replay passes run for one reconnect.
const maxReconnectPasses = 5

// watchConnectivity replays the queue whenever the monitor comes back
// online. The monitor only publishes changes, so every true after the first
// value follows an offline period, even when the false in between was
// overwritten before it was read.
func (s *Store) watchConnectivity(ch <-chan bool, unsubscribe func()) {
	defer s.wg.Done()
	defer unsubscribe()

	if _, ok := <-ch; !ok {
		return
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		case online, ok := <-ch:
			if !ok {
				return
			}
			if online {
				s.background(s.syncAfterReconnect)
			}
		}
	}
}

// syncAfterReconnect replays until the queue is empty or the monitor goes
// offline again. Another pass follows when changes were queued while the
// previous one ran, or when the pass joined was already past them.
func (s *Store) syncAfterReconnect(ctx context.Context) {
	for pass := 0; pass < maxReconnectPasses; pass++ {
		if !s.monitor.Online() {
			return
		}
		n, err := s.cache.Count(ctx)
		if err != nil {
			s.logger.Warn("store: count pending changes", slog.String("error", err.Error()))
			return
		}
		if n == 0 {
			return
		}
		s.logger.Info("store: back online, syncing", slog.Int("pending", n))
		res, err := s.SyncPendingChanges(ctx)
		if err != nil {
			s.logger.Warn("store: sync after reconnect", slog.String("error", err.Error()))
			return
		}
		if res.Attempted == 0 && pass > 0 {
			return
		}
	}
}
