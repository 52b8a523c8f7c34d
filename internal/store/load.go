package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/ticketdesk/internal/apperr"
	"github.com/starford/ticketdesk/internal/models"
)

// Load fetches every ticket from the gateway, sanitizes and installs them,
// then mirrors them to the cache in the background.
//
// When the gateway fails, the cache mirror is installed instead if it holds
// at least one ticket. Only when both are unavailable does Load surface
// apperr.ErrOfflineNoCache, both as its return value and on the Error signal.
func (s *Store) Load(ctx context.Context) error {
	s.update(func(st state) state {
		st.loads++
		st.err = ""
		return st
	})

	raw, err := s.gw.FetchAll(ctx)
	if err == nil {
		tickets := s.san.Tickets(raw)
		s.install(tickets)
		s.logger.Info("store: loaded tickets", slog.Int("count", len(tickets)))
		s.mirrorAll(tickets)
		s.notify(EventLoaded, "")
		return nil
	}
	s.logger.Warn("store: fetch failed, falling back to cache", slog.String("error", err.Error()))

	cached, cerr := s.cache.ReadAll(ctx)
	if cerr != nil {
		s.logger.Warn("store: read cache", slog.String("error", cerr.Error()))
	}
	if cerr == nil && len(cached) > 0 {
		s.install(cached)
		s.logger.Info("store: loaded tickets from cache", slog.Int("count", len(cached)))
		s.notify(EventLoaded, "")
		return nil
	}

	s.update(func(st state) state {
		st.loads--
		st.err = apperr.ErrOfflineNoCache.Error()
		return st
	})
	return fmt.Errorf("store: load: %w", apperr.ErrOfflineNoCache)
}

// install replaces the ticket set and ends one load.
func (s *Store) install(tickets []models.Ticket) {
	s.update(func(st state) state {
		st.tickets = tickets
		if st.loads > 0 {
			st.loads--
		}
		st.err = ""
		return st
	})
}

// LoadFromSnapshot installs tickets directly, bypassing gateway, sanitizer
// and cache. The caller owns the data's validity.
func (s *Store) LoadFromSnapshot(tickets []models.Ticket) {
	cp := make([]models.Ticket, len(tickets))
	for i, t := range tickets {
		cp[i] = t.Clone()
	}
	s.update(func(st state) state {
		st.tickets = cp
		st.loads = 0
		st.err = ""
		return st
	})
	s.notify(EventLoaded, "")
}

// EnsureLoaded loads tickets unless some are already present. If a load is
// in flight it waits for that one instead of starting another.
func (s *Store) EnsureLoaded(ctx context.Context) error {
	st := s.snapshot()
	if len(st.tickets) > 0 {
		return nil
	}
	if st.loads == 0 {
		return s.Load(ctx)
	}

	ch, cancel := s.loading.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case loading, ok := <-ch:
			if !ok {
				return apperr.ErrCacheClosed
			}
			if loading {
				continue
			}
			if msg := s.errSig.Get(); msg != "" {
				return fmt.Errorf("store: load: %w", apperr.ErrOfflineNoCache)
			}
			return nil
		}
	}
}

// mirrorAll replaces the cache mirror in the background. Failures are logged
// and never affect the load.
func (s *Store) mirrorAll(tickets []models.Ticket) {
	s.background(func(ctx context.Context) {
		if err := s.cache.ReplaceAll(context.WithoutCancel(ctx), tickets); err != nil {
			s.logger.Warn("store: mirror tickets", slog.String("error", err.Error()))
		}
	})
}

// mirrorOne upserts one ticket into the cache mirror in the background.
func (s *Store) mirrorOne(t models.Ticket) {
	s.background(func(ctx context.Context) {
		if err := s.cache.UpsertOne(context.WithoutCancel(ctx), t); err != nil {
			s.logger.Warn("store: mirror ticket", slog.String("id", t.ID), slog.String("error", err.Error()))
		}
	})
}
