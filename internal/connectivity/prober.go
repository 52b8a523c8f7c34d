package connectivity

import (
	"context"
	"log/slog"
	"time"
)

// Checker reports whether the remote source answers.
type Checker interface {
	Health(ctx context.Context) error
}

// Probe checks c every interval and feeds the result into m until ctx is
// cancelled. The first check runs immediately.
func Probe(ctx context.Context, m *Monitor, c Checker, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("prober: started", slog.Duration("interval", interval))
	check := func() {
		cctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		err := c.Health(cctx)
		was := m.Online()
		m.Set(err == nil)
		switch now := m.Online(); {
		case was && !now:
			attrs := []any{}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			logger.Warn("prober: went offline", attrs...)
		case !was && now:
			logger.Info("prober: back online")
		}
	}

	check()
	for {
		select {
		case <-ctx.Done():
			logger.Info("prober: stopped")
			return nil
		case <-ticker.C:
			check()
		}
	}
}
