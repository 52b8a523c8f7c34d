package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchFlagFile forces m offline while a file exists at path. The directory
// holding path must exist. It returns when ctx is cancelled.
func WatchFlagFile(ctx context.Context, m *Monitor, path string, logger *slog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("connectivity: resolve flag file: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("connectivity: watch %s: %w", filepath.Dir(abs), err)
	}

	apply := func() {
		_, statErr := os.Stat(abs)
		present := statErr == nil
		if present != m.Forced() {
			logger.Info("flag file: offline override", slog.Bool("active", present), slog.String("path", abs))
		}
		m.ForceOffline(present)
	}
	apply()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			apply()
		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("flag file: watch error", slog.String("error", watchErr.Error()))
		}
	}
}
