package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/starford/ticketdesk/internal/apperr"
	"github.com/starford/ticketdesk/internal/ingest"
	"github.com/starford/ticketdesk/internal/models"
)

// File serves tickets from a local JSON or YAML document. Writes rewrite the
// whole file atomically as a plain list.
type File struct {
	path   string
	format ingest.Format
	now    func() time.Time

	mu sync.Mutex
}

// NewFile creates a gateway over path. The file need not exist yet; until it
// does every call fails like an unreachable server.
func NewFile(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("gateway: resolve path: %w", err)
	}
	return &File{path: abs, format: ingest.FormatForPath(abs), now: time.Now}, nil
}

// Path returns the absolute source path.
func (f *File) Path() string { return f.path }

func (f *File) FetchAll(_ context.Context) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.read()
	if err != nil {
		return nil, fmt.Errorf("gateway: fetch all: %w", err)
	}
	return v, nil
}

func (f *File) UpdateOne(_ context.Context, id string, patch models.Patch) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, err := f.read()
	if err != nil {
		return nil, fmt.Errorf("gateway: update %s: %w", id, err)
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("gateway: update %s: source is not a list: %w", id, apperr.ErrGateway)
	}

	fields, err := patchFields(patch)
	if err != nil {
		return nil, fmt.Errorf("gateway: update %s: %w", id, err)
	}

	var updated map[string]any
	for _, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if rid, _ := rec["id"].(string); strings.TrimSpace(rid) != id {
			continue
		}
		for k, val := range fields {
			rec[k] = val
		}
		if a, ok := rec["assignee"].(string); ok && strings.TrimSpace(a) == "" {
			delete(rec, "assignee")
		}
		rec["updatedAt"] = models.FormatTime(f.now())
		updated = rec
	}
	if updated == nil {
		return nil, fmt.Errorf("gateway: update %s: %w: %w", id, apperr.ErrGateway, apperr.ErrNotFound)
	}

	if err := f.write(items); err != nil {
		return nil, fmt.Errorf("gateway: update %s: %w", id, err)
	}
	return updated, nil
}

// Health reports whether the source file is readable.
func (f *File) Health(_ context.Context) error {
	if _, err := os.Stat(f.path); err != nil {
		return fmt.Errorf("gateway: health: %w: %w", apperr.ErrGateway, err)
	}
	return nil
}

func (f *File) read() (any, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrGateway, err)
	}
	v, err := ingest.Decode(data, f.format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrGateway, err)
	}
	return v, nil
}

func (f *File) write(items []any) error {
	var (
		data []byte
		err  error
	)
	if f.format == ingest.FormatYAML {
		data, err = yaml.Marshal(items)
	} else {
		data, err = json.MarshalIndent(items, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode source: %w", err)
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: write source: %w", apperr.ErrGateway, err)
	}
	return nil
}

// patchFields lowers a patch to the wire field set.
func patchFields(p models.Patch) (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	return out, nil
}

// Watch calls onChange after the source file is created, written or replaced,
// debouncing bursts of events. It returns when ctx is cancelled.
func (f *File) Watch(ctx context.Context, logger *slog.Logger, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(f.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("gateway: watch %s: %w", dir, err)
	}
	logger.Info("gateway watcher: started", slog.String("path", f.path))

	var debounce *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("gateway watcher: stopped")
			return nil

		case <-fire:
			fire = nil
			logger.Debug("gateway watcher: source changed", slog.String("path", f.path))
			onChange()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(200 * time.Millisecond)
			} else {
				debounce.Reset(200 * time.Millisecond)
			}
			fire = debounce.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("gateway watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
