// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/ticketdesk/internal/api"
	"github.com/starford/ticketdesk/internal/cache"
	"github.com/starford/ticketdesk/internal/connectivity"
	"github.com/starford/ticketdesk/internal/gateway"
	"github.com/starford/ticketdesk/internal/mcpserver"
	"github.com/starford/ticketdesk/internal/sse"
	"github.com/starford/ticketdesk/internal/store"
)

const projectionThrottle = 250 * time.Millisecond

// desk is the wired synchronization core shared by the HTTP and MCP front ends.
type desk struct {
	logger  *slog.Logger
	monitor *connectivity.Monitor
	source  gateway.Gateway
	file    *gateway.File
	cache   cache.Cache
	broker  *sse.Broker
	store   *store.Store
}

func (d *desk) close() {
	d.store.Close()
	if err := d.cache.Close(); err != nil {
		d.logger.Warn("cache close failed", slog.String("error", err.Error()))
	}
	d.broker.Close()
	d.monitor.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the JSON logger, teeing into a rotating file when configured.
func newLogger(cfg *Config, out io.Writer) *slog.Logger {
	if lf := cfg.App.LogFile; lf.Path != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   lf.Path,
			MaxSize:    lf.MaxSizeMB,
			MaxBackups: lf.MaxBackups,
			MaxAge:     lf.MaxAgeDays,
			Compress:   lf.Compress,
		})
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

func newSource(cfg SourceConfig) (gateway.Gateway, *gateway.File, error) {
	if cfg.Path != "" {
		f, err := gateway.NewFile(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	}
	h, err := gateway.NewHTTP(cfg.URL, cfg.Token, cfg.Timeout)
	if err != nil {
		return nil, nil, err
	}
	return h, nil, nil
}

func newCache(cfg CacheConfig) cache.Cache {
	switch cfg.Driver {
	case CacheDriverRedis:
		return cache.OpenRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
	case CacheDriverMemory:
		return cache.NewMemory()
	default:
		return cache.OpenSQLite(cfg.SQLite.Path)
	}
}

// openDesk wires the gateway, cache, connectivity monitor and store.
func openDesk(cfg *Config, logger *slog.Logger) (*desk, error) {
	raw, file, err := newSource(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("init source: %w", err)
	}

	monitor := connectivity.NewMonitor(true)
	broker := sse.NewBroker(projectionThrottle)
	c := newCache(cfg.Cache)

	st := store.New(gateway.OnlineOnly(raw, monitor.Online), c,
		store.WithMonitor(monitor),
		store.WithNotifier(broker),
		store.WithLogger(logger),
	)

	return &desk{
		logger:  logger,
		monitor: monitor,
		source:  raw,
		file:    file,
		cache:   c,
		broker:  broker,
		store:   st,
	}, nil
}

// background starts the connectivity sources, the queue event feed and the
// source file watcher.
func (d *desk) background(ctx context.Context, g *errgroup.Group, cfg *Config) {
	if checker, ok := d.source.(gateway.HealthChecker); ok && cfg.Connectivity.ProbeInterval > 0 {
		g.Go(func() error {
			return connectivity.Probe(ctx, d.monitor, checker, cfg.Connectivity.ProbeInterval, d.logger)
		})
	}

	g.Go(func() error {
		d.broker.TrackQueue(ctx, d.store.PendingCount())
		return nil
	})

	if cfg.Connectivity.FlagFile != "" {
		g.Go(func() error {
			if err := connectivity.WatchFlagFile(ctx, d.monitor, cfg.Connectivity.FlagFile, d.logger); err != nil {
				d.logger.Warn("offline flag watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if d.file != nil && cfg.Source.Watch {
		g.Go(func() error {
			err := d.file.Watch(ctx, d.logger, func() {
				d.logger.Info("source file changed, reloading", slog.String("path", d.file.Path()))
				if err := d.store.Load(ctx); err != nil {
					d.logger.Warn("reload failed", slog.String("error", err.Error()))
				}
			})
			if err != nil {
				d.logger.Warn("source watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(cfg, app.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("source_url", cfg.Source.URL),
		slog.String("source_path", cfg.Source.Path),
		slog.String("cache_driver", cfg.Cache.Driver),
		slog.String("log_level", cfg.App.LogLevel.String()))

	d, err := openDesk(cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if d.store.Loading().Get() || d.store.Error().Get() != "" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api; SSE lives at /api/events.
	r.Mount("/api", api.NewRouter(d.store, d.monitor, cfg.Auth.AuthEnabled(), cfg.Auth.Token, d.broker))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	d.background(gCtx, g, cfg)

	g.Go(func() error {
		if err := d.store.Load(gCtx); err != nil {
			logger.Warn("initial load failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so background watchers stop with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the ticket tools over stdio until stdin closes or ctx ends.
// Logs go to stderr unless WithLogOutput says otherwise.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(cfg, app.logOutput)
	slog.SetDefault(logger)

	d, err := openDesk(cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)
	d.background(gCtx, g, cfg)

	// Tools need the ticket set before the first call.
	if err := d.store.EnsureLoaded(gCtx); err != nil {
		logger.Warn("initial load failed", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting on stdio")
	serveErr := mcpserver.New(d.store, d.monitor).ServeStdio()
	cancel()
	_ = g.Wait()
	if serveErr != nil {
		return fmt.Errorf("mcp server: %w", serveErr)
	}
	return nil
}
