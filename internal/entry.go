// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
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

	"github.com/starford/taskgraph/internal/api"
	"github.com/starford/taskgraph/internal/docs"
	"github.com/starford/taskgraph/internal/graph"
	"github.com/starford/taskgraph/internal/history"
	"github.com/starford/taskgraph/internal/mcpserver"
	"github.com/starford/taskgraph/internal/metrics"
	"github.com/starford/taskgraph/internal/sse"
	"github.com/starford/taskgraph/internal/tracker"
	"github.com/starford/taskgraph/internal/watch"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// openTracker opens the project documents and the changelog and loads the
// plan. The returned func closes the changelog.
func openTracker(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...tracker.Option) (*tracker.Service, func(), error) {
	d, err := docs.NewFS(cfg.Project.DocsPath())
	if err != nil {
		return nil, nil, fmt.Errorf("init docs: %w", err)
	}

	db, err := history.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init history: %w", err)
	}

	opts = append([]tracker.Option{
		tracker.WithLogger(logger),
		tracker.WithProjectName(cfg.Project.Name),
	}, opts...)
	svc := tracker.New(graph.NewStore(), d, db, opts...)
	if err := svc.Load(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return svc, func() { db.Close() }, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stdout, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("docs_path", cfg.Project.DocsPath()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("watch", cfg.Project.Watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(cfg.Events.GraphThrottle)
	defer broker.Close()
	m := metrics.New()

	svc, closeDB, err := openTracker(ctx, cfg, logger,
		tracker.WithPublisher(broker),
		tracker.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	defer closeDB()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := svc.Store().Validate(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "invalid graph", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", m.Handler())

	r.Mount("/api", api.NewRouter(svc, broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Project.Watch {
		g.Go(func() error {
			return watch.Watch(gCtx, cfg.Project.DocsPath(), svc, logger, watch.DefaultDebounce)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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
		// Stops the watcher.
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the tracker tools over stdio. Logs go to stderr since stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stderr, cfg.App.LogLevel)

	svc, closeDB, err := openTracker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Project.Watch {
		g.Go(func() error {
			return watch.Watch(gCtx, cfg.Project.DocsPath(), svc, logger, watch.DefaultDebounce)
		})
	}

	g.Go(func() error {
		defer cancel()
		logger.Info("MCP server starting", slog.String("docs_path", cfg.Project.DocsPath()))
		return mcpserver.New(svc, app.version).ServeStdio()
	})

	return g.Wait()
}

// Status prints the project status as JSON.
func Status(ctx context.Context, opts ...Option) error {
	return oneShot(ctx, opts, func(svc *tracker.Service, out io.Writer) error {
		st, err := svc.ProjectStatus(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, st)
	})
}

// Order prints the implementation order, one function per line.
func Order(ctx context.Context, opts ...Option) error {
	return oneShot(ctx, opts, func(svc *tracker.Service, out io.Writer) error {
		order, err := svc.Order(ctx)
		if err != nil {
			return err
		}
		for i, id := range order {
			fv, err := svc.GetFunction(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%3d  %-8s %-12s %s\n", i+1, id, fv.Status.Status, fv.Name)
		}
		return nil
	})
}

// ErrInvalidPlan is returned by Validate when the plan has cycles or
// dangling references.
var ErrInvalidPlan = errors.New("plan is not valid")

// Validate prints the validation report and fails when the plan is invalid.
func Validate(ctx context.Context, opts ...Option) error {
	return oneShot(ctx, opts, func(svc *tracker.Service, out io.Writer) error {
		rep := svc.Validate(ctx)
		if err := printJSON(out, rep); err != nil {
			return err
		}
		if !rep.Valid {
			return ErrInvalidPlan
		}
		return nil
	})
}

func oneShot(ctx context.Context, opts []Option, fn func(*tracker.Service, io.Writer) error) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, app.config.App.LogLevel)

	svc, closeDB, err := openTracker(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer closeDB()
	return fn(svc, app.out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
