package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stackhq/stack-api/internal/config"
	"github.com/stackhq/stack-api/internal/jobs"
	"github.com/stackhq/stack-api/internal/observability"
)

// Closer releases a backing resource during shutdown.
type Closer func() error

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime

	closers []Closer
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, closers ...Closer) *App {
	return &App{Config: cfg, Logger: logger, Server: server, Observability: runtime, closers: closers}
}

// Run serves until ctx is cancelled or the listener fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", ln.Addr().String(), "env", a.Config.AppEnv)
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err := <-serveErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Shutdown drains in-flight requests, closes stores, then flushes telemetry.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	drainCtx, cancel := context.WithTimeout(ctx, a.Config.ShutdownHTTPTimeout)
	defer cancel()
	if err := a.Server.Shutdown(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	errs = append(errs, closeAll(a.closers)...)
	if err := a.Observability.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	if len(errs) == 0 {
		a.Logger.Info("server stopped cleanly")
	}
	return errors.Join(errs...)
}

type Worker struct {
	Config        *config.Config
	Logger        *slog.Logger
	Runner        *jobs.Runner
	Maintainer    *jobs.Maintainer
	Observability *observability.Runtime

	closers []Closer
}

func NewWorker(cfg *config.Config, logger *slog.Logger, runner *jobs.Runner, maintainer *jobs.Maintainer, runtime *observability.Runtime, closers ...Closer) *Worker {
	return &Worker{Config: cfg, Logger: logger, Runner: runner, Maintainer: maintainer, Observability: runtime, closers: closers}
}

// Run polls and maintains the queue until ctx is cancelled. In-flight jobs
// finish before stores are closed.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Runner.Run(gctx) })
	g.Go(func() error {
		w.Maintainer.Run(gctx)
		return nil
	})
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout(w.Config))
	defer cancel()
	errs := append([]error{runErr}, closeAll(w.closers)...)
	if err := w.Observability.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	w.Logger.Info("worker shut down")
	return errors.Join(errs...)
}

func closeAll(closers []Closer) []error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return cfg.ShutdownTimeout
}
