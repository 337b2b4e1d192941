// Package app wires the bot together and owns its lifecycle: the trading
// loop, the exit monitors, the transaction bumper, the archive job, and the
// HTTP API all start here and shut down together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dexbot/internal/config"
)

// shutdownGrace bounds how long the HTTP server may take to drain
// in-flight requests once the root context is cancelled.
const shutdownGrace = 10 * time.Second

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the
// long-running components, and blocks until the context is cancelled or a
// component fails. On return the caller should invoke Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Bool("auto_start", a.cfg.AutoStart),
	)
	a.logger.DebugContext(ctx, "active configuration",
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Re-arm trailing stops for positions that survived a restart before
	// the trading loop can open new ones.
	if err := deps.Trailing.Resume(ctx); err != nil {
		return fmt.Errorf("app: resume trailing stops: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.Hub.Run(gctx) })
	g.Go(func() error { return deps.Bumper.Run(gctx) })
	g.Go(func() error { return deps.Ladder.Run(gctx) })
	g.Go(func() error { return deps.Trailing.Run(gctx) })
	g.Go(func() error { return deps.Runner.Run(gctx) })

	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(gctx) })
	}

	if deps.Server != nil {
		g.Go(deps.Server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return deps.Server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
