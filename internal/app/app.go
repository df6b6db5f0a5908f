// Package app wires the volatility pipeline from configuration and runs one
// command: backfill, hourly, or markets.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyvol/internal/config"
	"github.com/alanyoungcy/polyvol/internal/notify"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	deps    *Dependencies
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// dependencies wires on first use so that each command only pays for what it
// touches once.
func (a *App) dependencies(ctx context.Context) (*Dependencies, error) {
	if a.deps != nil {
		return a.deps, nil
	}
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	a.deps = deps
	return deps, nil
}

// reportFailure sends a run_failed notification when a command errors.
func (a *App) reportFailure(ctx context.Context, command string, err error) {
	if err == nil || a.deps == nil || a.deps.Notifier == nil {
		return
	}
	title := fmt.Sprintf("polyvol %s failed", command)
	if nerr := a.deps.Notifier.Notify(ctx, notify.EventRunFailed, title, err.Error()); nerr != nil {
		a.logger.WarnContext(ctx, "failure notification not delivered", slog.String("error", nerr.Error()))
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.deps = nil
}
