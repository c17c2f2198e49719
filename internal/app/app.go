// Package app provides the top-level lifecycle of depthbot. It wires the
// optional backends (metrics, Redis, PostgreSQL, object storage) and runs the
// live engine or the replay harness depending on the configured mode.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/alanyoungcy/depthbot/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	runID   string
	closers []func()
}

// New creates a new App from the given configuration and logger. Reports are
// written to stdout.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		out:    os.Stdout,
		runID:  uuid.NewString(),
	}
}

// RunID identifies this process run in logs, fills and the runs table.
func (a *App) RunID() string { return a.runID }

// Run wires dependencies, runs the configured mode to completion and returns
// its error. Cleanup happens in Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("run_id", a.runID),
		slog.String("symbol", a.cfg.Venue.Symbol),
	)

	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}

	switch strings.ToLower(a.cfg.Mode) {
	case "live":
		return a.LiveMode(ctx, deps)
	case "replay":
		return a.ReplayMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// TailFills prints every fill published on the Redis fill channel until ctx
// is cancelled.
func (a *App) TailFills(ctx context.Context) error {
	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}
	if deps.FillFeed == nil {
		return fmt.Errorf("app: tail fills: redis is not enabled")
	}
	fills, err := deps.FillFeed.SubscribeFills(ctx)
	if err != nil {
		return fmt.Errorf("app: tail fills: %w", err)
	}
	a.logger.InfoContext(ctx, "tailing fills", slog.String("channel", deps.FillFeed.Channel()))
	for f := range fills {
		fmt.Fprintf(a.out, "%s run=%s seq=%d %s %.4f @ %.2f position=%.4f order=%s\n",
			f.Time.Format("15:04:05.000"), f.RunID, f.Seq, f.Side, f.Quantity, f.Price, f.Position, f.OrderID)
	}
	return ctx.Err()
}

func (a *App) wire(ctx context.Context) (*Dependencies, error) {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	return deps, nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
