package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/depthbot/internal/blob/s3"
	"github.com/alanyoungcy/depthbot/internal/book"
	"github.com/alanyoungcy/depthbot/internal/config"
	"github.com/alanyoungcy/depthbot/internal/crypto"
	"github.com/alanyoungcy/depthbot/internal/domain"
	"github.com/alanyoungcy/depthbot/internal/engine"
	"github.com/alanyoungcy/depthbot/internal/executor"
	"github.com/alanyoungcy/depthbot/internal/feed"
	"github.com/alanyoungcy/depthbot/internal/platform/binance"
	"github.com/alanyoungcy/depthbot/internal/risk"
	"github.com/alanyoungcy/depthbot/internal/server"
	"github.com/alanyoungcy/depthbot/internal/server/ws"
	"github.com/alanyoungcy/depthbot/internal/strategy"
)

// journalTimeout bounds the run-table writes made outside the run context.
const journalTimeout = 10 * time.Second

// LiveMode streams depth updates from the venue, records them, and submits
// orders (or logs them when dry_run is set) until ctx is cancelled or the
// stream fails.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	cfg := a.cfg
	symbol := cfg.Venue.Symbol
	a.logger.InfoContext(ctx, "starting live mode", slog.Bool("dry_run", cfg.Venue.DryRun))

	auth, err := a.venueAuth()
	if err != nil {
		return err
	}
	client := binance.NewClient(binance.ClientConfig{
		BaseURL:         cfg.Venue.RestURL,
		Timeout:         cfg.Venue.RequestTimeout.Duration,
		OrdersPerSecond: cfg.Venue.OrdersPerSecond,
		Burst:           cfg.Venue.OrderBurst,
		BreakerFailures: uint32(cfg.Venue.BreakerFailures),
		BreakerCooldown: cfg.Venue.BreakerCooldown.Duration,
	}, auth, a.logger)

	var gateway executor.OrderGateway = client
	if cfg.Venue.DryRun {
		gateway = executor.NewDryRunGateway(a.logger)
	}

	bk, err := newBook(cfg.Book)
	if err != nil {
		return err
	}
	signal, err := newSignal(cfg.Signal, "")
	if err != nil {
		return err
	}
	gate, err := newGate(cfg.Risk)
	if err != nil {
		return err
	}

	var hub *ws.Hub
	var extraBuses []domain.FillBus
	if cfg.Metrics.Enabled {
		hub = ws.NewHub(nil, a.logger)
		extraBuses = append(extraBuses, hub)
	}

	pipe, err := engine.New(engine.Config{
		RunID:         a.runID,
		Mode:          "live",
		Symbol:        symbol,
		ProgressEvery: cfg.Metrics.ProgressEvery,
		DefaultMark:   cfg.Execution.DefaultMarkPrice,

		JournalQueue:   cfg.Execution.JournalQueue,
		JournalTimeout: cfg.Execution.JournalTimeout.Duration,
	}, engine.Deps{
		Book:      bk,
		Signal:    signal,
		Sink:      executor.NewLiveSink(symbol, gateway, deps.Metrics, a.logger),
		Gate:      gate,
		Metrics:   deps.Metrics,
		FillBus:   liveFillBus(deps, extraBuses...),
		FillStore: deps.FillStore,
		TopCache:  deps.TopCache,
		Clock:     time.Now,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("app: live pipeline: %w", err)
	}

	// Connect before fetching the snapshot so that no diff published after
	// the snapshot is missed.
	stream := feed.NewWSDriver(binance.DepthStreamURL(cfg.Venue.WsURL, symbol), cfg.Venue.ReadTimeout.Duration, a.logger)
	if err := stream.Connect(ctx); err != nil {
		return fmt.Errorf("app: connect depth stream: %w", err)
	}
	a.closers = append(a.closers, func() { _ = stream.Close() })

	snap, err := client.DepthSnapshot(ctx, symbol, cfg.Venue.SnapshotLimit)
	switch {
	case errors.Is(err, domain.ErrSnapshotUnavailable):
		a.logger.WarnContext(ctx, "starting from an empty book", slog.String("error", err.Error()))
	case err != nil:
		return fmt.Errorf("app: depth snapshot: %w", err)
	default:
		if err := pipe.Seed(snap); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	var driver feed.Driver = stream
	if cfg.Recorder.Enabled {
		var archiver *s3blob.Archiver
		if cfg.Recorder.Archive && deps.BlobWriter != nil {
			archiver = s3blob.NewArchiver(s3blob.ArchiverConfig{
				Path:     cfg.Recorder.Path,
				Prefix:   cfg.Recorder.ArchivePrefix,
				Symbol:   symbol,
				RunID:    a.runID,
				Interval: cfg.Recorder.ArchiveInterval.Duration,
			}, deps.BlobWriter, a.logger)
			if err := archiver.Start(); err != nil {
				return err
			}
		}

		rec, err := feed.OpenRecorder(cfg.Recorder.Path, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = rec.Close() })
		driver = feed.NewRecordingDriver(stream, rec, a.logger)

		if archiver != nil {
			a.logger.InfoContext(ctx, "archiving recorded log", slog.String("prefix", archiver.Prefix()))
			g.Go(func() error {
				return archiver.Run(gctx)
			})
		}
	}

	if hub != nil {
		hub.SetStatus(pipe)
		srv := server.New(server.Config{
			Addr:   cfg.Metrics.Addr,
			APIKey: cfg.Metrics.APIKey,
		}, server.Routes{
			Metrics: deps.Metrics.Handler(),
			Status:  pipe,
			Hub:     hub,
		}, a.logger)
		g.Go(func() error {
			return hub.Run(gctx)
		})
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if deps.Notifier.Enabled() {
		g.Go(func() error {
			return deps.Notifier.Run(gctx)
		})
	}

	a.startRun(ctx, deps, pipe.Report())
	g.Go(func() error {
		return pipe.Run(gctx, driver)
	})

	err = g.Wait()
	report := pipe.Report()
	a.finishRun(deps, report, err)
	a.logger.Info("live run finished",
		slog.Int64("processed", report.Processed),
		slog.Int64("malformed", report.Malformed),
		slog.Int64("trades", report.Trades),
		slog.Int64("rejected", report.Rejected),
		slog.Float64("position", pipe.Position()),
	)
	return err
}

// ReplayMode runs a recorded log through the pipeline against the simulated
// ledger and writes the final report.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	cfg := a.cfg
	a.logger.InfoContext(ctx, "starting replay mode",
		slog.String("path", cfg.Replay.Path),
		slog.Bool("apply_risk", cfg.Replay.ApplyRisk),
	)

	src, err := feed.OpenReplaySource(ctx, cfg.Replay.Path, deps.BlobReader)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	defer src.Close()

	bk, err := newBook(cfg.Book)
	if err != nil {
		return err
	}
	signal, err := newSignal(cfg.Signal, cfg.Replay.CooldownPolicy)
	if err != nil {
		return err
	}
	var gate *risk.Gate
	if cfg.Replay.ApplyRisk {
		if gate, err = newGate(cfg.Risk); err != nil {
			return err
		}
	}

	ledger := executor.NewLedger(cfg.Execution.StartingCash)
	pipe, err := engine.New(engine.Config{
		RunID:         a.runID,
		Mode:          "replay",
		Symbol:        cfg.Venue.Symbol,
		ProgressEvery: cfg.Replay.ProgressEvery,
		DefaultMark:   cfg.Execution.DefaultMarkPrice,

		JournalQueue:   cfg.Execution.JournalQueue,
		JournalTimeout: cfg.Execution.JournalTimeout.Duration,
	}, engine.Deps{
		Book:      bk,
		Signal:    signal,
		Sink:      executor.NewLedgerSink(ledger),
		Gate:      gate,
		Ledger:    ledger,
		Metrics:   deps.Metrics,
		FillBus:   deps.FillBus,
		FillStore: deps.FillStore,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("app: replay pipeline: %w", err)
	}

	a.startRun(ctx, deps, pipe.Report())
	runErr := pipe.Run(ctx, feed.NewReplayDriver(src))
	report := pipe.Report()
	a.finishRun(deps, report, runErr)
	if runErr != nil {
		return runErr
	}
	return engine.WriteReport(a.out, report)
}

func (a *App) venueAuth() (*crypto.HMACAuth, error) {
	v := a.cfg.Venue
	if v.DryRun {
		return nil, nil
	}
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		Raw:           v.APISecret,
		EncryptedPath: v.EncryptedSecretPath,
		Password:      v.SecretPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: venue credentials: %w", err)
	}
	return &crypto.HMACAuth{Key: v.APIKey, Secret: secret, RecvWindow: v.RecvWindow.Duration}, nil
}

// startRun and finishRun journal the run when PostgreSQL is enabled and
// alert operators. Failures are logged and never stop trading.
func (a *App) startRun(ctx context.Context, deps *Dependencies, r domain.RunReport) {
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()
	if deps.RunStore != nil {
		if err := deps.RunStore.StartRun(ctx, r); err != nil {
			a.logger.Error("failed to journal run start", slog.String("error", err.Error()))
		}
	}
	_ = deps.Notifier.RunStarted(ctx, r)
}

func (a *App) finishRun(deps *Dependencies, r domain.RunReport, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if deps.RunStore != nil {
		if err := deps.RunStore.FinishRun(ctx, r); err != nil {
			a.logger.Error("failed to journal run finish", slog.String("error", err.Error()))
		}
	}
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	_ = deps.Notifier.RunFinished(ctx, r, runErr)
}

func newBook(cfg config.BookConfig) (*book.Book, error) {
	arena, err := book.NewArena(cfg.LevelsPerSide)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return book.New(arena), nil
}

// newSignal builds the generator from cfg. A non-empty cooldown overrides
// the configured cooldown policy.
func newSignal(cfg config.SignalConfig, cooldown string) (*strategy.Imbalance, error) {
	sc := strategy.Config{
		BuyAbove:         cfg.BuyAbove,
		SellBelow:        cfg.SellBelow,
		Quantity:         cfg.Quantity,
		Pricing:          strategy.PricingPolicy(cfg.Pricing),
		Cooldown:         strategy.CooldownPolicy(cfg.CooldownPolicy),
		FilledCooldown:   cfg.FilledCooldown,
		RejectedCooldown: cfg.RejectedCooldown,
		FixedCooldown:    cfg.FixedCooldown,
	}
	if cooldown != "" {
		sc.Cooldown = strategy.CooldownPolicy(cooldown)
	}
	s, err := strategy.NewImbalance(sc)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return s, nil
}

func newGate(cfg config.RiskConfig) (*risk.Gate, error) {
	g, err := risk.NewGate(risk.Limits{MaxNotional: cfg.MaxNotional, MaxPosition: cfg.MaxPosition})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return g, nil
}
