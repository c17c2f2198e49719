// Command depthbot trades order-book imbalance on a single spot instrument,
// either live against the venue or by replaying a recorded depth log.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alanyoungcy/depthbot/internal/app"
	"github.com/alanyoungcy/depthbot/internal/config"
	"github.com/alanyoungcy/depthbot/internal/crypto"
)

type flags struct {
	config    string
	mode      string
	replay    string
	tailFills bool
	encryptTo string
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.config, "config", "config.toml", "path to configuration file")
	flag.StringVar(&f.mode, "mode", "", "override the configured mode (live or replay)")
	flag.StringVar(&f.replay, "replay", "", "replay this log (path, s3://key or s3://prefix/) instead of the configured one")
	flag.BoolVar(&f.tailFills, "tail-fills", false, "print fills from the Redis fill channel until interrupted")
	flag.StringVar(&f.encryptTo, "encrypt-secret", "", "seal DEPTHBOT_VENUE_API_SECRET with DEPTHBOT_VENUE_SECRET_PASSWORD into this file and exit")
	flag.Parse()
	return f
}

func main() {
	os.Exit(run(parseFlags()))
}

func run(f flags) int {
	if f.encryptTo != "" {
		if err := encryptSecret(f.encryptTo); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt secret: %v\n", err)
			return 1
		}
		return 0
	}

	bootLog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg, err := config.Load(f.config)
	if err != nil {
		bootLog.Error("failed to load config", slog.String("path", f.config), slog.String("error", err.Error()))
		return 1
	}
	if f.mode != "" {
		cfg.Mode = f.mode
	}
	if f.replay != "" {
		cfg.Replay.Path = f.replay
	}

	logger, closeLog := newLogger(cfg.LogLevel, cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}

	a := app.New(cfg, logger)
	defer a.Close()
	logger.Info("depthbot starting",
		slog.String("run_id", a.RunID()),
		slog.String("mode", cfg.Mode),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	entry := a.Run
	if f.tailFills {
		entry = a.TailFills
	}
	switch err := entry(ctx); {
	case err == nil:
		logger.Info("depthbot stopped")
	case errors.Is(err, context.Canceled):
		logger.Info("depthbot shut down on signal")
	default:
		logger.Error("depthbot failed", slog.String("run_id", a.RunID()), slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	return 0
}

// newLogger builds the JSON logger. With log.file set, output is duplicated
// into a size-rotated file.
func newLogger(level string, lc config.LogConfig) (*slog.Logger, func()) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if lc.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAgeDays,
			Compress:   lc.Compress,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = func() { _ = rotator.Close() }
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})), closeFn
}

func encryptSecret(path string) error {
	secret := os.Getenv("DEPTHBOT_VENUE_API_SECRET")
	password := os.Getenv("DEPTHBOT_VENUE_SECRET_PASSWORD")
	if secret == "" || password == "" {
		return errors.New("DEPTHBOT_VENUE_API_SECRET and DEPTHBOT_VENUE_SECRET_PASSWORD must be set")
	}
	sealed, err := crypto.EncryptSecret(secret, password)
	if err != nil {
		return err
	}
	return os.WriteFile(path, sealed, 0o600)
}
