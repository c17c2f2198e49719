package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alanyoungcy/depthbot/internal/config"
	"github.com/alanyoungcy/depthbot/internal/domain"
	"github.com/alanyoungcy/depthbot/internal/notify"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, mutate func(*config.Config)) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Metrics.Enabled = false
	mutate(&cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	a := New(&cfg, quietLogger())
	var out bytes.Buffer
	a.out = &out
	t.Cleanup(a.Close)
	return a, &out
}

func TestReplayModeWritesReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market_data.log")
	log := strings.Join([]string{
		`{"e":"depthUpdate","b":[["100.00","9.0"]],"a":[["101.00","1.0"]]}`,
		`not json`,
		``,
		`{"b":[["100.00","0"]],"a":[]}`,
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(log), 0o644); err != nil {
		t.Fatal(err)
	}

	a, out := newTestApp(t, func(c *config.Config) {
		c.Mode = "replay"
		c.Replay.Path = path
	})
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"=== BACKTEST RESULTS (BTCUSD) ===",
		"Updates Processed: 3",
		"Malformed Skipped: 1",
		"Trades Executed:   1",
		"Starting Equity:   $10000.00",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestReplayModeMissingLog(t *testing.T) {
	a, _ := newTestApp(t, func(c *config.Config) {
		c.Replay.Path = filepath.Join(t.TempDir(), "absent.log")
	})
	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing log")
	}
}

func TestReplayModeRiskOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market_data.log")
	if err := os.WriteFile(path, []byte(`{"b":[["100","9"]],"a":[["101","1"]]}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	a, out := newTestApp(t, func(c *config.Config) {
		c.Replay.Path = path
		c.Replay.ApplyRisk = true
		c.Risk.MaxNotional = 0.1
	})
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Risk Rejections:   1") {
		t.Errorf("expected a rejection:\n%s", out.String())
	}
}

func TestTailFillsRequiresRedis(t *testing.T) {
	a, _ := newTestApp(t, func(*config.Config) {})
	if err := a.TailFills(context.Background()); err == nil || !strings.Contains(err.Error(), "redis") {
		t.Fatalf("err = %v", err)
	}
}

func TestUnsupportedMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "paper"
	a := New(&cfg, quietLogger())
	defer a.Close()
	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type countingBus struct{ n int }

func (b *countingBus) PublishFill(context.Context, domain.Fill) error {
	b.n++
	return nil
}

func TestLiveFillBus(t *testing.T) {
	disabled := notify.NewNotifier(nil, nil, quietLogger())
	if bus := liveFillBus(&Dependencies{Notifier: disabled}); bus != nil {
		t.Errorf("expected nil bus, got %T", bus)
	}

	redisBus := &countingBus{}
	if bus := liveFillBus(&Dependencies{FillBus: redisBus, Notifier: disabled}); bus != domain.FillBus(redisBus) {
		t.Errorf("single bus should be returned as is, got %T", bus)
	}

	sender := notify.NewNotifier([]notify.Sender{nopSender{}}, nil, quietLogger())
	bus := liveFillBus(&Dependencies{FillBus: redisBus, Notifier: sender})
	if _, ok := bus.(fanoutBus); !ok {
		t.Fatalf("expected fanout, got %T", bus)
	}
	if err := bus.PublishFill(context.Background(), domain.Fill{}); err != nil {
		t.Fatal(err)
	}
	if redisBus.n != 1 {
		t.Errorf("redis bus published %d fills", redisBus.n)
	}
}

type nopSender struct{}

func (nopSender) Send(context.Context, string, string) error { return nil }
func (nopSender) Name() string                               { return "nop" }

func TestNewSignalCooldownOverride(t *testing.T) {
	s, err := newSignal(config.Defaults().Signal, "fixed")
	if err != nil {
		t.Fatal(err)
	}
	if s.Config().Cooldown != "fixed" {
		t.Errorf("cooldown = %q", s.Config().Cooldown)
	}
	if _, err := newSignal(config.SignalConfig{}, ""); err == nil {
		t.Error("expected error for zero config")
	}
}
