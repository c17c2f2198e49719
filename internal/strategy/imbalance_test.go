package strategy

import (
	"testing"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

type fakeView struct {
	bid, ask       float64
	hasBid, hasAsk bool
	imb            float64
}

func (f fakeView) BestBid() (float64, bool) { return f.bid, f.hasBid }
func (f fakeView) BestAsk() (float64, bool) { return f.ask, f.hasAsk }
func (f fakeView) Imbalance() float64       { return f.imb }

func book(imb float64) fakeView {
	return fakeView{bid: 100, ask: 101, hasBid: true, hasAsk: true, imb: imb}
}

func mustImbalance(t *testing.T, cfg Config) *Imbalance {
	t.Helper()
	s, err := NewImbalance(cfg)
	if err != nil {
		t.Fatalf("NewImbalance: %v", err)
	}
	return s
}

func TestEvaluateSignals(t *testing.T) {
	tests := []struct {
		name     string
		view     fakeView
		pricing  PricingPolicy
		wantOK   bool
		wantSide domain.Side
		wantPx   float64
	}{
		{"neutral band", book(3.0 / 7.0), PricingAggressive, false, "", 0},
		{"upper band edge is neutral", book(0.8), PricingAggressive, false, "", 0},
		{"lower band edge is neutral", book(0.2), PricingAggressive, false, "", 0},
		{"buy aggressive", book(0.9), PricingAggressive, true, domain.SideBuy, 101},
		{"sell aggressive", book(0.1), PricingAggressive, true, domain.SideSell, 100},
		{"buy passive", book(0.9), PricingPassive, true, domain.SideBuy, 100},
		{"sell passive", book(0.1), PricingPassive, true, domain.SideSell, 101},
		{"locked book", fakeView{bid: 100, ask: 100, hasBid: true, hasAsk: true, imb: 0.9}, PricingAggressive, false, "", 0},
		{"crossed book", fakeView{bid: 101, ask: 100, hasBid: true, hasAsk: true, imb: 0.9}, PricingAggressive, false, "", 0},
		{"empty ask side", fakeView{bid: 100, hasBid: true, imb: 0.9}, PricingAggressive, false, "", 0},
		{"empty book", fakeView{imb: 0.5}, PricingAggressive, false, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Pricing = tt.pricing
			s := mustImbalance(t, cfg)
			intent, ok := s.Evaluate(tt.view)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v (intent %+v)", ok, tt.wantOK, intent)
			}
			if !ok {
				return
			}
			if intent.Side != tt.wantSide || intent.Price != tt.wantPx || intent.Quantity != cfg.Quantity {
				t.Fatalf("intent = %+v, want side %s price %v qty %v", intent, tt.wantSide, tt.wantPx, cfg.Quantity)
			}
		})
	}
}

func TestCooldownSuppressesSignals(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilledCooldown = 3
	cfg.RejectedCooldown = 5
	s := mustImbalance(t, cfg)

	if _, ok := s.Evaluate(book(0.9)); !ok {
		t.Fatal("expected first signal")
	}
	s.OnFilled()

	// Cooldown 3: updates 1 and 2 are suppressed, update 3 brings it to zero
	// and is eligible again.
	for i := 1; i <= 2; i++ {
		if _, ok := s.Evaluate(book(0.9)); ok {
			t.Fatalf("update %d: signal during cooldown", i)
		}
	}
	if _, ok := s.Evaluate(book(0.9)); !ok {
		t.Fatal("expected signal once cooldown expired")
	}

	s.OnRejected()
	if got := s.TicksRemaining(); got != 5 {
		t.Fatalf("TicksRemaining after rejection = %d, want 5", got)
	}
}

func TestCooldownDecrementsOnNeutralUpdates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilledCooldown = 2
	s := mustImbalance(t, cfg)
	s.OnFilled()
	s.Evaluate(fakeView{})
	s.Evaluate(book(0.5))
	if got := s.TicksRemaining(); got != 0 {
		t.Fatalf("TicksRemaining = %d, want 0", got)
	}
}

func TestFixedCooldownIgnoresOutcome(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cooldown = CooldownFixed
	cfg.FixedCooldown = 100
	s := mustImbalance(t, cfg)
	s.OnFilled()
	if got := s.TicksRemaining(); got != 100 {
		t.Fatalf("after fill = %d, want 100", got)
	}
	s.OnRejected()
	if got := s.TicksRemaining(); got != 100 {
		t.Fatalf("after reject = %d, want 100", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlapping thresholds", func(c *Config) { c.SellBelow, c.BuyAbove = 0.6, 0.4 }},
		{"zero quantity", func(c *Config) { c.Quantity = 0 }},
		{"unknown pricing", func(c *Config) { c.Pricing = "mid" }},
		{"unknown cooldown", func(c *Config) { c.Cooldown = "none" }},
		{"negative cooldown", func(c *Config) { c.FixedCooldown = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
