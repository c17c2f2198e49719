package risk

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

func newGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(Limits{MaxNotional: 2000, MaxPosition: 0.01})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		position   float64
		side       domain.Side
		price, qty float64
		want       Reason
	}{
		{"within limits", 0, domain.SideBuy, 90000, 0.002, ""},
		{"notional too large when flat", 0, domain.SideBuy, 90000, 0.03, NotionalTooLarge},
		{"notional checked on sells too", 0, domain.SideSell, 1_000_000, 0.005, NotionalTooLarge},
		{"long limit", 0.009, domain.SideBuy, 100, 0.002, PositionLimitExceeded},
		{"short limit", -0.009, domain.SideSell, 100, 0.002, PositionLimitExceeded},
		{"reducing a long is allowed", 0.01, domain.SideSell, 100, 0.002, ""},
		{"exactly at limit is allowed", 0.008, domain.SideBuy, 100, 0.002, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGate(t)
			g.position = tt.position
			err := g.Check(tt.side, tt.price, tt.qty)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected rejection: %v", err)
				}
				return
			}
			var rej *Rejection
			if !errors.As(err, &rej) {
				t.Fatalf("err = %v, want *Rejection", err)
			}
			if rej.Reason != tt.want {
				t.Fatalf("reason = %s, want %s", rej.Reason, tt.want)
			}
			if !errors.Is(err, ErrRejected) {
				t.Fatal("rejection does not match ErrRejected")
			}
			if g.Position() != tt.position {
				t.Fatalf("Check mutated position: %v", g.Position())
			}
		})
	}
}

func TestRecordFill(t *testing.T) {
	g := newGate(t)
	g.RecordFill(domain.SideBuy, 0.004)
	g.RecordFill(domain.SideBuy, 0.004)
	g.RecordFill(domain.SideSell, 0.002)
	if got, want := g.Position(), 0.006; got < want-1e-12 || got > want+1e-12 {
		t.Fatalf("position = %v, want %v", got, want)
	}
	if err := g.Check(domain.SideBuy, 100, 0.005); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected position rejection, got %v", err)
	}
}

func TestNewGateRejectsBadLimits(t *testing.T) {
	if _, err := NewGate(Limits{MaxNotional: 0, MaxPosition: 1}); err == nil {
		t.Fatal("expected error for zero notional")
	}
	if _, err := NewGate(Limits{MaxNotional: 1, MaxPosition: -1}); err == nil {
		t.Fatal("expected error for negative position")
	}
}
