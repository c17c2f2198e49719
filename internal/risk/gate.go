// Package risk implements the pre-trade risk gate: notional and net
// position limits for a single instrument.
package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// ErrRejected is matched by every *Rejection via errors.Is.
var ErrRejected = errors.New("risk rejected")

// Reason identifies why an intent was rejected.
type Reason string

const (
	NotionalTooLarge      Reason = "NotionalTooLarge"
	PositionLimitExceeded Reason = "PositionLimitExceeded"
)

// Rejection is returned by Gate.Check. It is a normal control-flow outcome,
// not a fault.
type Rejection struct {
	Reason    Reason
	Notional  float64
	Projected float64
	Limit     float64
}

func (r *Rejection) Error() string {
	switch r.Reason {
	case NotionalTooLarge:
		return fmt.Sprintf("risk: notional %.2f exceeds max %.2f", r.Notional, r.Limit)
	case PositionLimitExceeded:
		return fmt.Sprintf("risk: projected position %.8f exceeds limit %.8f", r.Projected, r.Limit)
	default:
		return "risk: " + string(r.Reason)
	}
}

// Is lets errors.Is(err, ErrRejected) match any rejection.
func (r *Rejection) Is(target error) bool {
	return target == ErrRejected
}

// Limits configures the gate.
type Limits struct {
	MaxNotional float64
	MaxPosition float64
}

// Gate validates intents and tracks the running net position. It is owned by
// the pipeline and not safe for concurrent use.
type Gate struct {
	limits   Limits
	position float64
}

// NewGate creates a gate with a flat position.
func NewGate(limits Limits) (*Gate, error) {
	if limits.MaxNotional <= 0 {
		return nil, fmt.Errorf("risk: max notional must be > 0, got %v", limits.MaxNotional)
	}
	if limits.MaxPosition <= 0 {
		return nil, fmt.Errorf("risk: max position must be > 0, got %v", limits.MaxPosition)
	}
	return &Gate{limits: limits}, nil
}

// Check returns nil when the trade may proceed, or a *Rejection. It never
// mutates the tracked position.
func (g *Gate) Check(side domain.Side, price, qty float64) error {
	notional := price * qty
	if notional > g.limits.MaxNotional {
		return &Rejection{Reason: NotionalTooLarge, Notional: notional, Limit: g.limits.MaxNotional}
	}
	projected := g.position + side.Sign()*qty
	if math.Abs(projected) > g.limits.MaxPosition {
		return &Rejection{Reason: PositionLimitExceeded, Notional: notional, Projected: projected, Limit: g.limits.MaxPosition}
	}
	return nil
}

// CheckIntent is Check applied to an intent.
func (g *Gate) CheckIntent(intent domain.TradeIntent) error {
	return g.Check(intent.Side, intent.Price, intent.Quantity)
}

// RecordFill applies a realized fill to the tracked position. Call it once
// per realized trade and never speculatively.
func (g *Gate) RecordFill(side domain.Side, qty float64) {
	g.position += side.Sign() * qty
}

// Position returns the current signed net position.
func (g *Gate) Position() float64 { return g.position }

// Limits returns the configured limits.
func (g *Gate) Limits() Limits { return g.limits }
