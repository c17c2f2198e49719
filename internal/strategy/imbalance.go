// Package strategy turns depth-book reads into directional trade intents.
package strategy

import (
	"errors"
	"fmt"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// PricingPolicy selects the reference price attached to an intent.
type PricingPolicy string

const (
	// PricingPassive prices at the near touch: Buy at best bid, Sell at best ask.
	PricingPassive PricingPolicy = "passive"
	// PricingAggressive prices at the touch being consumed: Buy at best ask,
	// Sell at best bid.
	PricingAggressive PricingPolicy = "aggressive"
)

// CooldownPolicy selects how the cooldown is reset after an intent.
type CooldownPolicy string

const (
	// CooldownSplit uses FilledCooldown after a realized trade and the longer
	// RejectedCooldown after a risk rejection or failed submission.
	CooldownSplit CooldownPolicy = "split"
	// CooldownFixed applies FixedCooldown whatever the outcome.
	CooldownFixed CooldownPolicy = "fixed"
)

const (
	defaultBuyAbove         = 0.8
	defaultSellBelow        = 0.2
	defaultFilledCooldown   = 2000
	defaultRejectedCooldown = 5000
	defaultFixedCooldown    = 100
	defaultQuantity         = 0.002
)

// Config holds the imbalance signal parameters.
type Config struct {
	BuyAbove         float64
	SellBelow        float64
	Quantity         float64
	Pricing          PricingPolicy
	Cooldown         CooldownPolicy
	FilledCooldown   int
	RejectedCooldown int
	FixedCooldown    int
}

// DefaultConfig returns the live-engine defaults.
func DefaultConfig() Config {
	return Config{
		BuyAbove:         defaultBuyAbove,
		SellBelow:        defaultSellBelow,
		Quantity:         defaultQuantity,
		Pricing:          PricingAggressive,
		Cooldown:         CooldownSplit,
		FilledCooldown:   defaultFilledCooldown,
		RejectedCooldown: defaultRejectedCooldown,
		FixedCooldown:    defaultFixedCooldown,
	}
}

// Validate checks thresholds, policies and cooldown constants.
func (c Config) Validate() error {
	var errs []error
	if !(c.SellBelow >= 0 && c.SellBelow < c.BuyAbove && c.BuyAbove <= 1) {
		errs = append(errs, fmt.Errorf("thresholds must satisfy 0 <= sell_below < buy_above <= 1, got %v / %v", c.SellBelow, c.BuyAbove))
	}
	if c.Quantity <= 0 {
		errs = append(errs, fmt.Errorf("quantity must be > 0, got %v", c.Quantity))
	}
	switch c.Pricing {
	case PricingPassive, PricingAggressive:
	default:
		errs = append(errs, fmt.Errorf("unknown pricing policy %q (valid: passive, aggressive)", c.Pricing))
	}
	switch c.Cooldown {
	case CooldownSplit, CooldownFixed:
	default:
		errs = append(errs, fmt.Errorf("unknown cooldown policy %q (valid: split, fixed)", c.Cooldown))
	}
	if c.FilledCooldown < 0 || c.RejectedCooldown < 0 || c.FixedCooldown < 0 {
		errs = append(errs, errors.New("cooldowns must be >= 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	return nil
}

// DepthView is the read side of the depth book the generator consults.
type DepthView interface {
	BestBid() (float64, bool)
	BestAsk() (float64, bool)
	Imbalance() float64
}

// Imbalance is a cooldown-gated state machine producing at most one intent
// per eligible update. The cooldown counter is owned exclusively by it.
type Imbalance struct {
	cfg            Config
	ticksRemaining int
}

// NewImbalance creates a generator that is immediately eligible.
func NewImbalance(cfg Config) (*Imbalance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Imbalance{cfg: cfg}, nil
}

// Name returns the strategy identifier.
func (s *Imbalance) Name() string { return "imbalance" }

// Evaluate is called once per processed update after the book has been
// refreshed. The cooldown is decremented on every call, whether or not an
// intent follows.
func (s *Imbalance) Evaluate(view DepthView) (domain.TradeIntent, bool) {
	if s.ticksRemaining > 0 {
		s.ticksRemaining--
	}
	if s.ticksRemaining != 0 {
		return domain.TradeIntent{}, false
	}

	// An empty, crossed or locked book never trades. This is also what keeps
	// the bot flat after a failed snapshot until real depth arrives.
	bid, okBid := view.BestBid()
	ask, okAsk := view.BestAsk()
	if !okBid || !okAsk || ask <= bid {
		return domain.TradeIntent{}, false
	}

	imb := view.Imbalance()
	var side domain.Side
	switch {
	case imb > s.cfg.BuyAbove:
		side = domain.SideBuy
	case imb < s.cfg.SellBelow:
		side = domain.SideSell
	default:
		return domain.TradeIntent{}, false
	}

	return domain.TradeIntent{
		Side:     side,
		Price:    s.price(side, bid, ask),
		Quantity: s.cfg.Quantity,
	}, true
}

func (s *Imbalance) price(side domain.Side, bid, ask float64) float64 {
	passive := s.cfg.Pricing == PricingPassive
	if side == domain.SideBuy {
		if passive {
			return bid
		}
		return ask
	}
	if passive {
		return ask
	}
	return bid
}

// OnFilled resets the cooldown after a realized trade.
func (s *Imbalance) OnFilled() {
	if s.cfg.Cooldown == CooldownFixed {
		s.ticksRemaining = s.cfg.FixedCooldown
		return
	}
	s.ticksRemaining = s.cfg.FilledCooldown
}

// OnRejected resets the cooldown after an intent that was not realized.
func (s *Imbalance) OnRejected() {
	if s.cfg.Cooldown == CooldownFixed {
		s.ticksRemaining = s.cfg.FixedCooldown
		return
	}
	s.ticksRemaining = s.cfg.RejectedCooldown
}

// TicksRemaining returns the current cooldown.
func (s *Imbalance) TicksRemaining() int { return s.ticksRemaining }

// Config returns the generator's configuration.
func (s *Imbalance) Config() Config { return s.cfg }
