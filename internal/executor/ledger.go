package executor

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// DefaultStartingCash is the replay wallet balance in quote currency.
const DefaultStartingCash = 10000.0

// Ledger is the simulated wallet used in replay. Cash and inventory are held
// as decimals so that long runs do not accumulate float drift.
type Ledger struct {
	startingCash decimal.Decimal
	cash         decimal.Decimal
	inventory    decimal.Decimal
	trades       int64
}

// NewLedger creates a ledger holding startingCash and no inventory.
func NewLedger(startingCash float64) *Ledger {
	c := decimal.NewFromFloat(startingCash)
	return &Ledger{startingCash: c, cash: c}
}

// Apply settles an intent at its own price: a buy moves p*q from cash into
// inventory, a sell the reverse. Cash and inventory may go negative.
func (l *Ledger) Apply(intent domain.TradeIntent) {
	p := decimal.NewFromFloat(intent.Price)
	q := decimal.NewFromFloat(intent.Quantity)
	notional := p.Mul(q)
	switch intent.Side {
	case domain.SideBuy:
		l.cash = l.cash.Sub(notional)
		l.inventory = l.inventory.Add(q)
	case domain.SideSell:
		l.cash = l.cash.Add(notional)
		l.inventory = l.inventory.Sub(q)
	default:
		return
	}
	l.trades++
}

// Equity returns cash + inventory * mark.
func (l *Ledger) Equity(mark float64) float64 {
	eq := l.cash.Add(l.inventory.Mul(decimal.NewFromFloat(mark)))
	return eq.InexactFloat64()
}

// StartingEquity returns the initial cash balance.
func (l *Ledger) StartingEquity() float64 { return l.startingCash.InexactFloat64() }

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 { return l.cash.InexactFloat64() }

// Inventory returns the signed base-asset holding.
func (l *Ledger) Inventory() float64 { return l.inventory.InexactFloat64() }

// TradeCount returns the number of applied trades.
func (l *Ledger) TradeCount() int64 { return l.trades }

// LedgerSink realizes every intent immediately against a Ledger. It reads no
// clock, so replay output depends only on the input records.
type LedgerSink struct {
	ledger *Ledger
}

// NewLedgerSink creates a sink backed by ledger.
func NewLedgerSink(ledger *Ledger) *LedgerSink {
	return &LedgerSink{ledger: ledger}
}

// Realize applies the intent and returns a deterministic order id.
func (s *LedgerSink) Realize(_ context.Context, intent domain.TradeIntent) (domain.Outcome, error) {
	s.ledger.Apply(intent)
	return domain.Outcome{
		Intent:  intent,
		OrderID: "sim-" + strconv.FormatInt(s.ledger.TradeCount(), 10),
	}, nil
}

// Ledger returns the backing ledger.
func (s *LedgerSink) Ledger() *Ledger { return s.ledger }
