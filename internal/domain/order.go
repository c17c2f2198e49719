package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether an intent or order buys or sells the instrument.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() float64 {
	if s == SideBuy {
		return 1
	}
	return -1
}

// TradeIntent is produced by the signal generator and consumed immediately
// by the risk gate and execution sink. It is never persisted.
type TradeIntent struct {
	Side     Side
	Price    float64
	Quantity float64
}

// Notional returns price * quantity.
func (t TradeIntent) Notional() float64 {
	return t.Price * t.Quantity
}

// OrderTypeLimit is the only order type the bot submits.
const OrderTypeLimit = "LIMIT"

// OrderPayload is the order-submission body sent to the venue.
type OrderPayload struct {
	Symbol   string `json:"symbol"`
	Side     Side   `json:"side"`
	Type     string `json:"type"`
	Quantity string `json:"quantity"` // 4 decimal places
	Price    string `json:"price"`    // 2 decimal places
}

// NewOrderPayload renders an intent as a LIMIT order payload for symbol.
func NewOrderPayload(symbol string, intent TradeIntent) OrderPayload {
	return OrderPayload{
		Symbol:   symbol,
		Side:     intent.Side,
		Type:     OrderTypeLimit,
		Quantity: decimal.NewFromFloat(intent.Quantity).StringFixed(4),
		Price:    decimal.NewFromFloat(intent.Price).StringFixed(2),
	}
}

// OrderAck is the venue acknowledgment of a submitted order.
type OrderAck struct {
	OrderID       string
	ClientOrderID string
	Status        string
}

// Outcome describes the result of realizing an intent.
type Outcome struct {
	Intent  TradeIntent
	OrderID string
	// Latency is the elapsed time from intent to acknowledgment. Always zero
	// for simulated fills so that replay stays independent of the wall clock.
	Latency time.Duration
}
