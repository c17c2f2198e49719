// Package book maintains the depth view for a single instrument: two
// contiguous sorted sides of price levels drawn from a preallocated Arena.
//
// Bids are kept in strictly descending price order and asks in strictly
// ascending order. Every stored level has quantity > domain.Epsilon. The
// ordering is maintained on every mutation, not only at snapshot load.
package book

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// TopLevels is the number of levels per side aggregated by Imbalance.
const TopLevels = 5

// NeutralImbalance is returned when either side is empty.
const NeutralImbalance = 0.5

// Book is the depth book. It is not safe for concurrent use: the pipeline is
// its only writer and reader.
type Book struct {
	bids []domain.PriceLevel
	asks []domain.PriceLevel
}

// New creates an empty book whose sides live in arena.
func New(arena *Arena) *Book {
	return &Book{
		bids: arena.bids[:0],
		asks: arena.asks[:0],
	}
}

// Capacity returns the number of levels each side may hold.
func (b *Book) Capacity() int { return cap(b.bids) }

// ApplyBid applies a single bid delta.
func (b *Book) ApplyBid(price, qty float64) error {
	if err := validate(price, qty); err != nil {
		return err
	}
	levels, err := apply(b.bids, price, qty, true)
	b.bids = levels
	if err != nil {
		return fmt.Errorf("book: bid %v: %w", price, err)
	}
	return nil
}

// ApplyAsk applies a single ask delta.
func (b *Book) ApplyAsk(price, qty float64) error {
	if err := validate(price, qty); err != nil {
		return err
	}
	levels, err := apply(b.asks, price, qty, false)
	b.asks = levels
	if err != nil {
		return fmt.Errorf("book: ask %v: %w", price, err)
	}
	return nil
}

// ApplyUpdate applies every bid delta and then every ask delta of u. The
// whole update is validated first so a bad level leaves the book untouched.
func (b *Book) ApplyUpdate(u domain.DepthUpdate) error {
	for _, l := range u.Bids {
		if err := validate(l.Price, l.Quantity); err != nil {
			return err
		}
	}
	for _, l := range u.Asks {
		if err := validate(l.Price, l.Quantity); err != nil {
			return err
		}
	}
	for _, l := range u.Bids {
		if err := b.ApplyBid(l.Price, l.Quantity); err != nil {
			return err
		}
	}
	for _, l := range u.Asks {
		if err := b.ApplyAsk(l.Price, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshot discards all prior state and replaces both sides with the
// given levels, sorted into book order. Levels at or below Epsilon are
// dropped; when a price repeats, the last quantity wins.
func (b *Book) LoadSnapshot(bids, asks []domain.PriceLevel) error {
	for _, l := range bids {
		if err := validate(l.Price, l.Quantity); err != nil {
			return err
		}
	}
	for _, l := range asks {
		if err := validate(l.Price, l.Quantity); err != nil {
			return err
		}
	}

	newBids, err := load(b.bids[:0], bids, true)
	if err != nil {
		b.bids, b.asks = b.bids[:0], b.asks[:0]
		return fmt.Errorf("book: snapshot bids: %w", err)
	}
	newAsks, err := load(b.asks[:0], asks, false)
	if err != nil {
		b.bids, b.asks = b.bids[:0], b.asks[:0]
		return fmt.Errorf("book: snapshot asks: %w", err)
	}
	b.bids, b.asks = newBids, newAsks
	return nil
}

// Reset empties both sides without releasing arena memory.
func (b *Book) Reset() {
	b.bids = b.bids[:0]
	b.asks = b.asks[:0]
}

// BestBid returns the highest bid price, or (0, false) when there are no bids.
func (b *Book) BestBid() (float64, bool) {
	if len(b.bids) == 0 {
		return 0, false
	}
	return b.bids[0].Price, true
}

// BestAsk returns the lowest ask price, or (0, false) when there are no asks.
func (b *Book) BestAsk() (float64, bool) {
	if len(b.asks) == 0 {
		return 0, false
	}
	return b.asks[0].Price, true
}

// Mid returns the midpoint of the touch, or (0, false) unless both sides
// have depth.
func (b *Book) Mid() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Tradeable reports whether both sides have depth and the book is neither
// crossed nor locked.
func (b *Book) Tradeable() bool {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	return okBid && okAsk && ask > bid
}

// Imbalance returns bidVolume / (bidVolume + askVolume) over the top
// TopLevels of each side, or NeutralImbalance when either side is empty.
func (b *Book) Imbalance() float64 {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return NeutralImbalance
	}
	bidVol := topVolume(b.bids)
	askVol := topVolume(b.asks)
	return bidVol / (bidVol + askVol)
}

// Bids returns the bid side, best first. The slice aliases book memory and
// must not be modified or retained across updates.
func (b *Book) Bids() []domain.PriceLevel { return b.bids }

// Asks returns the ask side, best first. The slice aliases book memory and
// must not be modified or retained across updates.
func (b *Book) Asks() []domain.PriceLevel { return b.asks }

// Depth returns the number of stored levels per side.
func (b *Book) Depth() (bids, asks int) {
	return len(b.bids), len(b.asks)
}

func topVolume(levels []domain.PriceLevel) float64 {
	n := min(len(levels), TopLevels)
	var vol float64
	for i := 0; i < n; i++ {
		vol += levels[i].Quantity
	}
	return vol
}

func validate(price, qty float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return fmt.Errorf("book: price %v: %w", price, domain.ErrMalformedRecord)
	}
	if math.IsNaN(qty) || math.IsInf(qty, 0) || qty < 0 {
		return fmt.Errorf("book: quantity %v: %w", qty, domain.ErrMalformedRecord)
	}
	return nil
}

// search returns the index of the first level that does not sort before
// price: for bids (desc) the first level with Price <= price, for asks the
// first level with Price >= price.
func search(levels []domain.PriceLevel, price float64, desc bool) int {
	lo, hi := 0, len(levels)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		before := levels[mid].Price < price
		if desc {
			before = levels[mid].Price > price
		}
		if before {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// apply performs one delta on a sorted side. Inserts and removals shift the
// tail in place; the side never reallocates.
func apply(levels []domain.PriceLevel, price, qty float64, desc bool) ([]domain.PriceLevel, error) {
	i := search(levels, price, desc)
	found := i < len(levels) && levels[i].Price == price

	if qty <= domain.Epsilon {
		if found {
			copy(levels[i:], levels[i+1:])
			levels = levels[:len(levels)-1]
		}
		return levels, nil
	}
	if found {
		levels[i].Quantity = qty
		return levels, nil
	}
	if len(levels) == cap(levels) {
		return levels, domain.ErrResourceExhausted
	}
	levels = levels[:len(levels)+1]
	copy(levels[i+1:], levels[i:])
	levels[i] = domain.PriceLevel{Price: price, Quantity: qty}
	return levels, nil
}

// load inserts src into dst in book order. A repeated price overwrites the
// earlier quantity, so only distinct prices count against the arena.
func load(dst, src []domain.PriceLevel, desc bool) ([]domain.PriceLevel, error) {
	var err error
	for _, l := range src {
		if l.Quantity <= domain.Epsilon {
			continue
		}
		if dst, err = apply(dst, l.Price, l.Quantity, desc); err != nil {
			return dst[:0], err
		}
	}
	return dst, nil
}
