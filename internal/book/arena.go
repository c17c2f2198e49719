package book

import (
	"fmt"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// DefaultLevelsPerSide bounds each side of the book when no explicit depth
// budget is configured.
const DefaultLevelsPerSide = 5000

// Arena is the fixed level budget for one run. The backing arrays for both
// sides are allocated once at process start and are never grown or released
// while the run is live; a side that would need more levels than the arena
// holds fails with domain.ErrResourceExhausted.
type Arena struct {
	bids []domain.PriceLevel
	asks []domain.PriceLevel
}

// NewArena preallocates levelsPerSide levels for each side.
func NewArena(levelsPerSide int) (*Arena, error) {
	if levelsPerSide <= 0 {
		return nil, fmt.Errorf("book: arena size must be positive, got %d", levelsPerSide)
	}
	return &Arena{
		bids: make([]domain.PriceLevel, 0, levelsPerSide),
		asks: make([]domain.PriceLevel, 0, levelsPerSide),
	}, nil
}

// Capacity returns the number of levels each side may hold.
func (a *Arena) Capacity() int {
	return cap(a.bids)
}

// Bytes returns the memory reserved by the arena.
func (a *Arena) Bytes() int {
	const levelSize = 16 // two float64
	return (cap(a.bids) + cap(a.asks)) * levelSize
}
