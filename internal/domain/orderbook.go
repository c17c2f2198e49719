package domain

// Epsilon is the quantity at or below which a price level is treated as
// absent. Levels with quantity <= Epsilon are never stored in a book.
const Epsilon = 1e-7

// PriceLevel is a single price+quantity entry on one side of the book.
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// DepthUpdate is a normalized incremental update. Bid deltas are applied
// before ask deltas, each list in order.
type DepthUpdate struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// Len returns the total number of level deltas in the update.
func (u DepthUpdate) Len() int {
	return len(u.Bids) + len(u.Asks)
}

// DepthSnapshot is a full replacement of book state.
type DepthSnapshot struct {
	LastUpdateID int64
	Bids         []PriceLevel
	Asks         []PriceLevel
}

// TopOfBook is a read-only summary of the book published after each update.
type TopOfBook struct {
	Symbol    string
	Seq       uint64
	BestBid   float64
	BestAsk   float64
	Mid       float64
	Imbalance float64
}
