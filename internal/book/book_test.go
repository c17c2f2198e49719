package book

import (
	"errors"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

func newBook(t *testing.T, levels int) *Book {
	t.Helper()
	arena, err := NewArena(levels)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	return New(arena)
}

func checkInvariants(t *testing.T, b *Book) {
	t.Helper()
	for i, l := range b.Bids() {
		if l.Quantity <= domain.Epsilon {
			t.Fatalf("bid %d has quantity %v <= epsilon", i, l.Quantity)
		}
		if i > 0 && !(b.Bids()[i-1].Price > l.Price) {
			t.Fatalf("bids not strictly descending at %d: %v then %v", i, b.Bids()[i-1].Price, l.Price)
		}
	}
	for i, l := range b.Asks() {
		if l.Quantity <= domain.Epsilon {
			t.Fatalf("ask %d has quantity %v <= epsilon", i, l.Quantity)
		}
		if i > 0 && !(b.Asks()[i-1].Price < l.Price) {
			t.Fatalf("asks not strictly ascending at %d: %v then %v", i, b.Asks()[i-1].Price, l.Price)
		}
	}
}

func TestApplyKeepsInvariantsUnderRandomDeltas(t *testing.T) {
	b := newBook(t, 1000)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 20000; i++ {
		price := float64(90+rng.Intn(40)) + float64(rng.Intn(4))*0.25
		qty := 0.0
		if rng.Intn(3) > 0 {
			qty = float64(rng.Intn(50)) * 0.1
		}
		var err error
		if rng.Intn(2) == 0 {
			err = b.ApplyBid(price, qty)
		} else {
			err = b.ApplyAsk(price, qty)
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		checkInvariants(t, b)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		qty   float64
	}{
		{"insert new level", 100.5, 2},
		{"update existing level", 100, 7},
		{"remove existing level", 99, 0},
		{"remove absent level", 42, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := newBook(t, 16)
			twice := newBook(t, 16)
			for _, b := range []*Book{once, twice} {
				seed := []domain.PriceLevel{{Price: 100, Quantity: 1}, {Price: 99, Quantity: 2}}
				if err := b.LoadSnapshot(seed, seed); err != nil {
					t.Fatalf("LoadSnapshot: %v", err)
				}
			}
			for _, b := range []*Book{once, twice, twice} {
				if err := b.ApplyBid(tt.price, tt.qty); err != nil {
					t.Fatalf("ApplyBid: %v", err)
				}
				if err := b.ApplyAsk(tt.price, tt.qty); err != nil {
					t.Fatalf("ApplyAsk: %v", err)
				}
			}
			if !slices.Equal(once.Bids(), twice.Bids()) || !slices.Equal(once.Asks(), twice.Asks()) {
				t.Fatalf("double application diverged:\nonce  %v %v\ntwice %v %v",
					once.Bids(), once.Asks(), twice.Bids(), twice.Asks())
			}
		})
	}
}

func TestZeroQuantityOnAbsentPriceIsNoop(t *testing.T) {
	b := newBook(t, 8)
	if err := b.ApplyBid(100, 5); err != nil {
		t.Fatal(err)
	}
	before := slices.Clone(b.Bids())
	if err := b.ApplyBid(101, 0); err != nil {
		t.Fatal(err)
	}
	if err := b.ApplyBid(99, domain.Epsilon); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(before, b.Bids()) {
		t.Fatalf("bids changed: %v -> %v", before, b.Bids())
	}
	if n, _ := b.Depth(); n != 1 {
		t.Fatalf("depth = %d, want 1", n)
	}
}

func TestZeroQuantityRemovesLevel(t *testing.T) {
	b := newBook(t, 8)
	if err := b.ApplyBid(100, 5); err != nil {
		t.Fatal(err)
	}
	if err := b.ApplyBid(100, 0); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.BestBid(); ok {
		t.Fatalf("expected empty bid side, got %v", b.Bids())
	}
}

func TestImbalance(t *testing.T) {
	tests := []struct {
		name string
		bids []domain.PriceLevel
		asks []domain.PriceLevel
		want float64
	}{
		{
			name: "empty book is neutral",
			want: 0.5,
		},
		{
			name: "empty ask side is neutral",
			bids: []domain.PriceLevel{{Price: 100, Quantity: 3}},
			want: 0.5,
		},
		{
			name: "two levels each side",
			bids: []domain.PriceLevel{{Price: 100, Quantity: 1}, {Price: 99, Quantity: 2}},
			asks: []domain.PriceLevel{{Price: 101, Quantity: 1}, {Price: 102, Quantity: 3}},
			want: 3.0 / 7.0,
		},
		{
			name: "bid heavy",
			bids: []domain.PriceLevel{{Price: 100, Quantity: 9}},
			asks: []domain.PriceLevel{{Price: 101, Quantity: 1}},
			want: 0.9,
		},
		{
			name: "only top five levels count",
			bids: []domain.PriceLevel{
				{Price: 100, Quantity: 1}, {Price: 99, Quantity: 1}, {Price: 98, Quantity: 1},
				{Price: 97, Quantity: 1}, {Price: 96, Quantity: 1}, {Price: 95, Quantity: 100},
			},
			asks: []domain.PriceLevel{{Price: 101, Quantity: 5}},
			want: 0.5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBook(t, 16)
			if err := b.LoadSnapshot(tt.bids, tt.asks); err != nil {
				t.Fatal(err)
			}
			got := b.Imbalance()
			if math.Abs(got-tt.want) > 1e-12 {
				t.Fatalf("Imbalance() = %v, want %v", got, tt.want)
			}
			if got < 0 || got > 1 {
				t.Fatalf("Imbalance() = %v out of [0,1]", got)
			}
		})
	}
}

func TestLoadSnapshotSortsAndReplaces(t *testing.T) {
	b := newBook(t, 16)
	if err := b.ApplyBid(50, 1); err != nil {
		t.Fatal(err)
	}
	bids := []domain.PriceLevel{{Price: 99, Quantity: 1}, {Price: 100, Quantity: 2}, {Price: 98, Quantity: 0}, {Price: 99, Quantity: 4}}
	asks := []domain.PriceLevel{{Price: 103, Quantity: 1}, {Price: 101, Quantity: 2}}
	if err := b.LoadSnapshot(bids, asks); err != nil {
		t.Fatal(err)
	}
	wantBids := []domain.PriceLevel{{Price: 100, Quantity: 2}, {Price: 99, Quantity: 4}}
	wantAsks := []domain.PriceLevel{{Price: 101, Quantity: 2}, {Price: 103, Quantity: 1}}
	if !slices.Equal(b.Bids(), wantBids) {
		t.Fatalf("bids = %v, want %v", b.Bids(), wantBids)
	}
	if !slices.Equal(b.Asks(), wantAsks) {
		t.Fatalf("asks = %v, want %v", b.Asks(), wantAsks)
	}
	checkInvariants(t, b)
}

func TestLoadSnapshotCountsDistinctPrices(t *testing.T) {
	b := newBook(t, 2)
	bids := []domain.PriceLevel{
		{Price: 100, Quantity: 1}, {Price: 99, Quantity: 1},
		{Price: 100, Quantity: 2}, {Price: 99, Quantity: 3},
	}
	if err := b.LoadSnapshot(bids, nil); err != nil {
		t.Fatalf("two distinct prices in a two-level arena: %v", err)
	}
	want := []domain.PriceLevel{{Price: 100, Quantity: 2}, {Price: 99, Quantity: 3}}
	if !slices.Equal(b.Bids(), want) {
		t.Fatalf("bids = %v, want %v", b.Bids(), want)
	}

	bids = append(bids, domain.PriceLevel{Price: 98, Quantity: 1})
	if err := b.LoadSnapshot(bids, nil); !errors.Is(err, domain.ErrResourceExhausted) {
		t.Fatalf("err = %v, want ErrResourceExhausted", err)
	}
	if n, _ := b.Depth(); n != 0 {
		t.Errorf("failed snapshot left %d bid levels", n)
	}
}

func TestBestPricesAndTradeable(t *testing.T) {
	b := newBook(t, 8)
	if p, ok := b.BestBid(); ok || p != 0 {
		t.Fatalf("BestBid on empty = %v,%v", p, ok)
	}
	if b.Tradeable() {
		t.Fatal("empty book must not be tradeable")
	}
	_ = b.ApplyBid(100, 1)
	_ = b.ApplyAsk(100, 1)
	if b.Tradeable() {
		t.Fatal("locked book must not be tradeable")
	}
	_ = b.ApplyAsk(100, 0)
	_ = b.ApplyAsk(100.5, 1)
	if !b.Tradeable() {
		t.Fatal("expected tradeable book")
	}
	if mid, ok := b.Mid(); !ok || mid != 100.25 {
		t.Fatalf("Mid = %v,%v", mid, ok)
	}
}

func TestArenaExhaustion(t *testing.T) {
	b := newBook(t, 2)
	if err := b.ApplyAsk(101, 1); err != nil {
		t.Fatal(err)
	}
	if err := b.ApplyAsk(102, 1); err != nil {
		t.Fatal(err)
	}
	// Updating and removing existing levels still works at capacity.
	if err := b.ApplyAsk(102, 3); err != nil {
		t.Fatalf("update at capacity: %v", err)
	}
	err := b.ApplyAsk(103, 1)
	if !errors.Is(err, domain.ErrResourceExhausted) {
		t.Fatalf("err = %v, want ErrResourceExhausted", err)
	}
	checkInvariants(t, b)
	if _, n := b.Depth(); n != 2 {
		t.Fatalf("ask depth = %d, want 2", n)
	}
}

func TestApplyUpdateRejectsBadLevelsAtomically(t *testing.T) {
	b := newBook(t, 8)
	_ = b.ApplyBid(100, 1)
	before := slices.Clone(b.Bids())

	u := domain.DepthUpdate{
		Bids: []domain.PriceLevel{{Price: 101, Quantity: 1}},
		Asks: []domain.PriceLevel{{Price: 0, Quantity: 1}},
	}
	err := b.ApplyUpdate(u)
	if !errors.Is(err, domain.ErrMalformedRecord) {
		t.Fatalf("err = %v, want ErrMalformedRecord", err)
	}
	if !slices.Equal(before, b.Bids()) {
		t.Fatalf("book mutated by rejected update: %v", b.Bids())
	}
}

func TestApplyDoesNotAllocate(t *testing.T) {
	b := newBook(t, 64)
	allocs := testing.AllocsPerRun(100, func() {
		_ = b.ApplyBid(100, 1)
		_ = b.ApplyBid(99, 2)
		_ = b.ApplyBid(100, 0)
		_ = b.ApplyBid(99, 0)
		_ = b.Imbalance()
	})
	if allocs != 0 {
		t.Fatalf("allocs per run = %v, want 0", allocs)
	}
}
