package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// TopOfBookCache implements domain.TopOfBookCache with one hash per symbol
// at "<prefix>:tob:<symbol>".
type TopOfBookCache struct {
	rdb    *redis.Client
	prefix string
}

// NewTopOfBookCache creates a TopOfBookCache backed by the given Client.
func NewTopOfBookCache(c *Client) *TopOfBookCache {
	return &TopOfBookCache{rdb: c.Underlying(), prefix: c.prefix}
}

func (tc *TopOfBookCache) tobKey(symbol string) string {
	return joinKey(tc.prefix, "tob", symbol)
}

func tobFields(tob domain.TopOfBook) map[string]any {
	return map[string]any{
		"seq":       strconv.FormatUint(tob.Seq, 10),
		"bid":       strconv.FormatFloat(tob.BestBid, 'f', -1, 64),
		"ask":       strconv.FormatFloat(tob.BestAsk, 'f', -1, 64),
		"mid":       strconv.FormatFloat(tob.Mid, 'f', -1, 64),
		"imbalance": strconv.FormatFloat(tob.Imbalance, 'f', -1, 64),
	}
}

func parseTob(symbol string, vals map[string]string) (domain.TopOfBook, error) {
	tob := domain.TopOfBook{Symbol: symbol}
	var err error
	if tob.Seq, err = strconv.ParseUint(vals["seq"], 10, 64); err != nil {
		return tob, fmt.Errorf("seq: %w", err)
	}
	for field, dst := range map[string]*float64{
		"bid":       &tob.BestBid,
		"ask":       &tob.BestAsk,
		"mid":       &tob.Mid,
		"imbalance": &tob.Imbalance,
	} {
		if *dst, err = strconv.ParseFloat(vals[field], 64); err != nil {
			return tob, fmt.Errorf("%s: %w", field, err)
		}
	}
	return tob, nil
}

// SetTopOfBook overwrites the cached top-of-book for tob.Symbol.
func (tc *TopOfBookCache) SetTopOfBook(ctx context.Context, tob domain.TopOfBook) error {
	if err := tc.rdb.HSet(ctx, tc.tobKey(tob.Symbol), tobFields(tob)).Err(); err != nil {
		return fmt.Errorf("redis: set top of book %s: %w", tob.Symbol, err)
	}
	return nil
}

// GetTopOfBook reads the cached top-of-book. It returns domain.ErrNotFound
// when nothing has been published for symbol.
func (tc *TopOfBookCache) GetTopOfBook(ctx context.Context, symbol string) (domain.TopOfBook, error) {
	vals, err := tc.rdb.HGetAll(ctx, tc.tobKey(symbol)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.TopOfBook{}, fmt.Errorf("redis: get top of book %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.TopOfBook{}, fmt.Errorf("redis: get top of book %s: %w", symbol, domain.ErrNotFound)
	}
	tob, err := parseTob(symbol, vals)
	if err != nil {
		return domain.TopOfBook{}, fmt.Errorf("redis: parse top of book %s: %w", symbol, err)
	}
	return tob, nil
}
