package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

const insertFill = `
	INSERT INTO fills (
		run_id, seq, order_id, side,
		price, quantity, position, latency_ns, filled_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8, $9
	) ON CONFLICT (run_id, order_id) DO NOTHING`

// InsertFill journals one fill. A zero fill time (replay) is stored as NULL.
// Re-inserting the same (run, order) pair is a no-op.
func (s *FillStore) InsertFill(ctx context.Context, f domain.Fill) error {
	if _, err := s.pool.Exec(ctx, insertFill, fillArgs(f)...); err != nil {
		return fmt.Errorf("postgres: insert fill %s: %w", f.OrderID, err)
	}
	return nil
}

func fillArgs(f domain.Fill) []any {
	var filledAt any
	if !f.Time.IsZero() {
		filledAt = f.Time.UTC()
	}
	return []any{
		f.RunID, int64(f.Seq), f.OrderID, string(f.Side),
		f.Price, f.Quantity, f.Position, f.Latency.Nanoseconds(), filledAt,
	}
}
