package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new RunStore backed by the given connection pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// StartRun registers a run. Calling it twice for the same run ID is a no-op.
func (s *RunStore) StartRun(ctx context.Context, r domain.RunReport) error {
	const query = `
		INSERT INTO runs (run_id, mode, symbol, starting_equity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, query, r.RunID, r.Mode, r.Symbol, r.StartingEquity); err != nil {
		return fmt.Errorf("postgres: start run %s: %w", r.RunID, err)
	}
	return nil
}

// FinishRun records the final counters and equity of a run.
func (s *RunStore) FinishRun(ctx context.Context, r domain.RunReport) error {
	const query = `
		UPDATE runs SET
			finished_at = NOW(),
			processed = $2, malformed = $3, trades = $4, rejected = $5,
			starting_equity = $6, final_equity = $7, net_pnl = $8
		WHERE run_id = $1`
	tag, err := s.pool.Exec(ctx, query,
		r.RunID, r.Processed, r.Malformed, r.Trades, r.Rejected,
		r.StartingEquity, r.FinalEquity, r.NetPnL,
	)
	if err != nil {
		return fmt.Errorf("postgres: finish run %s: %w", r.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: finish run %s: %w", r.RunID, domain.ErrNotFound)
	}
	return nil
}
