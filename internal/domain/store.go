package domain

import "context"

// FillStore journals realized fills. It is write-only from the bot's point
// of view: nothing is read back into risk state on restart.
type FillStore interface {
	InsertFill(ctx context.Context, fill Fill) error
}

// RunStore journals run lifecycles and final reports.
type RunStore interface {
	StartRun(ctx context.Context, report RunReport) error
	FinishRun(ctx context.Context, report RunReport) error
}
