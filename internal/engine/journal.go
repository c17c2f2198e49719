package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

const (
	// DefaultJournalQueue is the number of fills and top-of-book updates
	// that may wait for delivery before new ones are dropped.
	DefaultJournalQueue = 1024
	// DefaultJournalTimeout bounds each bus, store or cache call.
	DefaultJournalTimeout = 2 * time.Second
)

// journalEntry carries either a fill or a top-of-book update.
type journalEntry struct {
	fill *domain.Fill
	tob  *domain.TopOfBook
}

// journal delivers fills and top-of-book updates to the optional bus, store
// and cache. While the pipeline runs, entries go through a bounded queue
// drained by a separate goroutine, so a slow backend costs the decision path
// nothing; a full queue drops the entry. Outside Run they are delivered
// inline. Every call is bounded by the timeout either way.
type journal struct {
	bus     domain.FillBus
	store   domain.FillStore
	cache   domain.TopOfBookCache
	timeout time.Duration
	size    int
	logger  *slog.Logger

	queue   chan journalEntry // nil when not running
	dropped atomic.Int64
}

func newJournal(deps Deps, cfg Config, logger *slog.Logger) *journal {
	if deps.FillBus == nil && deps.FillStore == nil && deps.TopCache == nil {
		return nil
	}
	j := &journal{
		bus:     deps.FillBus,
		store:   deps.FillStore,
		cache:   deps.TopCache,
		timeout: cfg.JournalTimeout,
		size:    cfg.JournalQueue,
		logger:  logger,
	}
	if j.timeout <= 0 {
		j.timeout = DefaultJournalTimeout
	}
	if j.size <= 0 {
		j.size = DefaultJournalQueue
	}
	return j
}

// start launches the delivery goroutine. The returned stop closes the queue
// and waits up to one timeout for the backlog; whatever is still pending
// after that is abandoned.
func (j *journal) start(ctx context.Context) (stop func()) {
	if j == nil {
		return func() {}
	}
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	queue := make(chan journalEntry, j.size)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range queue {
			j.deliver(base, e)
		}
	}()
	j.queue = queue

	return func() {
		j.queue = nil
		close(queue)
		select {
		case <-done:
		case <-time.After(j.timeout):
			j.logger.Warn("journal backlog abandoned at shutdown", slog.Int("pending", len(queue)))
			cancel()
			<-done
		}
		cancel()
		if n := j.dropped.Load(); n > 0 {
			j.logger.Warn("journal entries dropped", slog.Int64("dropped", n))
		}
	}
}

func (j *journal) publishFill(ctx context.Context, f domain.Fill) {
	if j == nil || (j.bus == nil && j.store == nil) {
		return
	}
	j.submit(ctx, journalEntry{fill: &f})
}

func (j *journal) publishTop(ctx context.Context, tob domain.TopOfBook) {
	if j == nil || j.cache == nil {
		return
	}
	j.submit(ctx, journalEntry{tob: &tob})
}

func (j *journal) submit(ctx context.Context, e journalEntry) {
	if j.queue == nil {
		j.deliver(ctx, e)
		return
	}
	select {
	case j.queue <- e:
	default:
		j.dropped.Add(1)
		j.logger.Warn("journal queue full, entry dropped", slog.Int("queue", j.size))
	}
}

func (j *journal) deliver(ctx context.Context, e journalEntry) {
	switch {
	case e.fill != nil:
		if j.bus != nil {
			j.call(ctx, "publish fill", func(ctx context.Context) error { return j.bus.PublishFill(ctx, *e.fill) })
		}
		if j.store != nil {
			j.call(ctx, "journal fill", func(ctx context.Context) error { return j.store.InsertFill(ctx, *e.fill) })
		}
	case e.tob != nil:
		j.call(ctx, "publish top of book", func(ctx context.Context) error { return j.cache.SetTopOfBook(ctx, *e.tob) })
	}
}

func (j *journal) call(ctx context.Context, op string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		j.logger.Warn(op+" failed", slog.String("error", err.Error()))
	}
}

func (j *journal) droppedCount() int64 {
	if j == nil {
		return 0
	}
	return j.dropped.Load()
}
