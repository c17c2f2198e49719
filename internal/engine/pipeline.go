// Package engine runs the decision pipeline shared by the live engine and
// the replay harness: decode, book update, signal, risk gate, execution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/depthbot/internal/book"
	"github.com/alanyoungcy/depthbot/internal/domain"
	"github.com/alanyoungcy/depthbot/internal/executor"
	"github.com/alanyoungcy/depthbot/internal/feed"
	"github.com/alanyoungcy/depthbot/internal/metrics"
	"github.com/alanyoungcy/depthbot/internal/risk"
	"github.com/alanyoungcy/depthbot/internal/strategy"
)

// DefaultMarkPrice values inventory when the book is empty at the end of a
// run.
const DefaultMarkPrice = 90000.0

// DefaultProgressEvery is the live progress-log interval in updates.
const DefaultProgressEvery = 2000

// Config holds pipeline parameters.
type Config struct {
	RunID  string
	Mode   string
	Symbol string

	// ProgressEvery logs a progress line and publishes top-of-book every N
	// processed updates. Zero disables it.
	ProgressEvery int64

	// DefaultMark is the fallback mark price for the final report.
	DefaultMark float64

	// JournalQueue and JournalTimeout size the fill and top-of-book delivery
	// queue and bound each backend call. Zero means the defaults.
	JournalQueue   int
	JournalTimeout time.Duration
}

// Deps are the collaborators of a Pipeline. Book, Signal and Sink are
// required; everything else is optional.
type Deps struct {
	Book   *book.Book
	Signal *strategy.Imbalance
	Sink   executor.Sink

	// Gate is nil when risk checks are disabled.
	Gate *risk.Gate
	// Ledger backs the equity figures in the report. Nil in live mode.
	Ledger *executor.Ledger

	Metrics   *metrics.Metrics
	FillBus   domain.FillBus
	FillStore domain.FillStore
	TopCache  domain.TopOfBookCache

	// Clock stamps decision latency and fill times. Leave nil for replay so
	// that the run never reads the wall clock.
	Clock func() time.Time

	Logger *slog.Logger
}

// Stats are the pipeline counters. They are written only by the pipeline
// goroutine and may be read from any goroutine.
type Stats struct {
	Processed   int64 `json:"processed"`
	Malformed   int64 `json:"malformed"`
	Signals     int64 `json:"signals"`
	Trades      int64 `json:"trades"`
	Rejected    int64 `json:"rejected"`
	OrderErrors int64 `json:"order_errors"`

	// JournalDropped counts fills and top-of-book updates discarded because
	// the delivery queue was full.
	JournalDropped int64 `json:"journal_dropped"`
}

// Pipeline processes one record at a time. It owns its book, signal, gate
// and ledger for the lifetime of a run and is not safe for concurrent use.
type Pipeline struct {
	cfg     Config
	book    *book.Book
	decoder *feed.Decoder
	signal  *strategy.Imbalance
	gate    *risk.Gate
	sink    executor.Sink
	ledger  *executor.Ledger

	metrics *metrics.Metrics
	journal *journal
	clock   func() time.Time
	logger  *slog.Logger

	// position is tracked here when no gate is configured.
	position float64

	// Mirrors for readers on other goroutines.
	positionBits atomic.Uint64
	lastTop      atomic.Pointer[domain.TopOfBook]

	processed   atomic.Int64
	malformed   atomic.Int64
	signals     atomic.Int64
	trades      atomic.Int64
	rejected    atomic.Int64
	orderErrors atomic.Int64
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Book == nil || deps.Signal == nil || deps.Sink == nil {
		return nil, errors.New("engine: book, signal and sink are required")
	}
	if cfg.DefaultMark <= 0 {
		cfg.DefaultMark = DefaultMarkPrice
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With(
		slog.String("run_id", cfg.RunID),
		slog.String("symbol", cfg.Symbol),
	)
	return &Pipeline{
		cfg:     cfg,
		book:    deps.Book,
		decoder: feed.NewDecoder(deps.Book.Capacity()),
		signal:  deps.Signal,
		gate:    deps.Gate,
		sink:    deps.Sink,
		ledger:  deps.Ledger,
		metrics: deps.Metrics,
		journal: newJournal(deps, cfg, logger.With(slog.String("component", "journal"))),
		clock:   deps.Clock,
		logger:  logger.With(slog.String("component", "pipeline")),
	}, nil
}

// Seed replaces the book with a snapshot. Call it before the first update.
func (p *Pipeline) Seed(snap domain.DepthSnapshot) error {
	if err := p.book.LoadSnapshot(snap.Bids, snap.Asks); err != nil {
		return fmt.Errorf("engine: seed snapshot: %w", err)
	}
	bids, asks := p.book.Depth()
	p.logger.Info("snapshot loaded",
		slog.Int64("last_update_id", snap.LastUpdateID),
		slog.Int("bid_levels", bids),
		slog.Int("ask_levels", asks),
	)
	return nil
}

// Run pulls records from d until it returns io.EOF (nil is returned) or
// fails (the error is returned). Any fatal pipeline error also ends the run.
// Fills and top-of-book updates are delivered from a separate goroutine for
// the duration of Run and flushed before it returns.
func (p *Pipeline) Run(ctx context.Context, d feed.Driver) error {
	p.logger.Info("pipeline started", slog.String("mode", p.cfg.Mode))
	defer p.logger.Info("pipeline stopped", slog.Int64("processed", p.processed.Load()))
	stopJournal := p.journal.start(ctx)
	defer stopJournal()

	for {
		raw, err := d.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("engine: next record: %w", err)
		}
		if err := p.OnRecord(ctx, raw); err != nil {
			return err
		}
	}
}

// OnRecord runs one raw record through the pipeline. Malformed records are
// counted and skipped; only fatal conditions are returned.
func (p *Pipeline) OnRecord(ctx context.Context, raw []byte) error {
	var start time.Time
	if p.clock != nil {
		start = p.clock()
	}
	seq := p.processed.Add(1)

	dec := p.decoder.Decode(raw)
	if !dec.OK() {
		p.skip(seq, dec.Err)
		return nil
	}
	if err := p.book.ApplyUpdate(dec.Update); err != nil {
		if errors.Is(err, domain.ErrResourceExhausted) {
			return fmt.Errorf("engine: record %d: %w", seq, err)
		}
		p.skip(seq, err)
		return nil
	}

	if intent, ok := p.signal.Evaluate(p.book); ok {
		p.act(ctx, seq, intent, start)
	}

	if p.clock != nil {
		p.metrics.ObserveUpdate(p.clock().Sub(start))
	}
	if p.cfg.ProgressEvery > 0 && seq%p.cfg.ProgressEvery == 0 {
		p.progress(ctx, seq)
	}
	return nil
}

func (p *Pipeline) skip(seq int64, err error) {
	p.malformed.Add(1)
	p.metrics.ObserveMalformed()
	p.logger.Warn("skipping malformed record",
		slog.Int64("seq", seq),
		slog.String("error", err.Error()),
	)
}

// act gates and realizes an intent and feeds the outcome back to the signal.
func (p *Pipeline) act(ctx context.Context, seq int64, intent domain.TradeIntent, start time.Time) {
	p.signals.Add(1)
	p.metrics.ObserveSignal(string(intent.Side))

	if p.gate != nil {
		if err := p.gate.CheckIntent(intent); err != nil {
			p.rejected.Add(1)
			p.signal.OnRejected()
			var rej *risk.Rejection
			if errors.As(err, &rej) {
				p.metrics.ObserveRejection(string(rej.Reason))
			}
			p.logger.WarnContext(ctx, "risk rejected intent",
				slog.Int64("seq", seq),
				slog.String("side", string(intent.Side)),
				slog.Float64("price", intent.Price),
				slog.Float64("quantity", intent.Quantity),
				slog.Float64("position", p.gate.Position()),
				slog.String("reason", err.Error()),
			)
			return
		}
	}

	out, err := p.sink.Realize(ctx, intent)
	if err != nil {
		p.orderErrors.Add(1)
		p.signal.OnRejected()
		p.logger.ErrorContext(ctx, "order not realized",
			slog.Int64("seq", seq),
			slog.String("side", string(intent.Side)),
			slog.String("error", err.Error()),
		)
		return
	}

	if p.gate != nil {
		p.gate.RecordFill(intent.Side, intent.Quantity)
		p.position = p.gate.Position()
	} else {
		p.position += intent.Side.Sign() * intent.Quantity
	}
	p.positionBits.Store(math.Float64bits(p.position))
	p.signal.OnFilled()
	p.trades.Add(1)
	p.metrics.ObserveRealized(string(intent.Side), p.position)

	fill := domain.Fill{
		RunID:    p.cfg.RunID,
		Seq:      uint64(seq),
		OrderID:  out.OrderID,
		Side:     intent.Side,
		Price:    intent.Price,
		Quantity: intent.Quantity,
		Position: p.position,
		Latency:  out.Latency,
	}
	attrs := []any{
		slog.Int64("seq", seq),
		slog.String("order_id", out.OrderID),
		slog.String("side", string(intent.Side)),
		slog.Float64("price", intent.Price),
		slog.Float64("quantity", intent.Quantity),
		slog.Float64("position", p.position),
	}
	if p.clock != nil {
		fill.Time = p.clock().UTC()
		attrs = append(attrs,
			slog.Int64("decision_latency_ns", fill.Time.Sub(start).Nanoseconds()),
			slog.Int64("ack_latency_ns", out.Latency.Nanoseconds()),
		)
	}
	p.logger.InfoContext(ctx, "trade executed", attrs...)
	p.journal.publishFill(ctx, fill)
}

func (p *Pipeline) progress(ctx context.Context, seq int64) {
	tob := p.TopOfBook()
	p.lastTop.Store(&tob)
	bids, asks := p.book.Depth()
	p.metrics.ObserveBook(tob.Imbalance, bids, asks)
	p.logger.Info("progress",
		slog.Int64("processed", seq),
		slog.Int64("trades", p.trades.Load()),
		slog.Float64("best_bid", tob.BestBid),
		slog.Float64("best_ask", tob.BestAsk),
		slog.Float64("imbalance", tob.Imbalance),
	)
	p.journal.publishTop(ctx, tob)
}

// TopOfBook summarizes the current book.
func (p *Pipeline) TopOfBook() domain.TopOfBook {
	bid, _ := p.book.BestBid()
	ask, _ := p.book.BestAsk()
	mid, _ := p.book.Mid()
	return domain.TopOfBook{
		Symbol:    p.cfg.Symbol,
		Seq:       uint64(p.processed.Load()),
		BestBid:   bid,
		BestAsk:   ask,
		Mid:       mid,
		Imbalance: p.book.Imbalance(),
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed:   p.processed.Load(),
		Malformed:   p.malformed.Load(),
		Signals:     p.signals.Load(),
		Trades:      p.trades.Load(),
		Rejected:    p.rejected.Load(),
		OrderErrors: p.orderErrors.Load(),

		JournalDropped: p.journal.droppedCount(),
	}
}

// Position returns the signed net position realized by this run.
func (p *Pipeline) Position() float64 { return p.position }

// Snapshot is a view of a running pipeline that is safe to take from any
// goroutine.
type Snapshot struct {
	RunID    string  `json:"run_id"`
	Mode     string  `json:"mode"`
	Symbol   string  `json:"symbol"`
	Stats    Stats   `json:"stats"`
	Position float64 `json:"position"`
	// TopOfBook is the one published at the last progress step, nil before
	// the first one.
	TopOfBook *domain.TopOfBook `json:"top_of_book,omitempty"`
}

// Snapshot returns the current counters, position and last published
// top-of-book.
func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		RunID:     p.cfg.RunID,
		Mode:      p.cfg.Mode,
		Symbol:    p.cfg.Symbol,
		Stats:     p.Stats(),
		Position:  math.Float64frombits(p.positionBits.Load()),
		TopOfBook: p.lastTop.Load(),
	}
}

// MarkPrice returns the book mid, or the configured default when either
// side is empty.
func (p *Pipeline) MarkPrice() float64 {
	if mid, ok := p.book.Mid(); ok {
		return mid
	}
	return p.cfg.DefaultMark
}

// Report builds the end-of-run report. Equity figures are zero unless the
// pipeline was built with a Ledger.
func (p *Pipeline) Report() domain.RunReport {
	s := p.Stats()
	r := domain.RunReport{
		RunID:     p.cfg.RunID,
		Mode:      p.cfg.Mode,
		Symbol:    p.cfg.Symbol,
		Processed: s.Processed,
		Malformed: s.Malformed,
		Trades:    s.Trades,
		Rejected:  s.Rejected,
	}
	if p.ledger != nil {
		r.StartingEquity = p.ledger.StartingEquity()
		r.FinalEquity = p.ledger.Equity(p.MarkPrice())
		r.NetPnL = r.FinalEquity - r.StartingEquity
	}
	return r
}
