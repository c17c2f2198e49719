// Package executor realizes trade intents: against a venue through an
// OrderGateway in live mode, or against a simulated Ledger in replay.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/depthbot/internal/domain"
	"github.com/alanyoungcy/depthbot/internal/metrics"
)

// Sink realizes a trade intent. A nil error means the intent was realized
// and the caller should record it as a fill.
type Sink interface {
	Realize(ctx context.Context, intent domain.TradeIntent) (domain.Outcome, error)
}

// OrderGateway submits a rendered order payload to a venue.
type OrderGateway interface {
	SubmitOrder(ctx context.Context, clientOrderID string, payload domain.OrderPayload) (domain.OrderAck, error)
}

// LiveSink renders intents as LIMIT orders and submits them through an
// OrderGateway, measuring the time from intent to acknowledgment.
type LiveSink struct {
	symbol  string
	gateway OrderGateway
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewLiveSink creates a LiveSink for symbol. m may be nil.
func NewLiveSink(symbol string, gateway OrderGateway, m *metrics.Metrics, logger *slog.Logger) *LiveSink {
	return &LiveSink{
		symbol:  symbol,
		gateway: gateway,
		metrics: m,
		logger:  logger.With(slog.String("component", "live_sink")),
		now:     time.Now,
	}
}

// Realize submits the intent. Submission errors are returned wrapped; the
// caller treats them as a non-fill.
func (s *LiveSink) Realize(ctx context.Context, intent domain.TradeIntent) (domain.Outcome, error) {
	start := s.now()
	payload := domain.NewOrderPayload(s.symbol, intent)
	clientID := uuid.NewString()

	ack, err := s.gateway.SubmitOrder(ctx, clientID, payload)
	latency := s.now().Sub(start)
	if err != nil {
		s.metrics.ObserveOrderFailure()
		return domain.Outcome{Intent: intent, Latency: latency}, fmt.Errorf("executor: submit %s %s@%s: %w",
			payload.Side, payload.Quantity, payload.Price, err)
	}
	s.metrics.ObserveAck(latency)

	s.logger.InfoContext(ctx, "order acknowledged",
		slog.String("order_id", ack.OrderID),
		slog.String("client_order_id", clientID),
		slog.String("side", string(payload.Side)),
		slog.String("quantity", payload.Quantity),
		slog.String("price", payload.Price),
		slog.String("status", ack.Status),
		slog.Duration("latency", latency),
	)
	return domain.Outcome{Intent: intent, OrderID: ack.OrderID, Latency: latency}, nil
}

// DryRunGateway acknowledges every order locally. It logs the exact body
// that would have been sent.
type DryRunGateway struct {
	logger *slog.Logger
	seq    atomic.Uint64
}

// NewDryRunGateway creates a gateway that never touches the network.
func NewDryRunGateway(logger *slog.Logger) *DryRunGateway {
	return &DryRunGateway{logger: logger.With(slog.String("component", "dry_run_gateway"))}
}

// SubmitOrder logs the payload and returns a synthetic acknowledgment.
func (g *DryRunGateway) SubmitOrder(ctx context.Context, clientOrderID string, payload domain.OrderPayload) (domain.OrderAck, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("executor: marshal payload: %w", err)
	}
	n := g.seq.Add(1)
	g.logger.InfoContext(ctx, "dry-run order",
		slog.String("client_order_id", clientOrderID),
		slog.String("payload", string(body)),
	)
	return domain.OrderAck{
		OrderID:       "dry-" + strconv.FormatUint(n, 10),
		ClientOrderID: clientOrderID,
		Status:        "FILLED",
	}, nil
}
