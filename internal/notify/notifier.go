// Package notify delivers operator alerts for run lifecycle events and fills
// to Telegram and Discord. Alerts are filtered by event type so operators
// receive only what they subscribed to.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// Event types accepted in the events filter.
const (
	EventRunStarted  = "run_started"
	EventRunFinished = "run_finished"
	EventRunFailed   = "run_failed"
	EventFill        = "fill"
)

// fillQueueSize bounds pending fill alerts. Alerts beyond it are dropped.
const fillQueueSize = 256

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type alert struct {
	title, message string
}

// Notifier dispatches alerts to every registered sender. Fill alerts are
// queued and sent by Run so that publishing never blocks the caller.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	queue   chan alert
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan alert, fillQueueSize),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

func (n *Notifier) allows(event string) bool {
	return n.Enabled() && (len(n.events) == 0 || n.events[event])
}

// Notify sends an alert synchronously if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.allows(event) {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// RunStarted announces a run.
func (n *Notifier) RunStarted(ctx context.Context, r domain.RunReport) error {
	return n.Notify(ctx, EventRunStarted,
		fmt.Sprintf("depthbot %s started", r.Mode),
		fmt.Sprintf("run %s on %s", r.RunID, r.Symbol))
}

// RunFinished announces the end of a run. A non-nil runErr that is not a
// plain shutdown is reported as a failure.
func (n *Notifier) RunFinished(ctx context.Context, r domain.RunReport, runErr error) error {
	body := fmt.Sprintf("run %s on %s\nprocessed=%d malformed=%d trades=%d rejected=%d",
		r.RunID, r.Symbol, r.Processed, r.Malformed, r.Trades, r.Rejected)
	if runErr != nil {
		return n.Notify(ctx, EventRunFailed,
			fmt.Sprintf("depthbot %s failed", r.Mode),
			body+"\nerror: "+runErr.Error())
	}
	return n.Notify(ctx, EventRunFinished, fmt.Sprintf("depthbot %s finished", r.Mode), body)
}

// PublishFill queues a fill alert. It implements domain.FillBus and never
// blocks; when the queue is full the alert is dropped and logged.
func (n *Notifier) PublishFill(_ context.Context, f domain.Fill) error {
	if !n.allows(EventFill) {
		return nil
	}
	a := alert{
		title: fmt.Sprintf("%s %.4f @ %.2f", f.Side, f.Quantity, f.Price),
		message: fmt.Sprintf("order %s, position %.4f, seq %d, ack %s",
			f.OrderID, f.Position, f.Seq, f.Latency),
	}
	select {
	case n.queue <- a:
	default:
		n.logger.Warn("fill alert dropped, queue full", slog.String("order_id", f.OrderID))
	}
	return nil
}

// Run delivers queued fill alerts until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-n.queue:
			_ = n.dispatch(ctx, a.title, a.message)
		}
	}
}

// dispatch sends to every sender. One sender failing does not stop delivery
// to the rest; failures are combined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
