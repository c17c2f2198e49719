// Package metrics holds the Prometheus collectors for the decision pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// latencyBuckets spans 1µs to ~1s.
var latencyBuckets = prometheus.ExponentialBuckets(1e-6, 4, 11)

// Metrics owns a private registry and the pipeline collectors. A nil
// *Metrics is valid and records nothing, which keeps replay runs and tests
// free of global state.
type Metrics struct {
	registry *prometheus.Registry

	UpdatesProcessed prometheus.Counter
	MalformedRecords prometheus.Counter
	Signals          *prometheus.CounterVec // side
	RiskRejections   *prometheus.CounterVec // reason
	OrdersRealized   *prometheus.CounterVec // side
	OrderFailures    prometheus.Counter
	DecisionLatency  prometheus.Histogram
	OrderAckLatency  prometheus.Histogram
	Position         prometheus.Gauge
	Imbalance        prometheus.Gauge
	BookDepth        *prometheus.GaugeVec // side
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		UpdatesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "depthbot_updates_processed_total",
			Help: "Depth updates processed by the pipeline",
		}),
		MalformedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "depthbot_malformed_records_total",
			Help: "Records skipped because they failed to decode",
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depthbot_signals_total",
			Help: "Trade intents produced by the imbalance signal",
		}, []string{"side"}),
		RiskRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depthbot_risk_rejections_total",
			Help: "Intents rejected by the risk gate",
		}, []string{"reason"}),
		OrdersRealized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depthbot_orders_realized_total",
			Help: "Intents realized by the execution sink",
		}, []string{"side"}),
		OrderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "depthbot_order_failures_total",
			Help: "Order submissions that failed or were not acknowledged",
		}),
		DecisionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "depthbot_decision_latency_seconds",
			Help:    "Time from record receipt to completed decision",
			Buckets: latencyBuckets,
		}),
		OrderAckLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "depthbot_order_ack_latency_seconds",
			Help:    "Time from intent to venue acknowledgment",
			Buckets: latencyBuckets,
		}),
		Position: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "depthbot_position",
			Help: "Signed net position tracked by the risk gate",
		}),
		Imbalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "depthbot_book_imbalance",
			Help: "Top-of-book volume imbalance",
		}),
		BookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "depthbot_book_levels",
			Help: "Stored price levels per side",
		}, []string{"side"}),
	}
	reg.MustRegister(
		m.UpdatesProcessed, m.MalformedRecords, m.Signals, m.RiskRejections,
		m.OrdersRealized, m.OrderFailures, m.DecisionLatency, m.OrderAckLatency,
		m.Position, m.Imbalance, m.BookDepth,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveUpdate records one processed update and its decision latency.
func (m *Metrics) ObserveUpdate(d time.Duration) {
	if m == nil {
		return
	}
	m.UpdatesProcessed.Inc()
	m.DecisionLatency.Observe(d.Seconds())
}

// ObserveMalformed records one skipped record.
func (m *Metrics) ObserveMalformed() {
	if m == nil {
		return
	}
	m.MalformedRecords.Inc()
}

// ObserveSignal records an intent for side.
func (m *Metrics) ObserveSignal(side string) {
	if m == nil {
		return
	}
	m.Signals.WithLabelValues(side).Inc()
}

// ObserveRejection records a risk rejection.
func (m *Metrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.RiskRejections.WithLabelValues(reason).Inc()
}

// ObserveRealized records a realized order and the resulting position.
func (m *Metrics) ObserveRealized(side string, position float64) {
	if m == nil {
		return
	}
	m.OrdersRealized.WithLabelValues(side).Inc()
	m.Position.Set(position)
}

// ObserveOrderFailure records a failed submission.
func (m *Metrics) ObserveOrderFailure() {
	if m == nil {
		return
	}
	m.OrderFailures.Inc()
}

// ObserveAck records intent-to-acknowledgment latency.
func (m *Metrics) ObserveAck(d time.Duration) {
	if m == nil {
		return
	}
	m.OrderAckLatency.Observe(d.Seconds())
}

// ObserveBook records book shape after an update.
func (m *Metrics) ObserveBook(imbalance float64, bids, asks int) {
	if m == nil {
		return
	}
	m.Imbalance.Set(imbalance)
	m.BookDepth.WithLabelValues("bid").Set(float64(bids))
	m.BookDepth.WithLabelValues("ask").Set(float64(asks))
}
