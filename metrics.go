package hellotrace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label of spans_dropped_total.
const (
	DropQueueFull    = "queue_full"
	DropSendError    = "send_error"
	DropFlushTimeout = "flush_timeout"
	DropClosed       = "closed"
	DropPanic        = "reporter_panic"
)

// Metrics holds the tracer's Prometheus collectors. All methods are nil-safe.
type Metrics struct {
	SpansStarted  *prometheus.CounterVec
	SpansFinished prometheus.Counter
	SpansReported prometheus.Counter
	SpansDropped  *prometheus.CounterVec
	ExtractErrors prometheus.Counter
	FlushTimeouts prometheus.Counter
}

// NewMetrics registers the tracer metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SpansStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hellotrace",
				Name:      "spans_started_total",
				Help:      "Total number of spans started",
			},
			[]string{"sampled"},
		),
		SpansFinished: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hellotrace",
				Name:      "spans_finished_total",
				Help:      "Total number of spans finished",
			},
		),
		SpansReported: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hellotrace",
				Name:      "spans_reported_total",
				Help:      "Total number of spans delivered to a span sink",
			},
		),
		SpansDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hellotrace",
				Name:      "spans_dropped_total",
				Help:      "Total number of finished spans that were never delivered",
			},
			[]string{"reason"},
		),
		ExtractErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hellotrace",
				Name:      "extract_errors_total",
				Help:      "Total number of malformed incoming trace headers",
			},
		),
		FlushTimeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hellotrace",
				Name:      "flush_timeouts_total",
				Help:      "Total number of closes that hit the flush deadline",
			},
		),
	}
}

func (m *Metrics) spanStarted(sampled bool) {
	if m == nil {
		return
	}
	label := "false"
	if sampled {
		label = "true"
	}
	m.SpansStarted.WithLabelValues(label).Inc()
}

func (m *Metrics) spanFinished() {
	if m == nil {
		return
	}
	m.SpansFinished.Inc()
}

func (m *Metrics) spansReported(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SpansReported.Add(float64(n))
}

func (m *Metrics) spansDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SpansDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) extractError() {
	if m == nil {
		return
	}
	m.ExtractErrors.Inc()
}

func (m *Metrics) flushTimeout() {
	if m == nil {
		return
	}
	m.FlushTimeouts.Inc()
}
