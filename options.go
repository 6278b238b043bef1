package hellotrace

import (
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Option configures a Tracer.
type Option func(*Tracer)

// WithClock sets the tracer's time source. Enables deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithSampler sets the sampler consulted for root spans.
func WithSampler(s Sampler) Option {
	return func(t *Tracer) {
		if s != nil {
			t.sampler = s
		}
	}
}

// WithReporter sets where finished, sampled spans go.
func WithReporter(r Reporter) Option {
	return func(t *Tracer) {
		if r != nil {
			t.reporter = r
		}
	}
}

// WithPropagator sets the header codec used by Inject and Extract.
func WithPropagator(p Propagator) Option {
	return func(t *Tracer) {
		if p != nil {
			t.propagator = p
		}
	}
}

// WithLogger sets the logger for tracer warnings.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracer) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMetrics enables Prometheus accounting.
func WithMetrics(m *Metrics) Option {
	return func(t *Tracer) { t.metrics = m }
}

// WithFlushTimeout bounds how long Close waits for the reporter.
func WithFlushTimeout(d time.Duration) Option {
	return func(t *Tracer) {
		if d > 0 {
			t.flushTimeout = d
		}
	}
}

// WithProcessTags adds tags copied onto every reported span.
func WithProcessTags(tags map[string]any) Option {
	return func(t *Tracer) {
		if t.processTags == nil {
			t.processTags = make(map[string]any, len(tags))
		}
		for k, v := range tags {
			t.processTags[k] = normalizeValue(v)
		}
	}
}

// WithPanicHook sets a function called when the reporter panics.
func WithPanicHook(hook func(rec SpanRecord, r any)) Option {
	return func(t *Tracer) { t.panicHook = hook }
}

type startConfig struct {
	tags         map[string]any
	startTime    time.Time
	parent       SpanContext
	ignoreActive bool
}

// StartOption configures a single StartSpan call.
type StartOption func(*startConfig)

// ChildOf makes the new span a child of parent. An invalid parent is ignored.
func ChildOf(parent SpanContext) StartOption {
	return func(c *startConfig) { c.parent = parent }
}

// WithTags sets initial tags on the new span.
func WithTags(tags map[string]any) StartOption {
	return func(c *startConfig) {
		if c.tags == nil {
			c.tags = make(map[string]any, len(tags))
		}
		for k, v := range tags {
			c.tags[k] = v
		}
	}
}

// WithTag sets a single initial tag.
func WithTag(key string, value any) StartOption {
	return WithTags(map[string]any{key: value})
}

// WithStartTime overrides the span's start timestamp.
func WithStartTime(t time.Time) StartOption {
	return func(c *startConfig) { c.startTime = t }
}

// IgnoreActiveSpan starts a root span even when ctx has an active span.
func IgnoreActiveSpan() StartOption {
	return func(c *startConfig) { c.ignoreActive = true }
}
