package hellotrace

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// DefaultFlushTimeout bounds Close when no WithFlushTimeout option is given.
const DefaultFlushTimeout = 5 * time.Second

// Tracer creates spans, tracks the active span of a context and delegates
// header encoding to its Propagator.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	processTags  map[string]any
	sampler      Sampler
	reporter     Reporter
	propagator   Propagator
	logger       *zap.Logger
	metrics      *Metrics
	panicHook    func(rec SpanRecord, r any)
	traceIDPool  *IDPool[TraceID]
	spanIDPool   *IDPool[SpanID]
	clock        clockz.Clock
	serviceName  string
	flushTimeout time.Duration
	idPoolOnce   sync.Once
	closeOnce    sync.Once
	closed       atomic.Bool
	closeErr     error
}

// New creates a tracer for serviceName.
// Without options it samples everything, reports nowhere, speaks the
// uber-trace-id header scheme and uses the real clock.
func New(serviceName string, opts ...Option) *Tracer {
	t := &Tracer{
		serviceName:  serviceName,
		sampler:      ConstSampler(true),
		reporter:     NullReporter{},
		propagator:   JaegerPropagator{},
		logger:       zap.NewNop(),
		clock:        clockz.RealClock,
		flushTimeout: DefaultFlushTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ServiceName returns the name spans are reported under.
func (t *Tracer) ServiceName() string { return t.serviceName }

// Clock returns the tracer's time source.
func (t *Tracer) Clock() clockz.Clock { return t.clock }

// Propagator returns the configured header codec.
func (t *Tracer) Propagator() Propagator { return t.propagator }

// IsClosed reports whether Close has been called.
func (t *Tracer) IsClosed() bool { return t.closed.Load() }

func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		poolSize := runtime.NumCPU() * 100
		t.traceIDPool = NewIDPool(poolSize, newTraceID)
		t.spanIDPool = NewIDPool(poolSize, newSpanID)
	})
}

// StartSpan creates a new span. The parent is, in order: the ChildOf option,
// the active span of ctx (unless IgnoreActiveSpan is given), or none, in which
// case the span roots a new trace and the sampler decides its sampled flag.
// Children inherit trace id, flags and baggage from their parent.
func (t *Tracer) StartSpan(ctx context.Context, operation string, opts ...StartOption) *Span {
	var cfg startConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	parent := cfg.parent
	if !parent.IsValid() && !cfg.ignoreActive {
		if active := SpanFromContext(ctx); active != nil {
			parent = active.Context()
		}
	}

	t.ensureIDPools()
	var sc SpanContext
	if parent.IsValid() {
		sc = parent.child(t.spanIDPool.Get())
	} else {
		traceID := t.traceIDPool.Get()
		var flags byte
		if t.sampler.ShouldSample(traceID) {
			flags = FlagSampled
		}
		sc = SpanContext{traceID: traceID, spanID: t.spanIDPool.Get(), flags: flags}
	}

	start := cfg.startTime
	if start.IsZero() {
		start = t.clock.Now()
	}

	span := &Span{
		tracer:    t,
		context:   sc,
		name:      operation,
		startTime: start,
	}
	if len(cfg.tags) > 0 {
		span.tags = make(map[string]any, len(cfg.tags))
		for k, v := range cfg.tags {
			span.tags[k] = normalizeValue(v)
		}
	}

	t.metrics.spanStarted(sc.IsSampled())
	if t.closed.Load() {
		t.logger.Warn("span started after tracer close; it will not be reported",
			zap.String("operation", operation),
			zap.String("trace_id", sc.traceID.String()),
		)
	}
	return span
}

// StartActiveSpan starts a span under the active span of ctx and activates it.
// Closing the returned scope finishes the span.
func (t *Tracer) StartActiveSpan(ctx context.Context, operation string, opts ...StartOption) (context.Context, *Scope) {
	span := t.StartSpan(ctx, operation, opts...)
	return pushScope(ctx, span, true)
}

// Activate makes span the active span of the returned context.
func (*Tracer) Activate(ctx context.Context, span *Span, finishOnClose bool) (context.Context, *Scope) {
	return pushScope(ctx, span, finishOnClose)
}

// CurrentSpan returns the active span of ctx, or nil.
func (*Tracer) CurrentSpan(ctx context.Context) *Span {
	return SpanFromContext(ctx)
}

// WithSpan runs fn with a new active span and closes its scope on every exit
// path. An error from fn is recorded on the span and returned. A panic is
// recorded, the scope is closed and the panic continues.
func (t *Tracer) WithSpan(ctx context.Context, operation string, fn func(context.Context) error, opts ...StartOption) (err error) {
	ctx, scope := t.StartActiveSpan(ctx, operation, opts...)
	defer func() {
		if r := recover(); r != nil {
			scope.Span().SetError(fmt.Errorf("panic: %v", r))
			_ = scope.Close()
			panic(r)
		}
		if err != nil {
			scope.Span().SetError(err)
		}
		// fn may have finished the span itself.
		_ = scope.Close()
	}()
	return fn(ctx)
}

// Inject writes sc into carrier using the configured Propagator.
func (t *Tracer) Inject(sc SpanContext, carrier Carrier) error {
	return t.propagator.Inject(sc, carrier)
}

// Extract reads a span context from carrier. A carrier without a trace
// header yields an invalid SpanContext and a nil error.
func (t *Tracer) Extract(carrier Carrier) (SpanContext, error) {
	sc, err := t.propagator.Extract(carrier)
	if err != nil {
		t.metrics.extractError()
	}
	return sc, err
}

// Close flushes the reporter, bounded by the flush timeout and ctx, and
// releases the id pools. Spans still pending at the deadline are dropped and
// ErrFlushTimeout is returned. Later calls return the first result.
func (t *Tracer) Close(ctx context.Context) error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		if ctx == nil {
			ctx = context.Background()
		}
		flushCtx, cancel := context.WithTimeout(ctx, t.flushTimeout)
		defer cancel()

		err := t.reporter.Close(flushCtx)
		switch {
		case err == nil:
		case errors.Is(err, ErrFlushTimeout):
			t.logger.Warn("tracer flush timed out; unreported spans dropped",
				zap.Duration("flush_timeout", t.flushTimeout),
			)
		default:
			t.logger.Error("closing span reporter", zap.Error(err))
		}
		t.closeErr = err

		t.ensureIDPools()
		t.traceIDPool.Close()
		t.spanIDPool.Close()
	})
	return t.closeErr
}

// finishSpan hands a finished record to the reporter when it is sampled.
// Reporter panics never reach the caller.
func (t *Tracer) finishSpan(rec SpanRecord) {
	t.metrics.spanFinished()
	if rec.Flags&FlagSampled == 0 {
		return
	}
	if t.closed.Load() {
		t.metrics.spansDropped(DropClosed, 1)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.metrics.spansDropped(DropPanic, 1)
			t.logger.Error("span reporter panicked",
				zap.String("operation", rec.Name),
				zap.Any("panic", r),
			)
			if t.panicHook != nil {
				t.panicHook(rec, r)
			}
		}
	}()
	t.reporter.Report(rec)
}
