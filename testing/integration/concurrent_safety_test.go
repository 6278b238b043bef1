package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/propagation"

	"github.com/zoobzio/hellotrace"
)

// TestConcurrentRequestIsolation serves many requests at once on one tracer.
// Each request nests scopes of its own; no request may ever observe another
// request's span as active.
func TestConcurrentRequestIsolation(t *testing.T) {
	tracer, collector := NewTracer(t, "race-test-service")

	const requests, depth = 20, 5
	var wg sync.WaitGroup
	for r := 0; r < requests; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			request := fmt.Sprintf("request-%02d", r)
			ctx, root := tracer.StartActiveSpan(context.Background(), request)
			defer root.Close()

			for d := 0; d < depth; d++ {
				_ = tracer.WithSpan(ctx, fmt.Sprintf("%s/step-%d", request, d), func(ctx context.Context) error {
					active := hellotrace.SpanFromContext(ctx)
					if active.TraceID() != root.Span().TraceID() {
						t.Errorf("%s: active span from another trace", request)
					}
					active.SetTag("request", request)
					return nil
				})
				if hellotrace.SpanFromContext(ctx) != root.Span() {
					t.Errorf("%s: root not restored after step %d", request, d)
				}
			}
		}(r)
	}
	wg.Wait()

	analyzer := NewTraceAnalyzer(collector.GetAll())
	if analyzer.CountSpans() != requests*(depth+1) {
		t.Fatalf("expected %d spans, got %d", requests*(depth+1), analyzer.CountSpans())
	}
	if analyzer.CountTrees() != requests || len(analyzer.TraceIDs()) != requests {
		t.Errorf("expected %d independent traces, got %d trees / %d trace ids",
			requests, analyzer.CountTrees(), len(analyzer.TraceIDs()))
	}
}

// TestConcurrentSpanMutation fans many goroutines out over one span.
func TestConcurrentSpanMutation(t *testing.T) {
	tracer, collector := NewTracer(t, "race-test-service")
	span := tracer.StartSpan(context.Background(), "shared")

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				span.SetTag(fmt.Sprintf("g%d", g), i)
				span.LogEvent("tick", "goroutine", g)
				span.SetBaggageItem(fmt.Sprintf("b%d", g), "x")
				_ = span.Context().Baggage()
			}
		}(g)
	}
	wg.Wait()
	_ = span.Finish()

	rec := collector.AssertSpanNamed("shared")
	if len(rec.Logs) != 16*50 {
		t.Errorf("expected %d logs, got %d", 16*50, len(rec.Logs))
	}
	if len(rec.Baggage) != 16 {
		t.Errorf("expected 16 baggage items, got %d", len(rec.Baggage))
	}
}

// TestConcurrentInjectExtract round-trips contexts through the propagator
// from many goroutines at once.
func TestConcurrentInjectExtract(t *testing.T) {
	tracer, _ := NewTracer(t, "race-test-service",
		hellotrace.WithPropagator(hellotrace.NewCompositePropagator(hellotrace.JaegerPropagator{}, hellotrace.TraceContextPropagator{})))

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				span := tracer.StartSpan(context.Background(), "hop")
				span.SetBaggageItem("worker", fmt.Sprint(g))
				carrier := propagation.MapCarrier{}
				if err := tracer.Inject(span.Context(), carrier); err != nil {
					t.Error(err)
					return
				}
				got, err := tracer.Extract(carrier)
				if err != nil {
					t.Error(err)
					return
				}
				if got.SpanID() != span.SpanID() || got.BaggageItem("worker") != fmt.Sprint(g) {
					t.Errorf("round trip mismatch in worker %d", g)
					return
				}
				_ = span.Finish()
			}
		}(g)
	}
	wg.Wait()
}
