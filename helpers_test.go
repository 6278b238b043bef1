package hellotrace

import (
	"testing"

	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/trace"
)

// newTestTracer returns a tracer on a fake clock reporting into a synchronous collector.
func newTestTracer(t *testing.T, opts ...Option) (*Tracer, *Collector, *clockz.FakeClock) {
	t.Helper()
	clock := clockz.NewFakeClock()
	collector := NewCollector(100)
	collector.SetSyncMode(true)

	base := []Option{WithClock(clock), WithReporter(collector)}
	tracer := New("test-service", append(base, opts...)...)
	return tracer, collector, clock
}

func mustTraceID(t *testing.T, s string) TraceID {
	t.Helper()
	id, err := trace.TraceIDFromHex(s)
	if err != nil {
		t.Fatalf("bad trace id %q: %v", s, err)
	}
	return id
}

func mustSpanID(t *testing.T, s string) SpanID {
	t.Helper()
	id, err := trace.SpanIDFromHex(s)
	if err != nil {
		t.Fatalf("bad span id %q: %v", s, err)
	}
	return id
}

func findSpan(spans []SpanRecord, name string) (SpanRecord, bool) {
	for _, s := range spans {
		if s.Name == name {
			return s, true
		}
	}
	return SpanRecord{}, false
}
