package hellotrace

import (
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// TraceID identifies a trace (16 bytes, lowercase hex when printed).
type TraceID = trace.TraceID

// SpanID identifies a span within a trace (8 bytes).
type SpanID = trace.SpanID

// Span context flag bits.
const (
	FlagSampled byte = 0x1
	FlagDebug   byte = 0x2
)

// SpanContext is the propagated identity of a span plus its baggage.
// It is a value type; no method mutates the receiver.
type SpanContext struct {
	baggage  map[string]string
	traceID  TraceID
	spanID   SpanID
	parentID SpanID
	flags    byte
}

// NewSpanContext builds a SpanContext. The baggage map is copied.
func NewSpanContext(traceID TraceID, spanID, parentID SpanID, flags byte, baggage map[string]string) SpanContext {
	sc := SpanContext{
		traceID:  traceID,
		spanID:   spanID,
		parentID: parentID,
		flags:    flags,
	}
	if len(baggage) > 0 {
		sc.baggage = make(map[string]string, len(baggage))
		for k, v := range baggage {
			sc.baggage[normalizeBaggageKey(k)] = v
		}
	}
	return sc
}

// TraceID returns the trace identifier.
func (c SpanContext) TraceID() TraceID { return c.traceID }

// SpanID returns the span identifier.
func (c SpanContext) SpanID() SpanID { return c.spanID }

// ParentID returns the parent span identifier, zero for a root span.
func (c SpanContext) ParentID() SpanID { return c.parentID }

// Flags returns the raw flag byte.
func (c SpanContext) Flags() byte { return c.flags }

// IsSampled reports whether spans of this trace are reported.
func (c SpanContext) IsSampled() bool { return c.flags&FlagSampled != 0 }

// IsDebug reports whether the debug bit is set.
func (c SpanContext) IsDebug() bool { return c.flags&FlagDebug != 0 }

// IsValid reports whether both trace and span ids are set.
// Extract returns an invalid context when no trace was propagated.
func (c SpanContext) IsValid() bool {
	return c.traceID.IsValid() && c.spanID.IsValid()
}

// SameTrace reports whether both contexts belong to one trace.
func (c SpanContext) SameTrace(other SpanContext) bool {
	return c.traceID.IsValid() && c.traceID == other.traceID
}

// Equal compares ids, flags and baggage.
func (c SpanContext) Equal(other SpanContext) bool {
	if c.traceID != other.traceID || c.spanID != other.spanID ||
		c.parentID != other.parentID || c.flags != other.flags {
		return false
	}
	if len(c.baggage) != len(other.baggage) {
		return false
	}
	for k, v := range c.baggage {
		if ov, ok := other.baggage[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// WithBaggageItem returns a new SpanContext with key set to val.
// The receiver and every context sharing its baggage are left untouched.
func (c SpanContext) WithBaggageItem(key, val string) SpanContext {
	key = normalizeBaggageKey(key)
	baggage := make(map[string]string, len(c.baggage)+1)
	for k, v := range c.baggage {
		baggage[k] = v
	}
	baggage[key] = val
	c.baggage = baggage
	return c
}

// BaggageItem returns the value for key, or "" if unset.
func (c SpanContext) BaggageItem(key string) string {
	return c.baggage[normalizeBaggageKey(key)]
}

// Baggage returns a copy of all baggage items.
func (c SpanContext) Baggage() map[string]string {
	out := make(map[string]string, len(c.baggage))
	for k, v := range c.baggage {
		out[k] = v
	}
	return out
}

// ForeachBaggageItem calls handler for each item until it returns false.
func (c SpanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			return
		}
	}
}

// child derives the context of a new span under c.
func (c SpanContext) child(spanID SpanID) SpanContext {
	// Baggage maps are never written after construction, so sharing is safe.
	return SpanContext{
		traceID:  c.traceID,
		spanID:   spanID,
		parentID: c.spanID,
		flags:    c.flags,
		baggage:  c.baggage,
	}
}

// Keys travel as HTTP header suffixes, which are case-insensitive.
func normalizeBaggageKey(key string) string {
	return strings.ToLower(key)
}
