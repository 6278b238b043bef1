package hellotrace

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const traceparentHeader = "traceparent"

// TraceContextPropagator speaks W3C traceparent and baggage headers through
// the OpenTelemetry propagators. W3C does not carry the parent span id, so
// extracted contexts have a zero ParentID.
type TraceContextPropagator struct{}

var w3c = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

// Inject implements Propagator.
func (TraceContextPropagator) Inject(sc SpanContext, carrier Carrier) error {
	if !sc.IsValid() {
		return ErrInvalidSpanContext
	}

	var flags trace.TraceFlags
	if sc.IsSampled() {
		flags = trace.FlagsSampled
	}
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    sc.TraceID(),
		SpanID:     sc.SpanID(),
		TraceFlags: flags,
		Remote:     true,
	}))

	if len(sc.baggage) > 0 {
		members := make([]baggage.Member, 0, len(sc.baggage))
		for k, v := range sc.baggage {
			m, err := baggage.NewMemberRaw(k, v)
			if err != nil {
				return fmt.Errorf("baggage item %q: %w", k, err)
			}
			members = append(members, m)
		}
		bag, err := baggage.New(members...)
		if err != nil {
			return fmt.Errorf("building baggage: %w", err)
		}
		ctx = baggage.ContextWithBaggage(ctx, bag)
	}

	w3c.Inject(ctx, carrier)
	return nil
}

// Extract implements Propagator.
func (TraceContextPropagator) Extract(carrier Carrier) (SpanContext, error) {
	ctx := w3c.Extract(context.Background(), caseInsensitive{carrier})

	otelSC := trace.SpanContextFromContext(ctx)
	if !otelSC.IsValid() {
		if raw := (caseInsensitive{carrier}).Get(traceparentHeader); raw != "" {
			return SpanContext{}, malformed(traceparentHeader, raw, "rejected by W3C trace context parser")
		}
		return SpanContext{}, nil
	}

	var flags byte
	if otelSC.IsSampled() {
		flags = FlagSampled
	}

	var items map[string]string
	if members := baggage.FromContext(ctx).Members(); len(members) > 0 {
		items = make(map[string]string, len(members))
		for _, m := range members {
			items[m.Key()] = m.Value()
		}
	}
	return NewSpanContext(otelSC.TraceID(), otelSC.SpanID(), SpanID{}, flags, items), nil
}

// caseInsensitive adapts a carrier whose Get is case-sensitive (MapCarrier).
type caseInsensitive struct {
	Carrier
}

func (c caseInsensitive) Get(key string) string {
	if v := c.Carrier.Get(key); v != "" {
		return v
	}
	for _, k := range c.Carrier.Keys() {
		if strings.EqualFold(k, key) {
			return c.Carrier.Get(k)
		}
	}
	return ""
}
