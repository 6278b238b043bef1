package hellotrace

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Carrier is a flat set of text headers. propagation.MapCarrier and
// propagation.HeaderCarrier both satisfy it.
type Carrier = propagation.TextMapCarrier

// Propagator encodes span contexts into carriers and decodes them back.
//
// Extract returns an invalid SpanContext and a nil error when the carrier holds
// no trace, and an error matching ErrMalformedHeader when a trace header is
// present but cannot be decoded.
type Propagator interface {
	Inject(sc SpanContext, carrier Carrier) error
	Extract(carrier Carrier) (SpanContext, error)
}

// Default Jaeger header names.
const (
	TraceContextHeaderName = "uber-trace-id"
	BaggageHeaderPrefix    = "uberctx-"
)

// JaegerPropagator speaks the uber-trace-id header scheme:
//
//	uber-trace-id: {trace-id}:{span-id}:{parent-span-id}:{flags}
//	uberctx-{key}: {url-escaped value}
//
// Ids are lowercase hex; flags are decimal. Parent is "0" for root spans.
type JaegerPropagator struct {
	// HeaderName overrides TraceContextHeaderName.
	HeaderName string
	// BaggagePrefix overrides BaggageHeaderPrefix.
	BaggagePrefix string
}

func (p JaegerPropagator) header() string {
	if p.HeaderName != "" {
		return strings.ToLower(p.HeaderName)
	}
	return TraceContextHeaderName
}

func (p JaegerPropagator) prefix() string {
	if p.BaggagePrefix != "" {
		return strings.ToLower(p.BaggagePrefix)
	}
	return BaggageHeaderPrefix
}

// Inject implements Propagator.
func (p JaegerPropagator) Inject(sc SpanContext, carrier Carrier) error {
	if !sc.IsValid() {
		return ErrInvalidSpanContext
	}
	carrier.Set(p.header(), EncodeTraceHeader(sc))
	prefix := p.prefix()
	sc.ForeachBaggageItem(func(k, v string) bool {
		carrier.Set(prefix+k, url.QueryEscape(v))
		return true
	})
	return nil
}

// Extract implements Propagator. Header names are matched case-insensitively.
func (p JaegerPropagator) Extract(carrier Carrier) (SpanContext, error) {
	header := p.header()
	prefix := p.prefix()

	var (
		traceValue string
		found      bool
		rawBaggage map[string]string
	)
	for _, key := range carrier.Keys() {
		lower := strings.ToLower(key)
		switch {
		case lower == header:
			traceValue = carrier.Get(key)
			found = true
		case strings.HasPrefix(lower, prefix) && len(lower) > len(prefix):
			if rawBaggage == nil {
				rawBaggage = make(map[string]string)
			}
			rawBaggage[lower[len(prefix):]] = carrier.Get(key)
		}
	}

	// Baggage without a trace header is not a trace.
	if !found || traceValue == "" {
		return SpanContext{}, nil
	}

	var baggage map[string]string
	if len(rawBaggage) > 0 {
		baggage = make(map[string]string, len(rawBaggage))
		for k, raw := range rawBaggage {
			value, err := url.QueryUnescape(raw)
			if err != nil {
				return SpanContext{}, malformed(prefix+k, raw, "baggage value is not url-encoded")
			}
			baggage[k] = value
		}
	}

	sc, err := ParseTraceHeader(traceValue)
	if err != nil {
		var mhe *MalformedHeaderError
		if errors.As(err, &mhe) {
			mhe.Header = header
		}
		return SpanContext{}, err
	}
	return NewSpanContext(sc.traceID, sc.spanID, sc.parentID, sc.flags, baggage), nil
}

// EncodeTraceHeader renders the uber-trace-id value of sc.
func EncodeTraceHeader(sc SpanContext) string {
	parent := "0"
	if sc.parentID.IsValid() {
		parent = sc.parentID.String()
	}
	return fmt.Sprintf("%s:%s:%s:%d", sc.traceID.String(), sc.spanID.String(), parent, sc.flags)
}

// ParseTraceHeader decodes an uber-trace-id value. The result carries no baggage.
func ParseTraceHeader(value string) (SpanContext, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 4 {
		return SpanContext{}, malformed(TraceContextHeaderName, value,
			fmt.Sprintf("expected 4 fields, got %d", len(parts)))
	}

	traceID, err := parseHexTraceID(parts[0])
	if err != nil {
		return SpanContext{}, malformed(TraceContextHeaderName, value, "trace id: "+err.Error())
	}
	spanID, err := parseHexSpanID(parts[1])
	if err != nil {
		return SpanContext{}, malformed(TraceContextHeaderName, value, "span id: "+err.Error())
	}

	// Any all-zero parent field, padded or not, means no parent.
	var parentID SpanID
	if parts[2] == "" || strings.Trim(parts[2], "0") != "" {
		parentID, err = parseHexSpanID(parts[2])
		if err != nil {
			return SpanContext{}, malformed(TraceContextHeaderName, value, "parent id: "+err.Error())
		}
	}

	flags, err := strconv.ParseUint(parts[3], 10, 8)
	if err != nil {
		return SpanContext{}, malformed(TraceContextHeaderName, value, "flags: "+err.Error())
	}

	return SpanContext{
		traceID:  traceID,
		spanID:   spanID,
		parentID: parentID,
		flags:    byte(flags),
	}, nil
}

func parseHexTraceID(s string) (TraceID, error) {
	if s == "" || len(s) > 32 {
		return TraceID{}, fmt.Errorf("length %d out of range", len(s))
	}
	return trace.TraceIDFromHex(leftPad(strings.ToLower(s), 32))
}

func parseHexSpanID(s string) (SpanID, error) {
	if s == "" || len(s) > 16 {
		return SpanID{}, fmt.Errorf("length %d out of range", len(s))
	}
	return trace.SpanIDFromHex(leftPad(strings.ToLower(s), 16))
}

func leftPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}

// CompositePropagator injects with every member and extracts with the first
// member that finds a trace.
type CompositePropagator []Propagator

// NewCompositePropagator combines propagators in priority order.
func NewCompositePropagator(ps ...Propagator) CompositePropagator {
	return CompositePropagator(ps)
}

// Inject implements Propagator.
func (c CompositePropagator) Inject(sc SpanContext, carrier Carrier) error {
	var errs []error
	for _, p := range c {
		if err := p.Inject(sc, carrier); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Extract implements Propagator. If no member finds a valid context, the first
// decode error is returned.
func (c CompositePropagator) Extract(carrier Carrier) (SpanContext, error) {
	var firstErr error
	for _, p := range c {
		sc, err := p.Extract(carrier)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if sc.IsValid() {
			return sc, nil
		}
	}
	return SpanContext{}, firstErr
}
