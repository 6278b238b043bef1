package hellotrace

import (
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel/propagation"
)

func sampleContext(t *testing.T) SpanContext {
	t.Helper()
	return NewSpanContext(
		mustTraceID(t, "0af7651916cd43dd8448eb211c80319c"),
		mustSpanID(t, "b7ad6b7169203331"),
		mustSpanID(t, "00f067aa0ba902b7"),
		FlagSampled,
		map[string]string{"greeting": "Bonjour, monde", "tenant": "a&b=c"},
	)
}

func TestJaegerInjectFormat(t *testing.T) {
	carrier := propagation.MapCarrier{}
	if err := (JaegerPropagator{}).Inject(sampleContext(t), carrier); err != nil {
		t.Fatal(err)
	}

	want := "0af7651916cd43dd8448eb211c80319c:b7ad6b7169203331:00f067aa0ba902b7:1"
	if got := carrier[TraceContextHeaderName]; got != want {
		t.Errorf("trace header: expected %q, got %q", want, got)
	}
	if got := carrier["uberctx-greeting"]; got != "Bonjour%2C+monde" {
		t.Errorf("baggage must be url-escaped, got %q", got)
	}
	if got := carrier["uberctx-tenant"]; got != "a%26b%3Dc" {
		t.Errorf("baggage must be url-escaped, got %q", got)
	}
}

func TestJaegerInjectRootParent(t *testing.T) {
	sc := NewSpanContext(
		mustTraceID(t, "0af7651916cd43dd8448eb211c80319c"),
		mustSpanID(t, "b7ad6b7169203331"),
		SpanID{}, 0, nil,
	)
	if got := EncodeTraceHeader(sc); got != "0af7651916cd43dd8448eb211c80319c:b7ad6b7169203331:0:0" {
		t.Errorf("unexpected header %q", got)
	}
}

func TestJaegerRoundTrip(t *testing.T) {
	for _, sc := range []SpanContext{
		sampleContext(t),
		NewSpanContext(mustTraceID(t, "00000000000000000000000000000001"), mustSpanID(t, "0000000000000001"), SpanID{}, 0, nil),
		NewSpanContext(mustTraceID(t, "ffffffffffffffffffffffffffffffff"), mustSpanID(t, "ffffffffffffffff"), SpanID{}, FlagSampled|FlagDebug, map[string]string{"k": ""}),
	} {
		carrier := propagation.MapCarrier{}
		p := JaegerPropagator{}
		if err := p.Inject(sc, carrier); err != nil {
			t.Fatal(err)
		}
		got, err := p.Extract(carrier)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(sc) {
			t.Errorf("round trip mismatch:\n sent %+v\n  got %+v", sc, got)
		}
	}
}

func TestJaegerExtractCaseInsensitive(t *testing.T) {
	header := http.Header{}
	header.Set("UBER-TRACE-ID", "0af7651916cd43dd8448eb211c80319c:b7ad6b7169203331:0:1")
	header.Set("Uberctx-Greeting", "Hola")

	sc, err := (JaegerPropagator{}).Extract(propagation.HeaderCarrier(header))
	if err != nil {
		t.Fatal(err)
	}
	if !sc.IsValid() {
		t.Fatal("expected valid context")
	}
	if got := sc.BaggageItem("greeting"); got != "Hola" {
		t.Errorf("expected baggage Hola, got %q", got)
	}

	mixed := propagation.MapCarrier{"Uber-Trace-Id": "0af7651916cd43dd8448eb211c80319c:b7ad6b7169203331:0:1"}
	if sc, err := (JaegerPropagator{}).Extract(mixed); err != nil || !sc.IsValid() {
		t.Errorf("map keys must match case-insensitively: %v", err)
	}
}

func TestJaegerExtractShortIDs(t *testing.T) {
	sc, err := ParseTraceHeader("abc:de:0:1")
	if err != nil {
		t.Fatal(err)
	}
	if sc.TraceID().String() != "00000000000000000000000000000abc" {
		t.Errorf("trace id not left-padded: %s", sc.TraceID())
	}
	if sc.SpanID().String() != "00000000000000de" {
		t.Errorf("span id not left-padded: %s", sc.SpanID())
	}
}

func TestJaegerExtractZeroPaddedParent(t *testing.T) {
	for _, parent := range []string{"0", "00", "0000000000000000"} {
		sc, err := ParseTraceHeader("0af7651916cd43dd8448eb211c80319c:b7ad6b7169203331:" + parent + ":1")
		if err != nil {
			t.Fatalf("parent %q: %v", parent, err)
		}
		if sc.ParentID().IsValid() {
			t.Errorf("parent %q should decode as no parent, got %s", parent, sc.ParentID())
		}
	}
	if _, err := ParseTraceHeader("0af7651916cd43dd8448eb211c80319c:b7ad6b7169203331::1"); !errors.Is(err, ErrMalformedHeader) {
		t.Errorf("empty parent field should be malformed, got %v", err)
	}
}

func TestJaegerExtractAbsent(t *testing.T) {
	cases := map[string]propagation.MapCarrier{
		"empty carrier":       {},
		"empty trace header":  {TraceContextHeaderName: ""},
		"baggage only":        {"uberctx-greeting": "Hi"},
		"bad baggage only":    {"uberctx-greeting": "%zz"},
		"unrelated headers":   {"content-type": "text/plain"},
		"bare baggage prefix": {"uberctx-": "x"},
	}
	for name, carrier := range cases {
		t.Run(name, func(t *testing.T) {
			sc, err := (JaegerPropagator{}).Extract(carrier)
			if err != nil {
				t.Fatalf("absence is not an error: %v", err)
			}
			if sc.IsValid() {
				t.Error("expected invalid context")
			}
		})
	}
}

func TestJaegerExtractMalformed(t *testing.T) {
	cases := map[string]string{
		"too few fields":  "0af7651916cd43dd8448eb211c80319c:b7ad6b7169203331:1",
		"too many fields": "0af7651916cd43dd8448eb211c80319c:b7ad6b7169203331:0:1:9",
		"bad trace hex":   "zzz:b7ad6b7169203331:0:1",
		"long trace id":   "00af7651916cd43dd8448eb211c80319c:b7ad6b7169203331:0:1",
		"zero trace id":   "0:b7ad6b7169203331:0:1",
		"zero span id":    "0af7651916cd43dd8448eb211c80319c:0:0:1",
		"empty span id":   "0af7651916cd43dd8448eb211c80319c::0:1",
		"bad parent":      "0af7651916cd43dd8448eb211c80319c:b7ad6b7169203331:xyz:1",
		"bad flags":       "0af7651916cd43dd8448eb211c80319c:b7ad6b7169203331:0:one",
		"flags overflow":  "0af7651916cd43dd8448eb211c80319c:b7ad6b7169203331:0:256",
		"garbage":         "not-a-trace",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := (JaegerPropagator{}).Extract(propagation.MapCarrier{TraceContextHeaderName: value})
			if !errors.Is(err, ErrMalformedHeader) {
				t.Fatalf("expected ErrMalformedHeader, got %v", err)
			}
			var mhe *MalformedHeaderError
			if !errors.As(err, &mhe) {
				t.Fatal("expected *MalformedHeaderError")
			}
			if mhe.Header != TraceContextHeaderName || mhe.Value != value {
				t.Errorf("unexpected error detail: %+v", mhe)
			}
		})
	}
}

func TestJaegerExtractBadBaggageWithTrace(t *testing.T) {
	carrier := propagation.MapCarrier{
		TraceContextHeaderName: "0af7651916cd43dd8448eb211c80319c:b7ad6b7169203331:0:1",
		"uberctx-greeting":     "%zz",
	}
	if _, err := (JaegerPropagator{}).Extract(carrier); !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("expected ErrMalformedHeader, got %v", err)
	}
}

func TestJaegerInjectInvalid(t *testing.T) {
	carrier := propagation.MapCarrier{}
	if err := (JaegerPropagator{}).Inject(SpanContext{}, carrier); !errors.Is(err, ErrInvalidSpanContext) {
		t.Fatalf("expected ErrInvalidSpanContext, got %v", err)
	}
	if len(carrier) != 0 {
		t.Error("nothing should be written for an invalid context")
	}
}

func TestJaegerCustomHeaders(t *testing.T) {
	p := JaegerPropagator{HeaderName: "X-Trace", BaggagePrefix: "X-Bag-"}
	carrier := propagation.MapCarrier{}
	if err := p.Inject(sampleContext(t), carrier); err != nil {
		t.Fatal(err)
	}
	if _, ok := carrier["x-trace"]; !ok {
		t.Errorf("expected custom header, got %v", carrier)
	}
	got, err := p.Extract(carrier)
	if err != nil || !got.Equal(sampleContext(t)) {
		t.Errorf("custom header round trip failed: %v", err)
	}
}

func TestTraceContextRoundTrip(t *testing.T) {
	sc := NewSpanContext(
		mustTraceID(t, "0af7651916cd43dd8448eb211c80319c"),
		mustSpanID(t, "b7ad6b7169203331"),
		SpanID{}, FlagSampled,
		map[string]string{"greeting": "Hello"},
	)
	carrier := propagation.MapCarrier{}
	if err := (TraceContextPropagator{}).Inject(sc, carrier); err != nil {
		t.Fatal(err)
	}
	if got := carrier["traceparent"]; got != "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01" {
		t.Errorf("unexpected traceparent %q", got)
	}

	got, err := (TraceContextPropagator{}).Extract(carrier)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(sc) {
		t.Errorf("round trip mismatch: %+v vs %+v", got, sc)
	}
}

func TestTraceContextExtractAbsentAndMalformed(t *testing.T) {
	sc, err := (TraceContextPropagator{}).Extract(propagation.MapCarrier{})
	if err != nil || sc.IsValid() {
		t.Errorf("absent traceparent: expected invalid context and nil error, got %v", err)
	}

	_, err = (TraceContextPropagator{}).Extract(propagation.MapCarrier{"Traceparent": "00-nope-nope-01"})
	if !errors.Is(err, ErrMalformedHeader) {
		t.Errorf("expected ErrMalformedHeader, got %v", err)
	}
}

func TestCompositePropagator(t *testing.T) {
	p := NewCompositePropagator(JaegerPropagator{}, TraceContextPropagator{})
	sc := sampleContext(t)

	carrier := propagation.MapCarrier{}
	if err := p.Inject(sc, carrier); err != nil {
		t.Fatal(err)
	}
	if carrier[TraceContextHeaderName] == "" || carrier["traceparent"] == "" {
		t.Fatalf("expected both formats, got %v", carrier)
	}

	got, err := p.Extract(carrier)
	if err != nil {
		t.Fatal(err)
	}
	if got.ParentID() != sc.ParentID() {
		t.Error("jaeger format should win and keep the parent id")
	}

	// Only W3C present: the second member picks it up.
	w3cOnly := propagation.MapCarrier{"traceparent": carrier["traceparent"]}
	got, err = p.Extract(w3cOnly)
	if err != nil || got.TraceID() != sc.TraceID() {
		t.Errorf("fallback extract failed: %v", err)
	}

	// Malformed jaeger and no W3C: the decode error surfaces.
	_, err = p.Extract(propagation.MapCarrier{TraceContextHeaderName: "bad"})
	if !errors.Is(err, ErrMalformedHeader) {
		t.Errorf("expected ErrMalformedHeader, got %v", err)
	}
}
