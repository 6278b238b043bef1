package hello

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zoobzio/hellotrace"
	"github.com/zoobzio/hellotrace/internal/greeting"
	"github.com/zoobzio/hellotrace/internal/service"
	"github.com/zoobzio/hellotrace/spanhttp"
)

func newTracer(t *testing.T, name string) (*hellotrace.Tracer, *hellotrace.Collector) {
	t.Helper()
	collector := hellotrace.NewCollector(100)
	collector.SetSyncMode(true)
	tracer := hellotrace.New(name, hellotrace.WithReporter(collector))
	t.Cleanup(func() { _ = tracer.Close(context.Background()) })
	return tracer, collector
}

func spanNamed(t *testing.T, spans []hellotrace.SpanRecord, name string) hellotrace.SpanRecord {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	require.Failf(t, "span not found", "no span named %q", name)
	return hellotrace.SpanRecord{}
}

type services struct {
	formatter      *httptest.Server
	publisher      *httptest.Server
	formatterSpans *hellotrace.Collector
	publisherSpans *hellotrace.Collector
	printed        *bytes.Buffer
}

func startServices(t *testing.T) *services {
	t.Helper()
	gin.SetMode(gin.TestMode)

	formatterTracer, formatterSpans := newTracer(t, "formatter")
	publisherTracer, publisherSpans := newTracer(t, "publisher")
	printed := &bytes.Buffer{}

	s := &services{
		formatter:      httptest.NewServer(service.NewFormatterRouter(formatterTracer, zap.NewNop(), nil)),
		publisher:      httptest.NewServer(service.NewPublisherRouter(publisherTracer, greeting.NewPrinter(printed), zap.NewNop(), nil)),
		formatterSpans: formatterSpans,
		publisherSpans: publisherSpans,
		printed:        printed,
	}
	t.Cleanup(s.formatter.Close)
	t.Cleanup(s.publisher.Close)
	return s
}

func TestSayHelloRemote(t *testing.T) {
	svc := startServices(t)
	tracer, spans := newTracer(t, "hello-world")
	client := NewClient(tracer, spanhttp.NewClient(tracer, spanhttp.DefaultClientConfig()), nil, zap.NewNop(), Config{
		FormatterURL: svc.formatter.URL + "/",
		PublisherURL: svc.publisher.URL,
	})

	got, err := client.SayHello(context.Background(), "Bryan", "Bonjour")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour, Bryan!", got)
	assert.Equal(t, "Bonjour, Bryan!\n", svc.printed.String())

	local := spans.Export()
	require.Len(t, local, 3)
	root := spanNamed(t, local, "say-hello")
	formatCall := spanNamed(t, local, "formatString")
	printCall := spanNamed(t, local, "printHello")
	format := spanNamed(t, svc.formatterSpans.Export(), "format")
	publish := spanNamed(t, svc.publisherSpans.Export(), "publish")

	assert.Equal(t, "Bryan", root.Tags[TagHelloTo])
	assert.Equal(t, "Bonjour", root.Baggage[greeting.BaggageKey])
	for _, rec := range []hellotrace.SpanRecord{formatCall, printCall, format, publish} {
		assert.Equal(t, root.TraceID, rec.TraceID, rec.Name)
	}
	assert.Equal(t, root.SpanID, formatCall.ParentID)
	assert.Equal(t, root.SpanID, printCall.ParentID)
	assert.Equal(t, formatCall.SpanID, format.ParentID)
	assert.Equal(t, printCall.SpanID, publish.ParentID)

	assert.Equal(t, "string-format", formatCall.Logs[0].Fields["event"])
	assert.Equal(t, "println", printCall.Logs[0].Fields["event"])
	assert.Equal(t, hellotrace.SpanKindClient, formatCall.Tags[hellotrace.TagSpanKind])
	assert.Equal(t, svc.formatter.URL+"/format", formatCall.Tags[hellotrace.TagHTTPURL])
}

func TestSayHelloRemoteFormatterFailure(t *testing.T) {
	formatter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer formatter.Close()

	tracer, spans := newTracer(t, "hello-world")
	client := NewClient(tracer, spanhttp.NewClient(tracer, spanhttp.DefaultClientConfig()), nil, nil, Config{
		FormatterURL: formatter.URL,
		PublisherURL: "http://127.0.0.1:1",
	})

	_, err := client.SayHello(context.Background(), "world", "")
	var statusErr *spanhttp.StatusError
	require.ErrorAs(t, err, &statusErr)

	local := spans.Export()
	require.Len(t, local, 2, "printHello must not run")
	assert.Equal(t, true, spanNamed(t, local, "say-hello").Tags[hellotrace.TagError])
	assert.Equal(t, true, spanNamed(t, local, "formatString").Tags[hellotrace.TagError])
}

func TestSayHelloLocal(t *testing.T) {
	tracer, spans := newTracer(t, "hello-world")
	var out bytes.Buffer
	client := NewClient(tracer, nil, greeting.NewPrinter(&out), nil, Config{Local: true})

	got, err := client.SayHello(context.Background(), "world", "")
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", got)
	assert.Equal(t, "Hello, world!\n", out.String())

	recs := spans.Export()
	require.Len(t, recs, 3)
	root := spanNamed(t, recs, "say-hello")
	format := spanNamed(t, recs, "format")
	printRec := spanNamed(t, recs, "println")
	assert.Equal(t, root.SpanID, format.ParentID)
	assert.Equal(t, root.SpanID, printRec.ParentID)
	assert.Equal(t, "Hello, world!", format.Logs[0].Fields["value"])
	assert.Equal(t, "println", printRec.Logs[0].Fields["event"])
}

func TestSayHelloLocalBaggageReachesFormat(t *testing.T) {
	tracer, spans := newTracer(t, "hello-world")
	var out bytes.Buffer
	client := NewClient(tracer, nil, greeting.NewPrinter(&out), nil, Config{Local: true})

	got, err := client.SayHello(context.Background(), "Bryan", "Hola")
	require.NoError(t, err)
	assert.Equal(t, "Hola, Bryan!", got)
	assert.Equal(t, "Hola", spanNamed(t, spans.Export(), "format").Baggage[greeting.BaggageKey])
}

func TestSayHelloLocalMissingTarget(t *testing.T) {
	tracer, spans := newTracer(t, "hello-world")
	var out bytes.Buffer
	client := NewClient(tracer, nil, greeting.NewPrinter(&out), nil, Config{Local: true})

	_, err := client.SayHello(context.Background(), "", "")
	assert.ErrorIs(t, err, greeting.ErrMissingTarget)
	assert.Empty(t, out.String())
	assert.Len(t, spans.Export(), 2)
}
