package service

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/zoobzio/hellotrace"
	"github.com/zoobzio/hellotrace/internal/greeting"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTracer(t *testing.T, service string, opts ...hellotrace.Option) (*hellotrace.Tracer, *hellotrace.Collector) {
	t.Helper()
	collector := hellotrace.NewCollector(100)
	collector.SetSyncMode(true)
	opts = append(opts, hellotrace.WithReporter(collector))
	tracer := hellotrace.New(service, opts...)
	t.Cleanup(func() { _ = tracer.Close(context.Background()) })
	return tracer, collector
}

func get(router http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestFormatterDefaultGreeting(t *testing.T) {
	tracer, collector := newTracer(t, "formatter")
	router := NewFormatterRouter(tracer, zap.NewNop(), nil)

	w := get(router, "/format?helloTo=world", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello, world!", w.Body.String())

	spans := collector.Export()
	require.Len(t, spans, 1)
	rec := spans[0]
	assert.Equal(t, "format", rec.Name)
	require.Len(t, rec.Logs, 1)
	assert.Equal(t, "string-format", rec.Logs[0].Fields["event"])
	assert.Equal(t, "Hello, world!", rec.Logs[0].Fields["value"])
}

func TestFormatterUsesGreetingBaggage(t *testing.T) {
	tracer, collector := newTracer(t, "formatter")
	router := NewFormatterRouter(tracer, zap.NewNop(), nil)

	header := http.Header{}
	header.Set("uber-trace-id", "0af7651916cd43dd8448eb211c80319c:b7ad6b7169203331:0:1")
	header.Set("uberctx-greeting", "Bonjour")
	w := get(router, "/format?helloTo=Bryan", header)

	assert.Equal(t, "Bonjour, Bryan!", w.Body.String())
	rec := collector.Export()[0]
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", rec.TraceID.String())
	assert.Equal(t, "b7ad6b7169203331", rec.ParentID.String())
}

func TestFormatterMissingTarget(t *testing.T) {
	tracer, collector := newTracer(t, "formatter")
	router := NewFormatterRouter(tracer, zap.NewNop(), nil)

	w := get(router, "/format", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, true, collector.Export()[0].Tags[hellotrace.TagError])
}

func TestPublisherPrints(t *testing.T) {
	tracer, collector := newTracer(t, "publisher")
	var out bytes.Buffer
	router := NewPublisherRouter(tracer, greeting.NewPrinter(&out), zap.NewNop(), nil)

	w := get(router, "/publish?helloStr=Hello,%20world!", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "published", w.Body.String())
	assert.Equal(t, "Hello, world!\n", out.String())

	rec := collector.Export()[0]
	assert.Equal(t, "publish", rec.Name)
	assert.Equal(t, "println", rec.Logs[0].Fields["event"])
}

func TestPublisherMissingText(t *testing.T) {
	tracer, _ := newTracer(t, "publisher")
	var out bytes.Buffer
	router := NewPublisherRouter(tracer, greeting.NewPrinter(&out), zap.NewNop(), nil)

	w := get(router, "/publish", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, out.String())
}

func TestHealthAndMetricsAreNotTraced(t *testing.T) {
	reg := prometheus.NewRegistry()
	tracer, collector := newTracer(t, "formatter", hellotrace.WithMetrics(hellotrace.NewMetrics(reg)))
	router := NewFormatterRouter(tracer, zap.NewNop(), reg)

	get(router, "/format?helloTo=world", nil)
	assert.Equal(t, http.StatusOK, get(router, "/health", nil).Code)

	w := get(router, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "hellotrace_spans_finished_total 1"))
	assert.Equal(t, 1, collector.Count())
}

func TestRequestIDIsEchoedOrGenerated(t *testing.T) {
	tracer, _ := newTracer(t, "formatter")
	router := NewFormatterRouter(tracer, zap.NewNop(), nil)

	w := get(router, "/health", nil)
	generated := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(generated)
	require.NoError(t, err)

	w = get(router, "/health", http.Header{RequestIDHeader: []string{"req-42"}})
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestRegisterServerLifecycle(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.NotFoundHandler())
	app := fxtest.New(t,
		fx.Supply(srv, zap.NewNop()),
		fx.Invoke(RegisterServer),
	)
	app.RequireStart()
	app.RequireStop()
}
