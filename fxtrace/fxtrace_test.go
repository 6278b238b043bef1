package fxtrace

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/zoobzio/hellotrace"
)

type collectorServer struct {
	*httptest.Server
	mu      sync.Mutex
	batches []hellotrace.Batch
}

func newCollectorServer(t *testing.T) *collectorServer {
	t.Helper()
	cs := &collectorServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		b, err := hellotrace.DecodeBatch(data)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		cs.mu.Lock()
		cs.batches = append(cs.batches, b)
		cs.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *collectorServer) spanNames() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	var names []string
	for _, b := range cs.batches {
		for _, s := range b.Spans {
			names = append(names, s.Name)
		}
	}
	return names
}

func testConfig(service string) *hellotrace.Config {
	cfg := hellotrace.DefaultConfig(service)
	cfg.LogSpans = false
	cfg.FlushTimeout = 2 * time.Second
	return cfg
}

func TestCoreFlushesOnStop(t *testing.T) {
	cs := newCollectorServer(t)
	cfg := testConfig("formatter")
	cfg.CollectorEndpoint = cs.URL

	var tracer *hellotrace.Tracer
	app := fxtest.New(t,
		fx.Supply(cfg, zap.NewNop()),
		Core,
		fx.Populate(&tracer),
	)
	app.RequireStart()

	ctx, scope := tracer.StartActiveSpan(context.Background(), "say-hello")
	_ = tracer.StartSpan(ctx, "formatString").Finish()
	require.NoError(t, scope.Close())

	app.RequireStop()
	assert.ElementsMatch(t, []string{"say-hello", "formatString"}, cs.spanNames())
	assert.True(t, tracer.IsClosed())
}

func TestCoreDisabledNeverSamples(t *testing.T) {
	cs := newCollectorServer(t)
	cfg := testConfig("formatter")
	cfg.Disabled = true
	cfg.CollectorEndpoint = cs.URL

	var tracer *hellotrace.Tracer
	app := fxtest.New(t,
		fx.Supply(cfg, zap.NewNop()),
		Core,
		fx.Populate(&tracer),
	)
	app.RequireStart()

	span := tracer.StartSpan(context.Background(), "say-hello")
	assert.False(t, span.Context().IsSampled())
	assert.True(t, span.Context().IsValid(), "context still propagates")
	_ = span.Finish()

	app.RequireStop()
	assert.Empty(t, cs.spanNames())
}

func TestCoreExposesMetrics(t *testing.T) {
	var (
		tracer   *hellotrace.Tracer
		gatherer prometheus.Gatherer
	)
	app := fxtest.New(t,
		fx.Supply(testConfig("publisher"), zap.NewNop()),
		Core,
		fx.Populate(&tracer, &gatherer),
	)
	app.RequireStart()
	defer app.RequireStop()

	_ = tracer.StartSpan(context.Background(), "publish").Finish()

	families, err := gatherer.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["hellotrace_spans_started_total"])
	assert.True(t, names["go_goroutines"])
}

func TestNewReporterChain(t *testing.T) {
	metrics := hellotrace.NewMetrics(prometheus.NewRegistry())
	logger := zap.NewNop()

	cfg := testConfig("svc")
	r, err := NewReporter(cfg, logger, metrics)
	require.NoError(t, err)
	assert.IsType(t, hellotrace.NullReporter{}, r)

	cfg.LogSpans = true
	r, err = NewReporter(cfg, logger, metrics)
	require.NoError(t, err)
	assert.IsType(t, &hellotrace.LoggingReporter{}, r)

	cfg.CollectorEndpoint = "http://127.0.0.1:1/spans"
	cfg.KafkaBrokers = []string{"127.0.0.1:9092"}
	r, err = NewReporter(cfg, logger, metrics)
	require.NoError(t, err)
	assert.IsType(t, &hellotrace.CompositeReporter{}, r)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Close(ctx))
}

func TestModuleLoadsFromEnv(t *testing.T) {
	t.Setenv("TRACER_SAMPLER_TYPE", "probabilistic")
	t.Setenv("TRACER_SAMPLER_PARAM", "0")
	t.Setenv("TRACER_LOG_SPANS", "false")
	t.Setenv("LOG_LEVEL", "error")

	var (
		cfg    *hellotrace.Config
		tracer *hellotrace.Tracer
	)
	app := fxtest.New(t, Module("hello-world"), fx.Populate(&cfg, &tracer))
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, "hello-world", cfg.ServiceName)
	assert.Equal(t, "hello-world", tracer.ServiceName())
	assert.False(t, tracer.StartSpan(context.Background(), "x").Context().IsSampled())
}

func TestModuleRejectsBadConfig(t *testing.T) {
	t.Setenv("TRACER_PROPAGATION", "b3")
	app := fx.New(Module("hello-world"), fx.Invoke(func(*hellotrace.Tracer) {}), fx.NopLogger)
	assert.Error(t, app.Err())
}
