// Package fxtrace wires a hellotrace.Tracer into an fx application.
//
// Module loads the tracer and logger configuration from the environment and
// provides:
//
//   - *hellotrace.Config
//   - *zap.Logger
//   - *prometheus.Registry, also exposed as prometheus.Gatherer
//   - *hellotrace.Metrics
//   - hellotrace.Reporter
//   - *hellotrace.Tracer
//
// On stop the tracer is closed, which flushes pending spans within the
// configured flush timeout. A flush timeout is logged but does not fail
// shutdown.
//
// Usage:
//
//	app := fx.New(
//	    fxtrace.Module("formatter"),
//	    fx.Invoke(func(t *hellotrace.Tracer) { ... }),
//	)
package fxtrace

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/zoobzio/hellotrace"
	"github.com/zoobzio/hellotrace/internal/logging"
	"github.com/zoobzio/hellotrace/kafkasender"
	"github.com/zoobzio/hellotrace/spanhttp"
)

// EnvPrefix prefixes every tracer environment variable.
const EnvPrefix = "TRACER"

// Core provides the registry, metrics, reporter and tracer. It expects a
// *hellotrace.Config and a *zap.Logger in the container.
var Core = fx.Options(
	fx.Provide(
		NewRegistry,
		fx.Annotate(
			func(r *prometheus.Registry) prometheus.Gatherer { return r },
			fx.As(new(prometheus.Gatherer)),
		),
		NewMetrics,
		NewReporter,
		NewTracer,
	),
	fx.Invoke(RegisterLifecycle),
)

// Module returns the complete tracing module for serviceName.
func Module(serviceName string) fx.Option {
	return fx.Module("hellotrace",
		fx.Provide(
			func() (*hellotrace.Config, error) {
				return hellotrace.LoadConfig(EnvPrefix, serviceName)
			},
			NewLogger,
		),
		Core,
	)
}

// NewLogger builds the process logger from LOG_* variables.
func NewLogger(cfg *hellotrace.Config) (*zap.Logger, error) {
	logCfg, err := logging.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", cfg.ServiceName)), nil
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics registers the tracer metrics on reg.
func NewMetrics(reg *prometheus.Registry) *hellotrace.Metrics {
	return hellotrace.NewMetrics(reg)
}

// NewReporter assembles the reporter chain described by cfg:
// a LoggingReporter when LogSpans is set, a RemoteReporter over HTTP when
// CollectorEndpoint is set and one over Kafka when KafkaBrokers is set.
// A disabled or empty configuration yields a NullReporter.
func NewReporter(cfg *hellotrace.Config, logger *zap.Logger, metrics *hellotrace.Metrics) (hellotrace.Reporter, error) {
	if cfg.Disabled {
		return hellotrace.NullReporter{}, nil
	}

	var reporters []hellotrace.Reporter
	if cfg.LogSpans {
		reporters = append(reporters, hellotrace.NewLoggingReporter(logger))
	}

	remote := func(sender hellotrace.Sender, sink string) hellotrace.Reporter {
		return hellotrace.NewRemoteReporter(sender, hellotrace.RemoteReporterConfig{
			Process:       hellotrace.Process{ServiceName: cfg.ServiceName},
			Logger:        logger.With(zap.String("sink", sink)),
			Metrics:       metrics,
			QueueSize:     cfg.QueueSize,
			BatchSize:     cfg.BatchSize,
			FlushInterval: cfg.FlushInterval,
			Workers:       cfg.Workers,
		})
	}

	if cfg.CollectorEndpoint != "" {
		reporters = append(reporters, remote(spanhttp.NewHTTPSender(cfg.CollectorEndpoint, 0), "http"))
	}
	if len(cfg.KafkaBrokers) > 0 {
		sender, err := kafkasender.New(kafkasender.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka sender: %w", err)
		}
		reporters = append(reporters, remote(sender, "kafka"))
	}

	switch len(reporters) {
	case 0:
		return hellotrace.NullReporter{}, nil
	case 1:
		return reporters[0], nil
	default:
		return hellotrace.NewCompositeReporter(reporters...), nil
	}
}

// NewTracer builds the tracer from cfg. A disabled tracer still propagates
// context but never samples.
func NewTracer(cfg *hellotrace.Config, reporter hellotrace.Reporter, logger *zap.Logger, metrics *hellotrace.Metrics) (*hellotrace.Tracer, error) {
	sampler, err := cfg.NewSampler()
	if err != nil {
		return nil, err
	}
	if cfg.Disabled {
		sampler = hellotrace.ConstSampler(false)
	}
	propagator, err := cfg.NewPropagator()
	if err != nil {
		return nil, err
	}

	tracer := hellotrace.New(cfg.ServiceName,
		hellotrace.WithSampler(sampler),
		hellotrace.WithPropagator(propagator),
		hellotrace.WithReporter(reporter),
		hellotrace.WithLogger(logger),
		hellotrace.WithMetrics(metrics),
		hellotrace.WithFlushTimeout(cfg.FlushTimeout),
	)
	logger.Info("tracer initialized",
		zap.String("sampler", fmt.Sprint(sampler)),
		zap.String("propagation", cfg.Propagation),
	)
	return tracer, nil
}

// RegisterLifecycle closes the tracer and syncs the logger on stop.
func RegisterLifecycle(lc fx.Lifecycle, tracer *hellotrace.Tracer, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down tracer")
			err := tracer.Close(ctx)
			_ = logger.Sync()
			if errors.Is(err, hellotrace.ErrFlushTimeout) {
				return nil
			}
			return err
		},
	})
}
