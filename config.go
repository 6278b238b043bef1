package hellotrace

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Sampler types accepted by Config.SamplerType.
const (
	SamplerConst         = "const"
	SamplerProbabilistic = "probabilistic"
	SamplerRateLimiting  = "ratelimiting"
)

// Propagation formats accepted by Config.Propagation.
const (
	PropagationJaeger = "jaeger"
	PropagationW3C    = "w3c"
	PropagationBoth   = "both"
)

// Config holds tracer configuration loaded from the environment.
//
//nolint:govet // Field order follows the environment variable listing
type Config struct {
	ServiceName  string        `envconfig:"SERVICE_NAME"`
	Disabled     bool          `envconfig:"DISABLED" default:"false"`
	SamplerType  string        `envconfig:"SAMPLER_TYPE" default:"const"`
	SamplerParam float64       `envconfig:"SAMPLER_PARAM" default:"1"`
	Propagation  string        `envconfig:"PROPAGATION" default:"jaeger"`
	FlushTimeout time.Duration `envconfig:"FLUSH_TIMEOUT" default:"5s"`
	LogSpans     bool          `envconfig:"LOG_SPANS" default:"true"`

	QueueSize     int           `envconfig:"QUEUE_SIZE" default:"1000"`
	BatchSize     int           `envconfig:"BATCH_SIZE" default:"100"`
	FlushInterval time.Duration `envconfig:"FLUSH_INTERVAL" default:"1s"`
	Workers       int           `envconfig:"WORKERS" default:"2"`

	CollectorEndpoint string   `envconfig:"COLLECTOR_ENDPOINT"`
	KafkaBrokers      []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic        string   `envconfig:"KAFKA_TOPIC" default:"spans"`
}

// LoadConfig reads configuration from environment variables named
// <prefix>_<NAME>, for example TRACER_SAMPLER_TYPE. serviceName is used
// unless <prefix>_SERVICE_NAME is set.
func LoadConfig(prefix, serviceName string) (*Config, error) {
	cfg := Config{ServiceName: serviceName}
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load tracer config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName:   serviceName,
		SamplerType:   SamplerConst,
		SamplerParam:  1,
		Propagation:   PropagationJaeger,
		FlushTimeout:  DefaultFlushTimeout,
		LogSpans:      true,
		QueueSize:     1000,
		BatchSize:     100,
		FlushInterval: time.Second,
		Workers:       2,
		KafkaTopic:    "spans",
	}
}

// Validate checks field values and combinations.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ServiceName) == "" {
		errs = append(errs, errors.New("service name is required"))
	}
	switch c.SamplerType {
	case SamplerConst:
	case SamplerProbabilistic:
		if c.SamplerParam < 0 || c.SamplerParam > 1 {
			errs = append(errs, fmt.Errorf("probabilistic sampler param must be in [0, 1], got %v", c.SamplerParam))
		}
	case SamplerRateLimiting:
		if c.SamplerParam <= 0 {
			errs = append(errs, fmt.Errorf("rate limiting sampler param must be positive, got %v", c.SamplerParam))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sampler type %q", c.SamplerType))
	}
	switch c.Propagation {
	case PropagationJaeger, PropagationW3C, PropagationBoth:
	default:
		errs = append(errs, fmt.Errorf("unknown propagation format %q", c.Propagation))
	}
	if c.FlushTimeout <= 0 {
		errs = append(errs, errors.New("flush timeout must be positive"))
	}
	if c.QueueSize <= 0 || c.BatchSize <= 0 || c.Workers <= 0 {
		errs = append(errs, errors.New("queue size, batch size and workers must be positive"))
	}
	if c.FlushInterval <= 0 {
		errs = append(errs, errors.New("flush interval must be positive"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}

// NewSampler builds the configured sampler. A const sampler samples when
// SamplerParam is non-zero.
func (c *Config) NewSampler() (Sampler, error) {
	switch c.SamplerType {
	case SamplerConst, "":
		return ConstSampler(c.SamplerParam != 0), nil
	case SamplerProbabilistic:
		return NewProbabilisticSampler(c.SamplerParam)
	case SamplerRateLimiting:
		return NewRateLimitingSampler(c.SamplerParam), nil
	default:
		return nil, fmt.Errorf("unknown sampler type %q", c.SamplerType)
	}
}

// NewPropagator builds the configured header codec. "both" injects both
// formats and prefers uber-trace-id on extract.
func (c *Config) NewPropagator() (Propagator, error) {
	switch c.Propagation {
	case PropagationJaeger, "":
		return JaegerPropagator{}, nil
	case PropagationW3C:
		return TraceContextPropagator{}, nil
	case PropagationBoth:
		return NewCompositePropagator(JaegerPropagator{}, TraceContextPropagator{}), nil
	default:
		return nil, fmt.Errorf("unknown propagation format %q", c.Propagation)
	}
}
