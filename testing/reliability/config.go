package reliability

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Reliability levels selected with HELLOTRACE_RELIABILITY_LEVEL.
const (
	LevelBasic  = "basic"
	LevelStress = "stress"
)

// ReliabilityConfig holds configuration for reliability testing.
type ReliabilityConfig struct {
	Level            string        `envconfig:"LEVEL"`
	Duration         time.Duration `envconfig:"DURATION" default:"30s"`
	MaxGoroutines    int           `envconfig:"MAX_GOROUTINES" default:"100"`
	FailureThreshold float64       `envconfig:"FAILURE_THRESHOLD" default:"0.05"`
}

// getReliabilityConfig reads HELLOTRACE_RELIABILITY_* variables.
func getReliabilityConfig(t *testing.T) ReliabilityConfig {
	t.Helper()
	var cfg ReliabilityConfig
	if err := envconfig.Process("HELLOTRACE_RELIABILITY", &cfg); err != nil {
		t.Fatalf("invalid reliability config: %v", err)
	}
	return cfg
}

// runLevels runs basic or stress subtests depending on the configured level
// and skips the test when no level is set.
func runLevels(t *testing.T, basic, stress map[string]func(*testing.T, ReliabilityConfig)) {
	t.Helper()
	cfg := getReliabilityConfig(t)

	var suite map[string]func(*testing.T, ReliabilityConfig)
	switch cfg.Level {
	case LevelBasic:
		suite = basic
	case LevelStress:
		suite = stress
	default:
		t.Skip("HELLOTRACE_RELIABILITY_LEVEL not set, skipping reliability tests")
	}
	for name, fn := range suite {
		t.Run(name, func(t *testing.T) { fn(t, cfg) })
	}
}
