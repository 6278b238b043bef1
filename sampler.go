package hellotrace

import (
	"fmt"
	"math"

	"golang.org/x/time/rate"
)

// Sampler decides whether a new trace is reported.
// It is consulted once per root span; children inherit the decision.
type Sampler interface {
	ShouldSample(traceID TraceID) bool
}

// ConstSampler samples all traces or none.
type ConstSampler bool

// ShouldSample implements Sampler.
func (s ConstSampler) ShouldSample(TraceID) bool { return bool(s) }

func (s ConstSampler) String() string {
	return fmt.Sprintf("ConstSampler(%t)", bool(s))
}

// ProbabilisticSampler samples a fixed fraction of traces. The decision is a
// pure function of the trace id, so every process agrees on it.
type ProbabilisticSampler struct {
	rate     float64
	boundary uint64
}

const maxRandomNumber = ^(uint64(1) << 63) // i.e. 0x7fffffffffffffff

// NewProbabilisticSampler returns a sampler for rate in [0, 1].
func NewProbabilisticSampler(samplingRate float64) (*ProbabilisticSampler, error) {
	if samplingRate < 0 || samplingRate > 1 || math.IsNaN(samplingRate) {
		return nil, fmt.Errorf("sampling rate must be between 0.0 and 1.0, got %v", samplingRate)
	}
	return &ProbabilisticSampler{
		rate:     samplingRate,
		boundary: uint64(float64(maxRandomNumber) * samplingRate),
	}, nil
}

// ShouldSample implements Sampler.
func (s *ProbabilisticSampler) ShouldSample(traceID TraceID) bool {
	return traceIDLow(traceID)&maxRandomNumber < s.boundary
}

// Rate returns the configured sampling rate.
func (s *ProbabilisticSampler) Rate() float64 { return s.rate }

func (s *ProbabilisticSampler) String() string {
	return fmt.Sprintf("ProbabilisticSampler(%v)", s.rate)
}

// RateLimitingSampler samples at most n traces per second.
type RateLimitingSampler struct {
	limiter *rate.Limiter
	perSec  float64
}

// NewRateLimitingSampler returns a sampler allowing perSecond traces per second.
func NewRateLimitingSampler(perSecond float64) *RateLimitingSampler {
	burst := int(math.Max(perSecond, 1))
	return &RateLimitingSampler{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		perSec:  perSecond,
	}
}

// ShouldSample implements Sampler.
func (s *RateLimitingSampler) ShouldSample(TraceID) bool {
	return s.limiter.Allow()
}

func (s *RateLimitingSampler) String() string {
	return fmt.Sprintf("RateLimitingSampler(%v)", s.perSec)
}
