package solver

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"
)

// Algorithm selects the stochastic simulation method.
type Algorithm int

const (
	// Exact is Gillespie's direct-method SSA.
	Exact Algorithm = iota
	// TauLeap is adaptive explicit tau-leaping.
	TauLeap
)

func (a Algorithm) String() string {
	switch a {
	case Exact:
		return "SSA"
	case TauLeap:
		return "TAU"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// ParseAlgorithm accepts "SSA", "exact", "gillespie", "TAU", "tau-leap" and
// "tauleap", case-insensitively.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ssa", "exact", "gillespie", "":
		return Exact, nil
	case "tau", "tauleap", "tau-leap", "tau_leap":
		return TauLeap, nil
	}
	return 0, fmt.Errorf("unknown algorithm %q", s)
}

func (a Algorithm) MarshalText() ([]byte, error) {
	if a != Exact && a != TauLeap {
		return nil, fmt.Errorf("unknown algorithm %d", int(a))
	}
	return []byte(a.String()), nil
}

func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

const (
	DefaultSeed       = 20201025
	DefaultDuration   = 3650
	DefaultSamples    = 3650
	DefaultTauEpsilon = 0.03
)

// RunConfig describes a set of independent runs over one model.
type RunConfig struct {
	Algorithm Algorithm `json:"algorithm" yaml:"algorithm"`
	Runs      int       `json:"runs" yaml:"runs"`
	Duration  float64   `json:"duration" yaml:"duration"`
	Samples   int       `json:"samples" yaml:"samples"`
	Seed      uint64    `json:"seed" yaml:"seed"`

	// Workers bounds concurrently executing runs; 0 means GOMAXPROCS.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
	// Timeout bounds the wall-clock time of each run; 0 means none.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// MaxSteps bounds the number of events or leaps of each run; 0 means none.
	MaxSteps int64 `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`

	// TauEpsilon is the relative propensity change bound for tau selection.
	TauEpsilon float64 `json:"tau_epsilon,omitempty" yaml:"tau_epsilon,omitempty"`
	// MaxTau caps a single leap; 0 means the remaining duration.
	MaxTau float64 `json:"max_tau,omitempty" yaml:"max_tau,omitempty"`
}

// DefaultRunConfig returns a single exact run over ten years sampled daily.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Algorithm:  Exact,
		Runs:       1,
		Duration:   DefaultDuration,
		Samples:    DefaultSamples,
		Seed:       DefaultSeed,
		TauEpsilon: DefaultTauEpsilon,
	}
}

// Validate checks the run configuration, reporting every problem at once.
func (c RunConfig) Validate() error {
	var issues []string
	if c.Algorithm != Exact && c.Algorithm != TauLeap {
		issues = append(issues, fmt.Sprintf("unknown algorithm %d", int(c.Algorithm)))
	}
	if c.Runs <= 0 {
		issues = append(issues, fmt.Sprintf("runs must be positive, got %d", c.Runs))
	}
	if !(c.Duration > 0) || math.IsInf(c.Duration, 0) {
		issues = append(issues, fmt.Sprintf("duration must be a positive finite number, got %g", c.Duration))
	}
	if c.Samples <= 0 {
		issues = append(issues, fmt.Sprintf("samples must be positive, got %d", c.Samples))
	}
	if c.Workers < 0 {
		issues = append(issues, fmt.Sprintf("workers must not be negative, got %d", c.Workers))
	}
	if c.Timeout < 0 {
		issues = append(issues, fmt.Sprintf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.MaxSteps < 0 {
		issues = append(issues, fmt.Sprintf("max_steps must not be negative, got %d", c.MaxSteps))
	}
	if c.TauEpsilon < 0 || c.TauEpsilon >= 1 || math.IsNaN(c.TauEpsilon) {
		issues = append(issues, fmt.Sprintf("tau_epsilon must be in [0, 1), got %g", c.TauEpsilon))
	}
	if c.MaxTau < 0 || math.IsNaN(c.MaxTau) {
		issues = append(issues, fmt.Sprintf("max_tau must not be negative, got %g", c.MaxTau))
	}
	if len(issues) > 0 {
		return fmt.Errorf("invalid run configuration: %s", strings.Join(issues, "; "))
	}
	return nil
}

func (c RunConfig) withDefaults() RunConfig {
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.TauEpsilon == 0 {
		c.TauEpsilon = DefaultTauEpsilon
	}
	return c
}

// sampleTimes returns samples evenly spaced points over [0, duration]. A
// single sample is taken at t=0.
func sampleTimes(duration float64, samples int) []float64 {
	times := make([]float64, samples)
	if samples == 1 {
		return times
	}
	for i := range times {
		times[i] = float64(i) * duration / float64(samples-1)
	}
	times[samples-1] = duration
	return times
}
