// Package config loads cmsim configuration from defaults, a YAML file,
// CMSIM_ environment variables and command-line flags.
package config

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/daniacca/cmsim/internal/solver"
)

// RunConfig holds the run settings as they appear in configuration.
type RunConfig struct {
	Algorithm  string        `koanf:"algorithm"`
	Runs       int           `koanf:"runs"`
	Duration   float64       `koanf:"duration"`
	Samples    int           `koanf:"samples"`
	Seed       uint64        `koanf:"seed"`
	RandomSeed bool          `koanf:"random_seed"`
	Workers    int           `koanf:"workers"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxSteps   int64         `koanf:"max_steps"`
	TauEpsilon float64       `koanf:"tau_epsilon"`
	MaxTau     float64       `koanf:"max_tau"`
}

// Solver converts the settings into a solver run configuration. A zero
// Seed means unset: it is drawn from entropy with RandomSeed, and is
// solver.DefaultSeed otherwise.
func (c RunConfig) Solver() (solver.RunConfig, error) {
	alg, err := solver.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return solver.RunConfig{}, err
	}
	seed := c.Seed
	if seed == 0 {
		seed = solver.DefaultSeed
		if c.RandomSeed {
			seed = rand.Uint64()
		}
	}
	cfg := solver.RunConfig{
		Algorithm:  alg,
		Runs:       c.Runs,
		Duration:   c.Duration,
		Samples:    c.Samples,
		Seed:       seed,
		Workers:    c.Workers,
		Timeout:    c.Timeout,
		MaxSteps:   c.MaxSteps,
		TauEpsilon: c.TauEpsilon,
		MaxTau:     c.MaxTau,
	}
	if err := cfg.Validate(); err != nil {
		return solver.RunConfig{}, err
	}
	return cfg, nil
}

// OutputConfig names optional export files.
type OutputConfig struct {
	CSV  string `koanf:"csv"`
	JSON string `koanf:"json"`
}

// LogConfig selects the log level and handler format.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text or json
}

// ServerConfig configures cmsim-server.
type ServerConfig struct {
	Addr     string   `koanf:"addr"`
	Webhooks []string `koanf:"webhooks"`
}

// Config holds all cmsim configuration.
type Config struct {
	// Model is a catalog name (see internal/models) or a path to a
	// .json/.yaml model file.
	Model       string           `koanf:"model"`
	Populations map[string]int64 `koanf:"populations"`
	Run         RunConfig        `koanf:"run"`
	Store       string           `koanf:"store"`
	Output      OutputConfig     `koanf:"output"`
	Log         LogConfig        `koanf:"log"`
	Server      ServerConfig     `koanf:"server"`
}

// Validate checks the settings that are not validated downstream.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := solver.ParseAlgorithm(c.Run.Algorithm); err != nil {
		return fmt.Errorf("run.algorithm: %w", err)
	}
	for name, n := range c.Populations {
		if n < 0 {
			return fmt.Errorf("populations.%s must not be negative, got %d", name, n)
		}
	}
	return nil
}
