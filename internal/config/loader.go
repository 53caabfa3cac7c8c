package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/daniacca/cmsim/internal/solver"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	EnvPrefix = "CMSIM_"

	// DefaultFile is read from the working directory when no file is given.
	DefaultFile = "cmsim.yaml"
)

// flagKeys maps flag names onto config keys where they differ.
var flagKeys = map[string]string{
	"algorithm":   "run.algorithm",
	"runs":        "run.runs",
	"duration":    "run.duration",
	"samples":     "run.samples",
	"seed":        "run.seed",
	"random-seed": "run.random_seed",
	"workers":     "run.workers",
	"timeout":     "run.timeout",
	"max-steps":   "run.max_steps",
	"tau-epsilon": "run.tau_epsilon",
	"max-tau":     "run.max_tau",
	"csv":         "output.csv",
	"json":        "output.json",
	"log-level":   "log.level",
	"log-format":  "log.format",
	"addr":        "server.addr",
	"webhook":     "server.webhooks",
	"population":  "populations",
}

// ignoredFlags never reach the configuration.
var ignoredFlags = map[string]bool{
	"config": true,
	"help":   true,
}

func defaults() map[string]any {
	return map[string]any{
		"model":           "hat",
		"run.algorithm":   "SSA",
		"run.runs":        1,
		"run.duration":    float64(solver.DefaultDuration),
		"run.samples":     solver.DefaultSamples,
		"run.seed":        0,
		"run.random_seed": false,
		"run.tau_epsilon": solver.DefaultTauEpsilon,
		"store":           "",
		"log.level":       "info",
		"log.format":      "text",
		"server.addr":     ":8080",
	}
}

// Load builds the configuration. Precedence, lowest to highest: defaults,
// the YAML file (cfgFile, or cmsim.yaml when present), CMSIM_ environment
// variables, then flags that were explicitly set. Environment keys nest with
// a double underscore: CMSIM_RUN__RUNS sets run.runs.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := cfgFile
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || ignoredFlags[f.Name] {
				return "", nil
			}
			if key, ok := flagKeys[f.Name]; ok {
				return key, posflag.FlagVal(flags, f)
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envKey maps CMSIM_RUN__MAX_STEPS to run.max_steps.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
