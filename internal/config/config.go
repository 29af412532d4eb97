// Package config defines the toolchain's recognized configuration record
// and loads it from the process environment.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xyproto/env/v2"

	"github.com/duskforge/obfusc/internal/diagnostics"
	"github.com/duskforge/obfusc/internal/ledger"
	"github.com/duskforge/obfusc/internal/pass"
)

// Config is the recognized option set from the external interface
// contract: obfuscation level, per-pass enable flags, optimizer
// parameters, ledger settings, and output placement.
type Config struct {
	ObfuscationLevel int
	EnablePass       [pass.NumPasses]bool

	GeneticGenerations int
	MutationRate       float64
	CrossoverRate      float64

	Ledger ledger.Config

	MaxThreads      int
	OutputDirectory string
}

// Load reads Config from the environment, applying the same defaults as
// the per-subsystem packages (ledger.LoadConfig, evolve.DefaultParams)
// wherever a value is unset.
func Load() (Config, error) {
	cfg := Config{
		ObfuscationLevel:   env.Int("OBFUSC_LEVEL", 3),
		GeneticGenerations: env.Int("OBFUSC_GENETIC_GENERATIONS", 100),
		MutationRate:       env.Float64("OBFUSC_MUTATION_RATE", 0.1),
		CrossoverRate:      env.Float64("OBFUSC_CROSSOVER_RATE", 0.8),
		Ledger:             ledger.LoadConfig(),
		MaxThreads:         env.Int("OBFUSC_MAX_THREADS", 1),
		OutputDirectory:    env.Str("OBFUSC_OUTPUT_DIR", "."),
	}
	for i := range cfg.EnablePass {
		key := fmt.Sprintf("OBFUSC_ENABLE_%s", strings.ToUpper(pass.ID(i).String()))
		cfg.EnablePass[i] = boolOr(key, true)
	}

	return cfg, cfg.Validate()
}

// boolOr returns the bool value of the given environment variable, or the
// provided default value if it is not set (env.Bool alone has no way to
// distinguish "unset" from "set to false").
func boolOr(envName string, defaultValue bool) bool {
	if !env.Has(envName) {
		return defaultValue
	}
	return env.Bool(envName)
}

// Validate reports a ConfigError-classified problem, if any.
func (c Config) Validate() error {
	if c.ObfuscationLevel < 1 || c.ObfuscationLevel > 5 {
		return diagnostics.New(diagnostics.ConfigError, fmt.Sprintf("obfuscation_level %d out of range [1,5]", c.ObfuscationLevel))
	}
	if c.Ledger.Enabled {
		if _, err := url.ParseRequestURI(c.Ledger.RPCEndpoint); err != nil {
			return diagnostics.Wrap(diagnostics.ConfigError, "malformed ledger_rpc_endpoint", err)
		}
	}
	if c.MaxThreads < 1 {
		return diagnostics.New(diagnostics.ConfigError, "max_threads must be >= 1")
	}
	return nil
}

// EnabledPasses returns the pass ids enabled by this configuration, in
// their canonical order.
func (c Config) EnabledPasses() []pass.ID {
	var ids []pass.ID
	for i, enabled := range c.EnablePass {
		if enabled {
			ids = append(ids, pass.ID(i))
		}
	}
	return ids
}
