// Package config loads benchmark run settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/imagerecovery/internal/bench"
	"github.com/cwbudde/imagerecovery/internal/objective"
	"github.com/cwbudde/imagerecovery/internal/opt"
	"github.com/cwbudde/imagerecovery/internal/store"
)

// Config holds everything needed to start a run.
// Zero values are replaced by defaults in Load.
type Config struct {
	AssetDir    string                  `yaml:"assetDir"`
	Problem     objective.Problem       `yaml:"problem"`
	Optimizer   OptimizerConfig         `yaml:"optimizer"`
	Passes      int                     `yaml:"passes"`
	Seed        int64                   `yaml:"seed"`
	Convergence bench.ConvergenceConfig `yaml:"convergence"`
	DataDir     string                  `yaml:"dataDir"`
	Store       string                  `yaml:"store"`
}

// OptimizerConfig holds the optimizer budget.
type OptimizerConfig struct {
	Iters   int `yaml:"iters"`
	PopSize int `yaml:"popSize"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	run := bench.DefaultRunConfig()
	return Config{
		AssetDir:    "assets",
		Problem:     objective.DefaultProblem(),
		Optimizer:   OptimizerConfig{Iters: 100, PopSize: 30},
		Passes:      run.Passes,
		Seed:        run.Seed,
		Convergence: run.Convergence,
		DataDir:     "./data",
		Store:       store.BackendFS,
	}
}

// Load reads a YAML file over the defaults and validates the result.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	if err := c.Problem.Validate(); err != nil {
		return err
	}
	if c.AssetDir == "" {
		return invalid("assetDir", c.AssetDir, "cannot be empty")
	}
	if c.Optimizer.Iters <= 0 {
		return invalid("optimizer.iters", c.Optimizer.Iters, "must be positive")
	}
	if c.Optimizer.PopSize < opt.MinPopSize {
		return invalid("optimizer.popSize", c.Optimizer.PopSize, fmt.Sprintf("must be at least %d", opt.MinPopSize))
	}
	if c.Passes <= 0 {
		return invalid("passes", c.Passes, "must be positive")
	}
	if c.Convergence.Patience < 0 {
		return invalid("convergence.patience", c.Convergence.Patience, "cannot be negative")
	}
	if c.Convergence.Threshold < 0 {
		return invalid("convergence.threshold", c.Convergence.Threshold, "cannot be negative")
	}
	if c.DataDir == "" {
		return invalid("dataDir", c.DataDir, "cannot be empty")
	}
	switch c.Store {
	case store.BackendFS, store.BackendSQLite:
	default:
		return invalid("store", c.Store, "must be fs or sqlite")
	}
	return nil
}

// ObjectiveConfig returns the settings for objective.New.
func (c Config) ObjectiveConfig() objective.Config {
	return objective.Config{Problem: c.Problem, AssetDir: c.AssetDir}
}

// RunConfig returns the settings for bench.Run.
func (c Config) RunConfig() bench.RunConfig {
	return bench.RunConfig{Passes: c.Passes, Seed: c.Seed, Convergence: c.Convergence}
}

// RecordConfig returns the copy persisted with a run record.
func (c Config) RecordConfig(optimizer string) store.RunConfig {
	return store.RunConfig{
		AssetDir:    c.AssetDir,
		ProblemType: string(c.Problem.Type),
		IndexPb:     c.Problem.Index,
		Optimizer:   optimizer,
		Iters:       c.Optimizer.Iters,
		PopSize:     c.Optimizer.PopSize,
		Passes:      c.Passes,
		Seed:        c.Seed,
	}
}

func invalid(field string, value any, reason string) error {
	return &objective.ConfigurationError{Field: field, Value: fmt.Sprint(value), Reason: reason}
}
