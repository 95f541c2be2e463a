package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/smalls/arcs/pkg/engine"
	"github.com/smalls/arcs/pkg/strategizer"
	"github.com/smalls/arcs/pkg/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARCS_"

// Config is the arcs tool configuration.
type Config struct {
	// Manifests lists manifest files or directories to plan from.
	Manifests []string `yaml:"manifests" env:"MANIFESTS" envSeparator:","`

	Planner   PlannerConfig    `yaml:"planner" envPrefix:"PLANNER_"`
	Store     StoreConfig      `yaml:"store" envPrefix:"STORE_"`
	Policy    PolicyConfig     `yaml:"policy" envPrefix:"POLICY_"`
	Script    ScriptConfig     `yaml:"script" envPrefix:"SCRIPT_"`
	Plugin    PluginConfig     `yaml:"plugin" envPrefix:"PLUGIN_"`
	Telemetry telemetry.Config `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// PlannerConfig sizes and bounds planning runs.
type PlannerConfig struct {
	MaxPopulation  int `yaml:"max_population" env:"MAX_POPULATION" validate:"gt=0"`
	GenerationSize int `yaml:"generation_size" env:"GENERATION_SIZE" validate:"gt=0"`
	DiscardSize    int `yaml:"discard_size" env:"DISCARD_SIZE" validate:"gt=0,ltefield=MaxPopulation"`

	// MaxGenerations stops a run after that many rounds. Zero means no limit.
	MaxGenerations int `yaml:"max_generations" env:"MAX_GENERATIONS" validate:"gte=0"`

	// MaxParallel caps concurrent strategy and evaluator calls per round.
	MaxParallel int `yaml:"max_parallel" env:"MAX_PARALLEL" validate:"gte=0"`

	// Timeout is the time budget of a run. Zero means no budget.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gte=0"`

	CollectGenerations bool `yaml:"collect_generations" env:"COLLECT_GENERATIONS"`
}

// StoreConfig selects the store registry and the run archive.
type StoreConfig struct {
	// Driver is "memory" (stores from the manifest only) or "sqlite".
	Driver string `yaml:"driver" env:"DRIVER" validate:"oneof=memory sqlite"`

	// Path is the SQLite database file.
	Path string `yaml:"path" env:"PATH" validate:"required_if=Driver sqlite"`

	// Archive records runs, rounds and resolved plans. Requires sqlite.
	Archive bool `yaml:"archive" env:"ARCHIVE"`
}

// PolicyConfig configures the Rego policy evaluator.
type PolicyConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Paths lists .rego and JSON policy files or directories.
	Paths []string `yaml:"paths" env:"PATHS" envSeparator:","`

	// Disabled lists policies, built-in or loaded, to switch off.
	Disabled []string `yaml:"disabled" env:"DISABLED" envSeparator:","`

	// Watch reloads policies when their files change.
	Watch bool `yaml:"watch" env:"WATCH"`

	// Environment is passed to policies as input.context.environment.
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
}

// ScriptConfig configures the Starlark scoring script. An empty path
// disables it.
type ScriptConfig struct {
	Path     string        `yaml:"path" env:"PATH"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gte=0"`
	MaxSteps uint64        `yaml:"max_steps" env:"MAX_STEPS"`
}

// PluginConfig configures the WebAssembly fitness plugin. An empty path
// disables it.
type PluginConfig struct {
	Path             string        `yaml:"path" env:"PATH"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gte=0"`
	MemoryLimitPages uint32        `yaml:"memory_limit_pages" env:"MEMORY_LIMIT_PAGES" validate:"lte=65536"`
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := strategizer.DefaultOptions()
	return &Config{
		Planner: PlannerConfig{
			MaxPopulation:  opts.MaxPopulation,
			GenerationSize: opts.GenerationSize,
			DiscardSize:    opts.DiscardSize,
			Timeout:        30 * time.Second,
		},
		Store:     StoreConfig{Driver: "memory"},
		Policy:    PolicyConfig{Enabled: true},
		Script:    ScriptConfig{Timeout: 5 * time.Second},
		Plugin:    PluginConfig{Timeout: 5 * time.Second, MemoryLimitPages: 256},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the configuration from the defaults, the YAML file at path
// when path is not empty, and ARCS_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Store.Archive && c.Store.Driver != "sqlite" {
		return fmt.Errorf("invalid configuration: the run archive requires the sqlite store driver")
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	return nil
}

// Engine returns the planner configuration for a run named name.
func (p PlannerConfig) Engine(name string) engine.PlannerConfig {
	return engine.PlannerConfig{
		Options: strategizer.Options{
			MaxPopulation:  p.MaxPopulation,
			GenerationSize: p.GenerationSize,
			DiscardSize:    p.DiscardSize,
		},
		MaxGenerations:     p.MaxGenerations,
		MaxParallel:        p.MaxParallel,
		CollectGenerations: p.CollectGenerations,
		Name:               name,
	}
}
