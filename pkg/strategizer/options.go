package strategizer

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Options bounds the size of each round and of the retained population.
type Options struct {
	// MaxPopulation is the most individuals the population retains.
	MaxPopulation int `yaml:"max_population" validate:"gt=0"`

	// GenerationSize is the candidate budget of one round, split evenly
	// among the strategies.
	GenerationSize int `yaml:"generation_size" validate:"gt=0"`

	// DiscardSize is how many new survivors can enter the population per
	// round. The rest of the population is trimmed to make room.
	DiscardSize int `yaml:"discard_size" validate:"gt=0,ltefield=MaxPopulation"`
}

// DefaultOptions returns the standard population sizing.
func DefaultOptions() Options {
	return Options{
		MaxPopulation:  100,
		GenerationSize: 100,
		DiscardSize:    20,
	}
}

var validate = validator.New()

// Validate checks that the sizes are positive and consistent.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid strategizer options: %w", err)
	}
	return nil
}

// Option customizes a Strategizer.
type Option func(*Strategizer)

// WithLogger sets the logger used for round diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Strategizer) {
		s.logger = logger
	}
}

// WithMaxParallel caps how many strategy or evaluator calls of one round run
// at the same time. Zero or less means one call per strategy.
func WithMaxParallel(n int) Option {
	return func(s *Strategizer) {
		s.exec.limit = n
	}
}
