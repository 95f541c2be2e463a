package walker

import (
	"context"

	"github.com/smalls/arcs/pkg/strategizer"
)

// Strategy adapts a rule into a strategizer.Strategy that walks the survivors
// of the previous round.
type Strategy struct {
	name   string
	rule   Rule
	walker *Walker
}

// NewStrategy creates a strategy named name that applies rule in mode.
func NewStrategy(name string, mode Mode, rule Rule) *Strategy {
	return &Strategy{name: name, rule: rule, walker: New(mode)}
}

// Name implements strategizer.Strategy.
func (s *Strategy) Name() string { return s.name }

// Generate implements strategizer.Strategy.
func (s *Strategy) Generate(ctx context.Context, in strategizer.Input, n int) ([]*strategizer.Individual, error) {
	return s.walker.Walk(ctx, s.rule, s.name, in.Generated, n)
}

// Discard implements strategizer.Strategy. Walker strategies hold no
// per-candidate state.
func (s *Strategy) Discard([]*strategizer.Individual) {}
