package strategies

import (
	"context"

	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/strategizer"
)

// InitPopulation emits the seed recipes in the first round and nothing
// afterwards.
type InitPopulation struct {
	seeds []*recipe.Recipe
}

// NewInitPopulation creates the seeding strategy.
func NewInitPopulation(seeds ...*recipe.Recipe) *InitPopulation {
	return &InitPopulation{seeds: seeds}
}

// Name implements strategizer.Strategy.
func (s *InitPopulation) Name() string { return NameInitPopulation }

// Generate implements strategizer.Strategy.
func (s *InitPopulation) Generate(_ context.Context, in strategizer.Input, _ int) ([]*strategizer.Individual, error) {
	if in.Generation != 0 {
		return nil, nil
	}
	out := make([]*strategizer.Individual, 0, len(s.seeds))
	for _, r := range s.seeds {
		out = append(out, strategizer.NewIndividual(r, 0, nil, NameInitPopulation))
	}
	return out, nil
}

// Discard implements strategizer.Strategy.
func (s *InitPopulation) Discard([]*strategizer.Individual) {}
