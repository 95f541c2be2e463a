package strategizer

import (
	"github.com/smalls/arcs/pkg/recipe"
)

// Individual is one candidate recipe tracked by the search.
type Individual struct {
	// Recipe is the normalized candidate.
	Recipe *recipe.Recipe

	// Score is the inherited score: the parent's score plus the deltas of
	// every rewrite applied to produce this candidate.
	Score float64

	// Fitness is the merged evaluator opinion assigned when the candidate
	// survived a round.
	Fitness float64

	// Generation is the round that produced the candidate.
	Generation int

	// Derivation lists every provenance edge leading to this recipe. A
	// candidate reached by several rewrite paths keeps one edge per path.
	Derivation []Derivation
}

// Derivation is a provenance edge from a parent candidate through a strategy.
// Parent is nil for seed recipes.
type Derivation struct {
	Parent   *Individual
	Strategy string
}

// NewIndividual wraps a recipe produced from parent by the named strategy.
func NewIndividual(r *recipe.Recipe, score float64, parent *Individual, strategy string) *Individual {
	return &Individual{
		Recipe:     r,
		Score:      score,
		Derivation: []Derivation{{Parent: parent, Strategy: strategy}},
	}
}

// Hash returns the canonical hash of the recipe.
func (i *Individual) Hash() string { return i.Recipe.Hash() }

// Valid reports whether the recipe passed its local validity checks.
func (i *Individual) Valid() bool { return i.Recipe.Valid() }

// Parent returns the parent of the first derivation edge, which is the
// candidate this individual was produced from.
func (i *Individual) Parent() *Individual {
	if len(i.Derivation) == 0 {
		return nil
	}
	return i.Derivation[0].Parent
}

// Strategy returns the strategy of the first derivation edge.
func (i *Individual) Strategy() string {
	if len(i.Derivation) == 0 {
		return ""
	}
	return i.Derivation[0].Strategy
}

func (i *Individual) hasParent(p *Individual) bool {
	for _, d := range i.Derivation {
		if d.Parent == p {
			return true
		}
	}
	return false
}
