package evaluators

import (
	"context"

	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/strategizer"
)

// Resolution rates a candidate by the share of its elements that are
// resolved. Pending constraints count as unresolved. A recipe with no
// elements has no opinion.
type Resolution struct{}

// NewResolution returns the resolution-progress evaluator.
func NewResolution() *Resolution { return &Resolution{} }

// Name implements strategizer.Evaluator.
func (*Resolution) Name() string { return "resolution" }

// Evaluate implements strategizer.Evaluator.
func (e *Resolution) Evaluate(ctx context.Context, _ strategizer.Input, candidates []*strategizer.Individual) ([]strategizer.Opinion, error) {
	opinions := make([]strategizer.Opinion, len(candidates))
	for i, ind := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		opinions[i] = e.opinion(ind.Recipe)
	}
	return opinions, nil
}

func (*Resolution) opinion(r *recipe.Recipe) strategizer.Opinion {
	if r.IsResolved() {
		return strategizer.Opinion{Fitness: 1, Applicable: true}
	}

	var total, resolved int
	tally := func(ok bool) {
		total++
		if ok {
			resolved++
		}
	}
	for _, v := range r.Views() {
		tally(v.IsResolved())
	}
	for _, p := range r.Particles() {
		tally(p.IsResolved())
		for _, sc := range p.SlotConnections() {
			tally(sc.IsResolved())
		}
	}
	for range r.Constraints() {
		tally(false)
	}

	if total == 0 {
		return strategizer.NotApplicable
	}
	return strategizer.Opinion{Fitness: float64(resolved) / float64(total), Applicable: true}
}

var _ strategizer.Evaluator = (*Resolution)(nil)
