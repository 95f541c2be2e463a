package strategies

import (
	"context"

	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/walker"
)

type createViews struct{}

// CreateViews gives views of undecided fate a freshly created store, and
// attaches a new created view to every unbound, non-optional connection of a
// particle with a spec.
func CreateViews() *walker.Strategy {
	return walker.NewStrategy(NameCreateViews, walker.Permuted, createViews{})
}

func (createViews) OnView(_ context.Context, _ *recipe.Recipe, v recipe.View) ([]walker.ViewTransform, error) {
	if v.ID() != "" || v.Fate() != recipe.FateUnknown {
		return nil, nil
	}
	score, ok := directionScore(v.DirectionCounts())
	if !ok {
		return nil, nil
	}
	return []walker.ViewTransform{func(b *recipe.Builder, v recipe.View) float64 {
		b.SetViewFate(v, recipe.FateCreate)
		return score
	}}, nil
}

func (createViews) OnConnection(_ context.Context, _ *recipe.Recipe, c recipe.Connection) ([]walker.ConnectionTransform, error) {
	if _, bound := c.View(); bound || c.Optional() || c.Particle().Spec() == nil {
		return nil, nil
	}
	score, ok := directionScore(countsOf(c.Direction()))
	if !ok {
		return nil, nil
	}
	return []walker.ConnectionTransform{func(b *recipe.Builder, c recipe.Connection) float64 {
		v := b.AddView()
		b.SetViewFate(v, recipe.FateCreate)
		b.ConnectView(c, v)
		return score
	}}, nil
}
