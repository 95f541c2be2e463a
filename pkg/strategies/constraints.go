package strategies

import (
	"context"

	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/types"
	"github.com/smalls/arcs/pkg/walker"
)

type convertConstraints struct{}

// ConvertConstraintsToConnections turns every pending constraint A.a -> B.b
// into connections of A and B bound to one shared view, adding particles and
// connections the recipe lacks. A constraint whose ends are already bound to
// different views stays pending.
func ConvertConstraintsToConnections() *walker.Strategy {
	return walker.NewStrategy(NameConvertConstraints, walker.Permuted, convertConstraints{})
}

func (convertConstraints) OnRecipe(_ context.Context, r *recipe.Recipe) ([]walker.RecipeTransform, error) {
	if len(r.Constraints()) == 0 {
		return nil, nil
	}
	return []walker.RecipeTransform{convertAll}, nil
}

func convertAll(b *recipe.Builder) float64 {
	var score float64
	constraints := b.Constraints()
	for i := len(constraints) - 1; i >= 0; i-- {
		if convertOne(b, constraints[i]) {
			b.RemoveConstraint(i)
			score++
		}
	}
	return score
}

func convertOne(b *recipe.Builder, c recipe.Constraint) bool {
	from := endpoint(b, c.From, types.DirectionOut)
	to := endpoint(b, c.To, types.DirectionIn)

	fromView, fromBound := from.View()
	toView, toBound := to.View()
	switch {
	case fromBound && toBound:
		return fromView.Index() == toView.Index()
	case fromBound:
		b.ConnectView(to, fromView)
	case toBound:
		b.ConnectView(from, toView)
	default:
		v := b.AddView()
		b.ConnectView(from, v)
		b.ConnectView(to, v)
	}
	return true
}

// endpoint returns the connection named by e, adding the particle or the
// connection when missing. New connections get direction dir.
func endpoint(b *recipe.Builder, e recipe.Endpoint, dir types.Direction) recipe.Connection {
	p, ok := b.FindParticle(e.Particle)
	if !ok {
		p = b.AddParticle(e.Particle)
	}
	if c, ok := p.Connection(e.Connection); ok {
		return c
	}
	c := b.AddConnection(p, e.Connection)
	b.SetConnectionDirection(c, dir)
	return c
}
