package strategies

import (
	"context"
	"errors"

	"github.com/smalls/arcs/pkg/catalog"
	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/walker"
)

type resolveParticleByName struct {
	catalog catalog.Catalog
}

// ResolveParticleByName binds catalog specifications to particles known only
// by name. Names missing from the catalog produce no candidate.
func ResolveParticleByName(cat catalog.Catalog) *walker.Strategy {
	return walker.NewStrategy(NameResolveParticleByName, walker.Permuted, resolveParticleByName{catalog: cat})
}

func (r resolveParticleByName) OnParticle(ctx context.Context, _ *recipe.Recipe, p recipe.Particle) ([]walker.ParticleTransform, error) {
	if p.Spec() != nil {
		return nil, nil
	}
	spec, err := r.catalog.Lookup(ctx, p.Name())
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []walker.ParticleTransform{func(b *recipe.Builder, p recipe.Particle) float64 {
		b.SetParticleSpec(p, spec)
		return 1
	}}, nil
}
