package strategies

import (
	"context"

	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/stores"
	"github.com/smalls/arcs/pkg/walker"
)

type assignViewsByTagAndType struct {
	registry stores.Registry
}

// AssignViewsByTagAndType binds typed views without a store to local stores
// of the same type carrying the view's first tag. Each matching store is a
// separate alternative. The fate becomes use, or stays copy.
func AssignViewsByTagAndType(registry stores.Registry) *walker.Strategy {
	return walker.NewStrategy(NameAssignViewsByTagAndType, walker.Permuted, assignViewsByTagAndType{registry: registry})
}

func (r assignViewsByTagAndType) OnView(ctx context.Context, _ *recipe.Recipe, v recipe.View) ([]walker.ViewTransform, error) {
	switch v.Fate() {
	case recipe.FateUnknown, recipe.FateUse, recipe.FateCopy:
	default:
		return nil, nil
	}
	if v.ID() != "" || v.Type() == nil {
		return nil, nil
	}

	candidates, err := r.registry.FindByType(ctx, v.Type(), firstTag(v.Tags()))
	if err != nil {
		return nil, err
	}

	var ts []walker.ViewTransform
	for _, st := range candidates {
		if st.Remote {
			continue
		}
		ts = append(ts, func(b *recipe.Builder, v recipe.View) float64 {
			if v.Fate() != recipe.FateCopy {
				b.SetViewFate(v, recipe.FateUse)
			}
			b.MapToStore(v, st.ID, st.Type)
			return 1
		})
	}
	return ts, nil
}

type assignRemoteViews struct {
	registry stores.Registry
}

// AssignRemoteViews maps typed views of undecided fate to remote stores of
// the same type carrying the view's first tag.
func AssignRemoteViews(registry stores.Registry) *walker.Strategy {
	return walker.NewStrategy(NameAssignRemoteViews, walker.Permuted, assignRemoteViews{registry: registry})
}

func (r assignRemoteViews) OnView(ctx context.Context, _ *recipe.Recipe, v recipe.View) ([]walker.ViewTransform, error) {
	if v.Fate() != recipe.FateUnknown || v.ID() != "" || v.Type() == nil {
		return nil, nil
	}

	candidates, err := r.registry.FindByType(ctx, v.Type(), firstTag(v.Tags()))
	if err != nil {
		return nil, err
	}

	var ts []walker.ViewTransform
	for _, st := range candidates {
		if !st.Remote {
			continue
		}
		ts = append(ts, func(b *recipe.Builder, v recipe.View) float64 {
			b.SetViewFate(v, recipe.FateMap)
			b.MapToStore(v, st.ID, st.Type)
			return 1
		})
	}
	return ts, nil
}
