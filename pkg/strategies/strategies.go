package strategies

import (
	"github.com/smalls/arcs/pkg/catalog"
	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/stores"
	"github.com/smalls/arcs/pkg/strategizer"
	"github.com/smalls/arcs/pkg/types"
)

// Strategy names as they appear in derivations and round records.
const (
	NameInitPopulation          = "init-population"
	NameResolveParticleByName   = "resolve-particle-by-name"
	NameCreateViews             = "create-views"
	NameAssignViewsByTagAndType = "assign-views-by-tag-and-type"
	NameConvertConstraints      = "convert-constraints-to-connections"
	NameMapConsumedSlots        = "map-consumed-slots"
	NameAssignRemoteViews       = "assign-remote-views"
	NameMapRemoteSlots          = "map-remote-slots"
)

// Default returns the standard strategy set in planning order.
func Default(cat catalog.Catalog, registry stores.Registry, seeds ...*recipe.Recipe) []strategizer.Strategy {
	return []strategizer.Strategy{
		NewInitPopulation(seeds...),
		ResolveParticleByName(cat),
		CreateViews(),
		AssignViewsByTagAndType(registry),
		ConvertConstraintsToConnections(),
		MapConsumedSlots(),
		AssignRemoteViews(registry),
		MapRemoteSlots(registry),
	}
}

// directionScore rates creating a store for a view with the given
// connections: readers and writers score 1, only readers 0, only writers -1.
// Views with a missing side and connections of unknown direction are not
// rated.
func directionScore(c recipe.DirectionCounts) (float64, bool) {
	if c.In == 0 || c.Out == 0 {
		if c.Unknown > 0 {
			return 0, false
		}
		if c.In == 0 {
			return -1, true
		}
		return 0, true
	}
	return 1, true
}

func countsOf(d types.Direction) recipe.DirectionCounts {
	switch d {
	case types.DirectionIn:
		return recipe.DirectionCounts{In: 1}
	case types.DirectionOut:
		return recipe.DirectionCounts{Out: 1}
	case types.DirectionInOut:
		return recipe.DirectionCounts{In: 1, Out: 1, InOut: 1}
	default:
		return recipe.DirectionCounts{Unknown: 1}
	}
}

func firstTag(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return tags[0]
}
