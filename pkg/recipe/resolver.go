package recipe

import (
	"fmt"
	"sort"

	"github.com/smalls/arcs/pkg/types"
)

// ViewInput is everything the resolver needs to know about one view.
type ViewInput struct {
	Fate Fate

	// Tags are the view's own declared tags.
	Tags []string

	// MappedType is the type of the store the view is bound to, if any.
	MappedType *types.Type

	// Contributions has one entry per connection attached to the view.
	Contributions []Contribution
}

// Contribution is the constraint one connection places on its view.
type Contribution struct {
	Connection string
	Type       *types.Type
	Direction  types.Direction
	Tags       []string
}

// Resolution is the outcome of resolving a view.
type Resolution struct {
	// Type is the most specific common type, nil if nothing constrains the view.
	Type *types.Type

	// Tags is the union of the view's own tags and its connections' tags.
	Tags []string

	// Valid is false when the inbound constraints conflict.
	Valid bool

	// Reason explains an invalid resolution.
	Reason string
}

// ResolveView unifies the constraints placed on a view. It never modifies its
// input; callers commit Type and Tags only when Valid is true.
func ResolveView(in ViewInput) Resolution {
	if in.Fate == FateMap {
		for _, c := range in.Contributions {
			if c.Direction.Writes() {
				return Resolution{
					Reason: fmt.Sprintf("mapped view cannot serve %s connection %s", c.Direction, c.Connection),
				}
			}
		}
	}

	resolved := in.MappedType
	for _, c := range in.Contributions {
		if c.Type == nil {
			continue
		}
		t, ok := types.Unify(resolved, c.Type)
		if !ok {
			return Resolution{
				Reason: fmt.Sprintf("type %s of %s conflicts with %s", c.Type, c.Connection, resolved),
			}
		}
		resolved = t
	}

	seen := make(map[string]bool)
	tags := make([]string, 0, len(in.Tags))
	add := func(ts []string) {
		for _, t := range ts {
			if t != "" && !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	add(in.Tags)
	for _, c := range in.Contributions {
		add(c.Tags)
	}
	sort.Strings(tags)

	return Resolution{Type: resolved, Tags: tags, Valid: true}
}
