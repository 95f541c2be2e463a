package strategies

import (
	"context"

	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/stores"
	"github.com/smalls/arcs/pkg/walker"
)

type mapConsumedSlots struct{}

// MapConsumedSlots connects untargeted slot connections to recipe slots of
// the same name. A slot that records view connections only qualifies when
// the consuming particle is connected to one of those views.
func MapConsumedSlots() *walker.Strategy {
	return walker.NewStrategy(NameMapConsumedSlots, walker.Permuted, mapConsumedSlots{})
}

func (mapConsumedSlots) OnSlotConnection(_ context.Context, r *recipe.Recipe, sc recipe.SlotConnection) ([]walker.SlotConnectionTransform, error) {
	if _, ok := sc.TargetSlot(); ok {
		return nil, nil
	}
	consumer := sc.Particle()

	views := make(map[int]bool)
	for _, c := range consumer.Connections() {
		if v, ok := c.View(); ok {
			views[v.Index()] = true
		}
	}

	var ts []walker.SlotConnectionTransform
	for _, slot := range r.Slots() {
		if slot.Name() != sc.Name() {
			continue
		}
		if source, ok := slot.Source(); ok && source.Particle().Index() == consumer.Index() {
			continue
		}
		if !sharesView(slot, views) {
			continue
		}
		ts = append(ts, func(b *recipe.Builder, sc recipe.SlotConnection) float64 {
			b.ConnectToSlot(sc, b.SlotOf(slot))
			return 1
		})
	}
	return ts, nil
}

func sharesView(slot recipe.Slot, views map[int]bool) bool {
	conns := slot.ViewConnections()
	if len(conns) == 0 {
		return true
	}
	for _, c := range conns {
		if v, ok := c.View(); ok && views[v.Index()] {
			return true
		}
	}
	return false
}

type mapRemoteSlots struct {
	registry stores.Registry
}

// MapRemoteSlots connects untargeted slot connections to remote slots of the
// same name advertised by the registry.
func MapRemoteSlots(registry stores.Registry) *walker.Strategy {
	return walker.NewStrategy(NameMapRemoteSlots, walker.Permuted, mapRemoteSlots{registry: registry})
}

func (m mapRemoteSlots) OnSlotConnection(ctx context.Context, r *recipe.Recipe, sc recipe.SlotConnection) ([]walker.SlotConnectionTransform, error) {
	if _, ok := sc.TargetSlot(); ok {
		return nil, nil
	}
	remote, err := m.registry.RemoteSlots(ctx, sc.Name())
	if err != nil {
		return nil, err
	}

	existing := make(map[string]recipe.Slot)
	for _, s := range r.Slots() {
		if s.ID() != "" {
			existing[s.ID()] = s
		}
	}

	var ts []walker.SlotConnectionTransform
	for _, rs := range remote {
		ts = append(ts, func(b *recipe.Builder, sc recipe.SlotConnection) float64 {
			if s, ok := existing[rs.ID]; ok {
				b.ConnectToSlot(sc, b.SlotOf(s))
				return 1
			}
			s := b.AddSlot(rs.Name)
			b.SetSlotID(s, rs.ID)
			b.SetSlotFormFactor(s, rs.FormFactor)
			b.ConnectToSlot(sc, s)
			return 1
		})
	}
	return ts, nil
}
