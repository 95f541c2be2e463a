package recipe

import (
	"slices"

	"github.com/smalls/arcs/pkg/catalog"
	"github.com/smalls/arcs/pkg/types"
)

// View is a read-only handle to a view of a Builder or Recipe.
type View struct {
	g   *graph
	idx int
}

func (v View) node() *viewNode { return v.g.views[v.idx] }

// Index is the view's position; it is stable across Copy.
func (v View) Index() int { return v.idx }

// ID is the bound store id, empty until bound.
func (v View) ID() string { return v.node().id }

// LocalName is the builder-assigned name. Normalization clears it.
func (v View) LocalName() string { return v.node().localName }

// Fate returns the view fate.
func (v View) Fate() Fate { return v.node().fate }

// Type returns the last committed resolved type.
func (v View) Type() *types.Type { return v.node().typ }

// MappedType returns the type of the bound store, if any.
func (v View) MappedType() *types.Type { return v.node().mapped }

// Tags returns the view tags, sorted.
func (v View) Tags() []string { return slices.Clone(v.node().tags) }

// Connections returns the connections attached to the view.
func (v View) Connections() []Connection {
	n := v.node()
	out := make([]Connection, len(n.conns))
	for i, k := range n.conns {
		out[i] = Connection{g: v.g, key: k}
	}
	return out
}

// Check runs the type/fate resolver against the view's current state without
// committing anything.
func (v View) Check() Resolution {
	return ResolveView(v.g.viewInput(v.idx))
}

// IsValid reports whether the view's constraints currently unify.
func (v View) IsValid() bool { return v.Check().Valid }

// IsResolved reports whether the view is complete: it has a committed type
// and its fate is create, or a store-binding fate with an id.
func (v View) IsResolved() bool {
	n := v.node()
	if n.typ == nil {
		return false
	}
	switch n.fate {
	case FateCreate:
		return true
	case FateMap, FateUse, FateCopy:
		return n.id != ""
	default:
		return false
	}
}

// DirectionCounts tallies the directions of the connections attached to a view.
// InOut connections also count toward In and Out.
type DirectionCounts struct {
	In, Out, InOut, Unknown int
}

// DirectionCounts returns the direction tally of the view's connections.
func (v View) DirectionCounts() DirectionCounts {
	var c DirectionCounts
	for _, k := range v.node().conns {
		switch v.g.conn(k).direction {
		case types.DirectionIn:
			c.In++
		case types.DirectionOut:
			c.Out++
		case types.DirectionInOut:
			c.InOut++
		default:
			c.Unknown++
		}
	}
	c.In += c.InOut
	c.Out += c.InOut
	return c
}

// Particle is a read-only handle to a particle.
type Particle struct {
	g   *graph
	idx int
}

func (p Particle) node() *particleNode { return p.g.particles[p.idx] }

// Index is the particle's position; it is stable across Copy.
func (p Particle) Index() int { return p.idx }

// Name is the particle name used for catalog lookup.
func (p Particle) Name() string { return p.node().name }

// Spec returns the bound specification, or nil.
func (p Particle) Spec() *catalog.ParticleSpec { return p.node().spec }

// Connections returns the particle's connections ordered by name.
func (p Particle) Connections() []Connection {
	names := sortedNames(p.node().conns)
	out := make([]Connection, len(names))
	for i, n := range names {
		out[i] = Connection{g: p.g, key: elemKey{particle: p.idx, name: n}}
	}
	return out
}

// Connection returns the named connection.
func (p Particle) Connection(name string) (Connection, bool) {
	if _, ok := p.node().conns[name]; !ok {
		return Connection{}, false
	}
	return Connection{g: p.g, key: elemKey{particle: p.idx, name: name}}, true
}

// SlotConnections returns the particle's slot connections ordered by name.
func (p Particle) SlotConnections() []SlotConnection {
	names := sortedNames(p.node().slotConns)
	out := make([]SlotConnection, len(names))
	for i, n := range names {
		out[i] = SlotConnection{g: p.g, key: elemKey{particle: p.idx, name: n}}
	}
	return out
}

// SlotConnection returns the named slot connection.
func (p Particle) SlotConnection(name string) (SlotConnection, bool) {
	if _, ok := p.node().slotConns[name]; !ok {
		return SlotConnection{}, false
	}
	return SlotConnection{g: p.g, key: elemKey{particle: p.idx, name: name}}, true
}

// IsResolved reports whether the particle has a spec and every required
// connection is resolved.
func (p Particle) IsResolved() bool {
	n := p.node()
	if n.spec == nil {
		return false
	}
	for _, cs := range n.spec.Connections {
		if _, ok := n.conns[cs.Name]; !ok && !cs.Optional {
			return false
		}
	}
	for _, c := range p.Connections() {
		cn := c.node()
		if cn.optional && cn.view < 0 {
			continue
		}
		if !c.IsResolved() {
			return false
		}
	}
	return true
}

// Connection is a read-only handle to a particle connection.
type Connection struct {
	g   *graph
	key elemKey
}

func (c Connection) node() *connNode { return c.g.conn(c.key) }

// Name is the connection name, unique within its particle.
func (c Connection) Name() string { return c.key.name }

// Particle returns the owning particle.
func (c Connection) Particle() Particle { return Particle{g: c.g, idx: c.key.particle} }

// Direction returns the data flow direction.
func (c Connection) Direction() types.Direction { return c.node().direction }

// Type returns the required type, nil if unknown.
func (c Connection) Type() *types.Type { return c.node().typ }

// Tags returns the connection tags.
func (c Connection) Tags() []string { return slices.Clone(c.node().tags) }

// Optional reports whether the connection may stay unbound.
func (c Connection) Optional() bool { return c.node().optional }

// View returns the bound view.
func (c Connection) View() (View, bool) {
	idx := c.node().view
	if idx < 0 {
		return View{}, false
	}
	return View{g: c.g, idx: idx}, true
}

// IsResolved reports whether the connection is bound and has a known direction.
func (c Connection) IsResolved() bool {
	n := c.node()
	return n.view >= 0 && n.direction != types.DirectionUnknown && n.direction != ""
}

// Slot is a read-only handle to a slot.
type Slot struct {
	g   *graph
	idx int
}

func (s Slot) node() *slotNode { return s.g.slots[s.idx] }

// Index is the slot's position; it is stable across Copy.
func (s Slot) Index() int { return s.idx }

// ID is the id of a remote slot, empty for recipe-local slots.
func (s Slot) ID() string { return s.node().id }

// Name is the slot name matched by consumers.
func (s Slot) Name() string { return s.node().name }

// FormFactor returns the slot form factor.
func (s Slot) FormFactor() string { return s.node().formFactor }

// Source returns the slot connection that provides this slot.
func (s Slot) Source() (SlotConnection, bool) {
	n := s.node()
	if !n.hasSource {
		return SlotConnection{}, false
	}
	return SlotConnection{g: s.g, key: n.source}, true
}

// ViewConnections returns the connections constraining what renders into the slot.
func (s Slot) ViewConnections() []Connection {
	n := s.node()
	out := make([]Connection, len(n.viewConns))
	for i, k := range n.viewConns {
		out[i] = Connection{g: s.g, key: k}
	}
	return out
}

// ConsumeConnections returns the slot connections consuming the slot.
func (s Slot) ConsumeConnections() []SlotConnection {
	n := s.node()
	out := make([]SlotConnection, len(n.consumers))
	for i, k := range n.consumers {
		out[i] = SlotConnection{g: s.g, key: k}
	}
	return out
}

// SlotConnection is a read-only handle to a particle's consumed slot.
type SlotConnection struct {
	g   *graph
	key elemKey
}

func (sc SlotConnection) node() *slotConnNode { return sc.g.slotConn(sc.key) }

// Name is the consumed slot name.
func (sc SlotConnection) Name() string { return sc.key.name }

// Particle returns the consuming particle.
func (sc SlotConnection) Particle() Particle { return Particle{g: sc.g, idx: sc.key.particle} }

// Spec returns the slot specification, or nil.
func (sc SlotConnection) Spec() *catalog.SlotSpec { return sc.node().spec }

// TargetSlot returns the consumed slot.
func (sc SlotConnection) TargetSlot() (Slot, bool) {
	idx := sc.node().target
	if idx < 0 {
		return Slot{}, false
	}
	return Slot{g: sc.g, idx: idx}, true
}

// ProvidedSlots returns the slots exposed by this slot connection, keyed by name.
func (sc SlotConnection) ProvidedSlots() map[string]Slot {
	n := sc.node()
	out := make(map[string]Slot, len(n.provided))
	for name, idx := range n.provided {
		out[name] = Slot{g: sc.g, idx: idx}
	}
	return out
}

// IsValid checks that the consumed slot, when provided by another slot
// connection, is the slot that connection provides under the same name.
func (sc SlotConnection) IsValid() bool { return sc.g.slotConnValid(sc.key) }

// IsResolved reports whether the slot connection is declared by its
// particle's spec and consumes a slot. A required slot also needs a provider
// or a remote slot id.
func (sc SlotConnection) IsResolved() bool {
	n := sc.node()
	if sc.key.name == "" || n.spec == nil {
		return false
	}
	ps := sc.g.particles[sc.key.particle].spec
	if ps == nil {
		return false
	}
	if _, ok := ps.Slot(sc.key.name); !ok {
		return false
	}
	if n.target < 0 {
		return false
	}
	target := sc.g.slots[n.target]
	if n.spec.Required && !target.hasSource && target.id == "" {
		return false
	}
	return true
}
