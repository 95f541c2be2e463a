package recipe

import (
	"slices"

	"github.com/smalls/arcs/pkg/catalog"
	"github.com/smalls/arcs/pkg/types"
)

// Builder is a recipe under construction. It is the only type that can edit
// a recipe graph; Normalize turns it into an immutable Recipe.
type Builder struct {
	g *graph
}

// NewBuilder starts an empty recipe.
func NewBuilder(name string) *Builder {
	return &Builder{g: newGraph(name)}
}

func (b *Builder) own(op string, g *graph) {
	if g == nil {
		contractf(op, "zero-value handle")
	}
	if g != b.g {
		contractf(op, "element belongs to a different recipe")
	}
}

// Name returns the recipe name.
func (b *Builder) Name() string { return b.g.name }

// SetName renames the recipe.
func (b *Builder) SetName(name string) { b.g.name = name }

// View returns the view at index i.
func (b *Builder) View(i int) View { return View{g: b.g, idx: i} }

// Views returns all views in index order.
func (b *Builder) Views() []View { return viewsOf(b.g) }

// Particle returns the particle at index i.
func (b *Builder) Particle(i int) Particle { return Particle{g: b.g, idx: i} }

// Particles returns all particles in index order.
func (b *Builder) Particles() []Particle { return particlesOf(b.g) }

// FindParticle returns the first particle with the given name.
func (b *Builder) FindParticle(name string) (Particle, bool) { return findParticle(b.g, name) }

// Slot returns the slot at index i.
func (b *Builder) Slot(i int) Slot { return Slot{g: b.g, idx: i} }

// Slots returns all slots in index order.
func (b *Builder) Slots() []Slot { return slotsOf(b.g) }

// Constraints returns the pending constraints.
func (b *Builder) Constraints() []Constraint { return slices.Clone(b.g.constraints) }

// ViewOf returns the builder's counterpart of a view of the recipe the builder
// was copied from. Copies keep element positions, and builders only append.
func (b *Builder) ViewOf(v View) View { return View{g: b.g, idx: v.idx} }

// ParticleOf returns the builder's counterpart of a particle.
func (b *Builder) ParticleOf(p Particle) Particle { return Particle{g: b.g, idx: p.idx} }

// ConnectionOf returns the builder's counterpart of a connection.
func (b *Builder) ConnectionOf(c Connection) Connection { return Connection{g: b.g, key: c.key} }

// SlotOf returns the builder's counterpart of a slot.
func (b *Builder) SlotOf(s Slot) Slot { return Slot{g: b.g, idx: s.idx} }

// SlotConnectionOf returns the builder's counterpart of a slot connection.
func (b *Builder) SlotConnectionOf(sc SlotConnection) SlotConnection {
	return SlotConnection{g: b.g, key: sc.key}
}

// AddView appends a view with unknown fate.
func (b *Builder) AddView() View {
	b.g.views = append(b.g.views, &viewNode{fate: FateUnknown})
	return View{g: b.g, idx: len(b.g.views) - 1}
}

// SetViewID sets the bound store id.
func (b *Builder) SetViewID(v View, id string) {
	b.own("SetViewID", v.g)
	v.node().id = id
}

// SetViewLocalName sets the builder-local name of a view.
func (b *Builder) SetViewLocalName(v View, name string) {
	b.own("SetViewLocalName", v.g)
	v.node().localName = name
}

// SetViewFate sets the fate.
func (b *Builder) SetViewFate(v View, fate Fate) {
	b.own("SetViewFate", v.g)
	if err := fate.Validate(); err != nil {
		contractf("SetViewFate", "%v", err)
	}
	v.node().fate = fate
}

// SetViewType declares the view type independently of its connections.
func (b *Builder) SetViewType(v View, t *types.Type) {
	b.own("SetViewType", v.g)
	v.node().mapped = t
}

// AddViewTags adds tags to a view.
func (b *Builder) AddViewTags(v View, tags ...string) {
	b.own("AddViewTags", v.g)
	n := v.node()
	n.tags = mergeTags(n.tags, tags...)
}

// MapToStore binds a view to an existing store. The committed type is
// cleared; the next Normalize recomputes it from the store type.
func (b *Builder) MapToStore(v View, id string, storeType *types.Type, tags ...string) {
	b.own("MapToStore", v.g)
	if id == "" {
		contractf("MapToStore", "store id is empty")
	}
	n := v.node()
	n.id = id
	n.typ = nil
	n.mapped = storeType
	n.tags = mergeTags(n.tags, tags...)
}

// AddParticle appends a particle known only by name.
func (b *Builder) AddParticle(name string) Particle {
	if name == "" {
		contractf("AddParticle", "particle has no name")
	}
	b.g.particles = append(b.g.particles, &particleNode{
		name:      name,
		conns:     make(map[string]*connNode),
		slotConns: make(map[string]*slotConnNode),
	})
	return Particle{g: b.g, idx: len(b.g.particles) - 1}
}

// SetParticleSpec binds a specification and materializes every connection and
// slot connection it declares.
func (b *Builder) SetParticleSpec(p Particle, spec *catalog.ParticleSpec) {
	b.own("SetParticleSpec", p.g)
	if spec == nil {
		contractf("SetParticleSpec", "spec is nil")
	}
	n := p.node()
	if spec.Name != n.name {
		contractf("SetParticleSpec", "spec %s does not match particle %s", spec.Name, n.name)
	}
	n.spec = spec

	for _, cs := range spec.Connections {
		cn, ok := n.conns[cs.Name]
		if !ok {
			cn = &connNode{view: -1}
			n.conns[cs.Name] = cn
		}
		cn.direction = cs.Direction
		cn.typ = cs.Type
		cn.tags = mergeTags(cn.tags, cs.Tags...)
		cn.optional = cs.Optional
	}

	for i := range spec.Slots {
		ss := &spec.Slots[i]
		if _, ok := n.slotConns[ss.Name]; !ok {
			n.slotConns[ss.Name] = &slotConnNode{target: -1, provided: make(map[string]int)}
		}
		b.SetSlotSpec(SlotConnection{g: b.g, key: elemKey{particle: p.idx, name: ss.Name}}, ss)
	}
}

// AddConnection adds an unbound connection with unknown direction.
func (b *Builder) AddConnection(p Particle, name string) Connection {
	b.own("AddConnection", p.g)
	if name == "" {
		contractf("AddConnection", "connection on %s has no name", p.Name())
	}
	n := p.node()
	if _, ok := n.conns[name]; ok {
		contractf("AddConnection", "connection %s.%s already exists", n.name, name)
	}
	n.conns[name] = &connNode{direction: types.DirectionUnknown, view: -1}
	return Connection{g: b.g, key: elemKey{particle: p.idx, name: name}}
}

// SetConnectionDirection sets a connection direction.
func (b *Builder) SetConnectionDirection(c Connection, d types.Direction) {
	b.own("SetConnectionDirection", c.g)
	if err := d.Validate(); err != nil {
		contractf("SetConnectionDirection", "%v", err)
	}
	c.node().direction = d
}

// SetConnectionType sets a connection type.
func (b *Builder) SetConnectionType(c Connection, t *types.Type) {
	b.own("SetConnectionType", c.g)
	c.node().typ = t
}

// AddConnectionTags adds tags to a connection.
func (b *Builder) AddConnectionTags(c Connection, tags ...string) {
	b.own("AddConnectionTags", c.g)
	n := c.node()
	n.tags = mergeTags(n.tags, tags...)
}

// ConnectView binds a connection to a view, keeping the view's connection
// list consistent with the connection's back-reference.
func (b *Builder) ConnectView(c Connection, v View) {
	b.own("ConnectView", c.g)
	b.own("ConnectView", v.g)
	cn := c.node()
	if cn.view >= 0 {
		contractf("ConnectView", "connection %s.%s is already bound", c.Particle().Name(), c.Name())
	}
	cn.view = v.idx
	vn := v.node()
	vn.conns = append(vn.conns, c.key)
}

// AddSlotConnection adds an untargeted slot connection without spec.
func (b *Builder) AddSlotConnection(p Particle, name string) SlotConnection {
	b.own("AddSlotConnection", p.g)
	if name == "" {
		contractf("AddSlotConnection", "slot connection on %s has no name", p.Name())
	}
	n := p.node()
	if _, ok := n.slotConns[name]; ok {
		contractf("AddSlotConnection", "slot connection %s.%s already exists", n.name, name)
	}
	n.slotConns[name] = &slotConnNode{target: -1, provided: make(map[string]int)}
	return SlotConnection{g: b.g, key: elemKey{particle: p.idx, name: name}}
}

// SetSlotSpec binds a slot specification and creates the slots it provides.
// Each provided slot records the particle connections named by the spec.
func (b *Builder) SetSlotSpec(sc SlotConnection, spec *catalog.SlotSpec) {
	b.own("SetSlotSpec", sc.g)
	if spec == nil || spec.Name != sc.Name() {
		contractf("SetSlotSpec", "slot spec does not match slot connection %s", sc.Name())
	}
	n := sc.node()
	if n.spec == spec {
		return
	}
	n.spec = spec
	pn := b.g.particles[sc.key.particle]

	for _, ps := range spec.Provides {
		idx, ok := n.provided[ps.Name]
		if !ok {
			s := b.AddSlot(ps.Name)
			idx = s.idx
			sn := s.node()
			sn.hasSource = true
			sn.source = sc.key
			n.provided[ps.Name] = idx
		}
		sn := b.g.slots[idx]
		if len(sn.viewConns) != 0 {
			contractf("SetSlotSpec", "provided slot %s already has view connections", ps.Name)
		}
		for _, view := range ps.Views {
			if _, ok := pn.conns[view]; ok {
				sn.viewConns = append(sn.viewConns, elemKey{particle: sc.key.particle, name: view})
			}
		}
		sn.formFactor = ps.FormFactor
	}
}

// AddSlot appends a slot with the given name.
func (b *Builder) AddSlot(name string) Slot {
	b.g.slots = append(b.g.slots, &slotNode{name: name})
	return Slot{g: b.g, idx: len(b.g.slots) - 1}
}

// SetSlotID binds a slot to a remote slot id.
func (b *Builder) SetSlotID(s Slot, id string) {
	b.own("SetSlotID", s.g)
	s.node().id = id
}

// SetSlotFormFactor sets a slot form factor.
func (b *Builder) SetSlotFormFactor(s Slot, formFactor string) {
	b.own("SetSlotFormFactor", s.g)
	s.node().formFactor = formFactor
}

// ConnectToSlot makes sc consume slot s.
func (b *Builder) ConnectToSlot(sc SlotConnection, s Slot) {
	b.own("ConnectToSlot", sc.g)
	b.own("ConnectToSlot", s.g)
	n := sc.node()
	if n.target >= 0 {
		contractf("ConnectToSlot", "slot connection %s.%s already has a target", sc.Particle().Name(), sc.Name())
	}
	n.target = s.idx
	sn := s.node()
	sn.consumers = append(sn.consumers, sc.key)
}

// AddConstraint records a pending connection constraint.
func (b *Builder) AddConstraint(c Constraint) {
	if c.From.Particle == "" || c.From.Connection == "" || c.To.Particle == "" || c.To.Connection == "" {
		contractf("AddConstraint", "constraint %s has an empty endpoint", c)
	}
	if c.From == c.To {
		contractf("AddConstraint", "constraint %s connects a connection to itself", c)
	}
	b.g.constraints = append(b.g.constraints, c)
}

// RemoveConstraint drops the constraint at index i.
func (b *Builder) RemoveConstraint(i int) {
	if i < 0 || i >= len(b.g.constraints) {
		contractf("RemoveConstraint", "index %d out of range", i)
	}
	b.g.constraints = slices.Delete(b.g.constraints, i, i+1)
}

// Normalize commits view resolutions, sorts every collection into canonical
// order and returns a frozen copy. The builder remains usable and unaffected.
func (b *Builder) Normalize() *Recipe {
	g := b.g.clone()
	problems := g.commit()
	g.canonicalize()
	return &Recipe{g: g, problems: problems}
}

func viewsOf(g *graph) []View {
	out := make([]View, len(g.views))
	for i := range g.views {
		out[i] = View{g: g, idx: i}
	}
	return out
}

func particlesOf(g *graph) []Particle {
	out := make([]Particle, len(g.particles))
	for i := range g.particles {
		out[i] = Particle{g: g, idx: i}
	}
	return out
}

func slotsOf(g *graph) []Slot {
	out := make([]Slot, len(g.slots))
	for i := range g.slots {
		out[i] = Slot{g: g, idx: i}
	}
	return out
}

func findParticle(g *graph, name string) (Particle, bool) {
	for i, p := range g.particles {
		if p.name == name {
			return Particle{g: g, idx: i}, true
		}
	}
	return Particle{}, false
}
