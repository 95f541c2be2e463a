package recipe

import (
	"fmt"
	"slices"
	"sort"

	"github.com/smalls/arcs/pkg/catalog"
	"github.com/smalls/arcs/pkg/types"
)

// graph is the per-recipe arena. Elements reference each other by index or
// by (particle index, name) key, never by pointer.
type graph struct {
	name        string
	views       []*viewNode
	particles   []*particleNode
	slots       []*slotNode
	constraints []Constraint
}

// elemKey addresses a connection or slot connection inside a particle.
type elemKey struct {
	particle int
	name     string
}

func (k elemKey) less(o elemKey) bool {
	if k.particle != o.particle {
		return k.particle < o.particle
	}
	return k.name < o.name
}

func (k elemKey) String() string {
	return fmt.Sprintf("%06d.%s", k.particle, k.name)
}

type viewNode struct {
	id        string
	localName string
	fate      Fate
	typ       *types.Type
	mapped    *types.Type
	tags      []string
	conns     []elemKey
}

type particleNode struct {
	name      string
	spec      *catalog.ParticleSpec
	conns     map[string]*connNode
	slotConns map[string]*slotConnNode
}

type connNode struct {
	direction types.Direction
	typ       *types.Type
	tags      []string
	optional  bool
	view      int
}

type slotNode struct {
	id         string
	name       string
	formFactor string
	hasSource  bool
	source     elemKey
	viewConns  []elemKey
	consumers  []elemKey
}

type slotConnNode struct {
	spec     *catalog.SlotSpec
	target   int
	provided map[string]int
}

// Constraint is a free-floating request to connect two particle connections
// through a shared view. It is written "From.Particle.Connection -> To...".
type Constraint struct {
	From Endpoint `json:"from"`
	To   Endpoint `json:"to"`
}

// Endpoint names a particle connection that may not exist yet.
type Endpoint struct {
	Particle   string `json:"particle"`
	Connection string `json:"connection"`
}

func (e Endpoint) String() string { return e.Particle + "." + e.Connection }

func (c Constraint) String() string { return c.From.String() + " -> " + c.To.String() }

func newGraph(name string) *graph {
	return &graph{name: name}
}

func (g *graph) conn(k elemKey) *connNode {
	return g.particles[k.particle].conns[k.name]
}

func (g *graph) slotConn(k elemKey) *slotConnNode {
	return g.particles[k.particle].slotConns[k.name]
}

func (g *graph) clone() *graph {
	c := &graph{
		name:        g.name,
		views:       make([]*viewNode, len(g.views)),
		particles:   make([]*particleNode, len(g.particles)),
		slots:       make([]*slotNode, len(g.slots)),
		constraints: slices.Clone(g.constraints),
	}
	for i, v := range g.views {
		nv := *v
		nv.tags = slices.Clone(v.tags)
		nv.conns = slices.Clone(v.conns)
		c.views[i] = &nv
	}
	for i, p := range g.particles {
		np := &particleNode{
			name:      p.name,
			spec:      p.spec,
			conns:     make(map[string]*connNode, len(p.conns)),
			slotConns: make(map[string]*slotConnNode, len(p.slotConns)),
		}
		for name, cn := range p.conns {
			ncn := *cn
			ncn.tags = slices.Clone(cn.tags)
			np.conns[name] = &ncn
		}
		for name, sc := range p.slotConns {
			nsc := *sc
			nsc.provided = make(map[string]int, len(sc.provided))
			for k, v := range sc.provided {
				nsc.provided[k] = v
			}
			np.slotConns[name] = &nsc
		}
		c.particles[i] = np
	}
	for i, s := range g.slots {
		ns := *s
		ns.viewConns = slices.Clone(s.viewConns)
		ns.consumers = slices.Clone(s.consumers)
		c.slots[i] = &ns
	}
	return c
}

// viewInput gathers the resolver input for view idx from the current graph state.
func (g *graph) viewInput(idx int) ViewInput {
	v := g.views[idx]
	in := ViewInput{
		Fate:       v.fate,
		Tags:       v.tags,
		MappedType: v.mapped,
	}
	for _, k := range v.conns {
		cn := g.conn(k)
		in.Contributions = append(in.Contributions, Contribution{
			Connection: g.particles[k.particle].name + "." + k.name,
			Type:       cn.typ,
			Direction:  cn.direction,
			Tags:       cn.tags,
		})
	}
	return in
}

// slotConnValid checks that a consumed slot with a source is the very slot
// its source provides under that name.
func (g *graph) slotConnValid(k elemKey) bool {
	sc := g.slotConn(k)
	if sc.target < 0 {
		return true
	}
	target := g.slots[sc.target]
	if !target.hasSource {
		return true
	}
	src := g.slotConn(target.source)
	provided, ok := src.provided[target.name]
	return ok && provided == sc.target
}

func sortedNames[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func mergeTags(dst []string, tags ...string) []string {
	for _, t := range tags {
		if t == "" || slices.Contains(dst, t) {
			continue
		}
		dst = append(dst, t)
	}
	sort.Strings(dst)
	return dst
}
