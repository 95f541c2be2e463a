package recipe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// commit applies every valid view resolution and returns the local validity
// problems found. Invalid views keep their previous type and tags.
func (g *graph) commit() []string {
	var problems []string
	for i, v := range g.views {
		v.localName = ""
		res := ResolveView(g.viewInput(i))
		if !res.Valid {
			problems = append(problems, fmt.Sprintf("view %d: %s", i, res.Reason))
			continue
		}
		v.typ = res.Type
		v.tags = res.Tags
	}
	for pi, p := range g.particles {
		for _, name := range sortedNames(p.slotConns) {
			if !g.slotConnValid(elemKey{particle: pi, name: name}) {
				problems = append(problems, fmt.Sprintf("slot connection %s.%s: target is not the slot its source provides", p.name, name))
			}
		}
	}
	return problems
}

// canonicalize sorts particles, views, slots and constraints into a total
// order and rewrites every index reference accordingly.
func (g *graph) canonicalize() {
	g.sortParticles()
	g.sortViews()
	g.sortSlots()
	sort.SliceStable(g.constraints, func(i, j int) bool {
		return g.constraints[i].String() < g.constraints[j].String()
	})
}

func (g *graph) sortParticles() {
	perm := permutation(g.particleKeys())

	remap := inverse(perm)
	particles := make([]*particleNode, len(g.particles))
	for newIdx, oldIdx := range perm {
		particles[newIdx] = g.particles[oldIdx]
	}
	g.particles = particles

	fix := func(k *elemKey) { k.particle = remap[k.particle] }
	for _, v := range g.views {
		for i := range v.conns {
			fix(&v.conns[i])
		}
	}
	for _, s := range g.slots {
		if s.hasSource {
			fix(&s.source)
		}
		for i := range s.viewConns {
			fix(&s.viewConns[i])
		}
		for i := range s.consumers {
			fix(&s.consumers[i])
		}
	}
}

func (g *graph) particleKey(p *particleNode) string {
	var sb strings.Builder
	sb.WriteString(p.name)
	if p.spec == nil {
		sb.WriteString("\x00?")
	}
	for _, name := range sortedNames(p.conns) {
		c := p.conns[name]
		fmt.Fprintf(&sb, "\x00%s %s %s %s", name, c.direction, c.typ, strings.Join(c.tags, ","))
	}
	for _, name := range sortedNames(p.slotConns) {
		fmt.Fprintf(&sb, "\x00slot %s %t", name, p.slotConns[name].spec != nil)
	}
	return sb.String()
}

// particleKeys orders particles by their own content first. Particles that
// tie are told apart by the views they bind, the particles sharing those
// views and the slots they consume, refined round by round until the
// partition stops splitting. Particles still tied afterwards keep their
// insertion order.
func (g *graph) particleKeys() []string {
	base := make([]string, len(g.particles))
	plabel := make([]string, len(g.particles))
	for i, p := range g.particles {
		base[i] = g.particleKey(p)
		plabel[i] = base[i]
		for _, name := range sortedNames(p.slotConns) {
			if t := p.slotConns[name].target; t >= 0 {
				s := g.slots[t]
				plabel[i] += fmt.Sprintf("\x00slot %s %s %s %s", name, s.id, s.name, s.formFactor)
			}
		}
	}
	vlabel := make([]string, len(g.views))
	for i, v := range g.views {
		vlabel[i] = viewContentKey(v)
	}

	classes := distinct(plabel) + distinct(vlabel)
	for range len(g.particles) + len(g.views) {
		nextV := make([]string, len(g.views))
		for i, v := range g.views {
			refs := make([]string, len(v.conns))
			for j, k := range v.conns {
				refs[j] = plabel[k.particle] + "\x01" + k.name
			}
			sort.Strings(refs)
			nextV[i] = digest(vlabel[i], refs...)
		}
		nextP := make([]string, len(g.particles))
		for i, p := range g.particles {
			var bound []string
			for _, name := range sortedNames(p.conns) {
				if c := p.conns[name]; c.view >= 0 {
					bound = append(bound, name+"="+nextV[c.view])
				}
			}
			nextP[i] = digest(plabel[i], bound...)
		}
		plabel, vlabel = nextP, nextV
		n := distinct(plabel) + distinct(vlabel)
		if n == classes {
			break
		}
		classes = n
	}

	keys := make([]string, len(g.particles))
	for i := range keys {
		keys[i] = base[i] + "\x02" + plabel[i]
	}
	return keys
}

func viewContentKey(v *viewNode) string {
	return strings.Join([]string{
		v.id,
		strings.Join(v.tags, ","),
		string(v.fate),
		v.typ.String(),
		v.mapped.String(),
	}, "\x00")
}

func digest(label string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(label))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func distinct(labels []string) int {
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}

func (g *graph) sortViews() {
	keys := make([]string, len(g.views))
	for i, v := range g.views {
		sort.SliceStable(v.conns, func(a, b int) bool { return v.conns[a].less(v.conns[b]) })
		refs := make([]string, len(v.conns))
		for j, k := range v.conns {
			refs[j] = k.String()
		}
		keys[i] = viewContentKey(v) + "\x00" + strings.Join(refs, ",")
	}
	perm := permutation(keys)

	remap := inverse(perm)
	views := make([]*viewNode, len(g.views))
	for newIdx, oldIdx := range perm {
		views[newIdx] = g.views[oldIdx]
	}
	g.views = views

	for _, p := range g.particles {
		for _, c := range p.conns {
			if c.view >= 0 {
				c.view = remap[c.view]
			}
		}
	}
}

func (g *graph) sortSlots() {
	keys := make([]string, len(g.slots))
	for i, s := range g.slots {
		sort.SliceStable(s.consumers, func(a, b int) bool { return s.consumers[a].less(s.consumers[b]) })
		sort.SliceStable(s.viewConns, func(a, b int) bool { return s.viewConns[a].less(s.viewConns[b]) })
		source := ""
		if s.hasSource {
			source = s.source.String()
		}
		keys[i] = strings.Join([]string{
			s.id,
			s.name,
			source,
			joinKeys(s.consumers),
			joinKeys(s.viewConns),
			s.formFactor,
		}, "\x00")
	}
	perm := permutation(keys)

	remap := inverse(perm)
	slots := make([]*slotNode, len(g.slots))
	for newIdx, oldIdx := range perm {
		slots[newIdx] = g.slots[oldIdx]
	}
	g.slots = slots

	for _, p := range g.particles {
		for _, sc := range p.slotConns {
			if sc.target >= 0 {
				sc.target = remap[sc.target]
			}
			for name, idx := range sc.provided {
				sc.provided[name] = remap[idx]
			}
		}
	}
}

// permutation returns the old indices in ascending key order; ties keep
// their current relative order.
func permutation(keys []string) []int {
	perm := make([]int, len(keys))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool { return keys[perm[a]] < keys[perm[b]] })
	return perm
}

func inverse(perm []int) []int {
	inv := make([]int, len(perm))
	for newIdx, oldIdx := range perm {
		inv[oldIdx] = newIdx
	}
	return inv
}

func joinKeys(keys []elemKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}
