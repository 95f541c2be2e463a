package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smalls/arcs/pkg/catalog"
	"github.com/smalls/arcs/pkg/types"
)

func showProductsSpec() *catalog.ParticleSpec {
	return &catalog.ParticleSpec{
		Name: "ShowProducts",
		Connections: []catalog.ConnectionSpec{
			{Name: "list", Direction: types.DirectionIn, Type: types.MustParse("[Product]")},
		},
		Slots: []catalog.SlotSpec{
			{Name: "root", Required: true, Provides: []catalog.ProvidedSlotSpec{
				{Name: "annotation", Views: []string{"list"}},
			}},
		},
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	b := NewBuilder("demo")
	p := b.AddParticle("ShowProducts")
	b.SetParticleSpec(p, showProductsSpec())
	list, ok := p.Connection("list")
	require.True(t, ok)
	v := b.AddView()
	b.AddViewTags(v, "shortlist")
	b.ConnectView(list, v)

	r1 := b.Normalize()
	r2 := r1.Copy().Normalize()
	r3 := r2.Copy().Normalize()

	assert.Equal(t, r1.String(), r2.String())
	assert.Equal(t, r1.Hash(), r2.Hash())
	assert.Equal(t, r1.Hash(), r3.Hash())
	assert.Len(t, r1.Hash(), 64)
}

func TestHashIgnoresInsertionOrder(t *testing.T) {
	build := func(reverse bool) *Recipe {
		b := NewBuilder("order")
		names := []string{"A", "B"}
		if reverse {
			names = []string{"B", "A"}
		}
		for _, name := range names {
			p := b.AddParticle(name)
			c := b.AddConnection(p, "x")
			b.SetConnectionDirection(c, types.DirectionIn)
			b.SetConnectionType(c, types.Entity("Foo"))
			v := b.AddView()
			b.ConnectView(c, v)
		}
		return b.Normalize()
	}

	forward, backward := build(false), build(true)
	assert.Equal(t, forward.Hash(), backward.Hash())
	assert.Equal(t, "A", forward.Particle(0).Name())
	assert.Equal(t, "A", backward.Particle(0).Name())
}

func TestHashIgnoresInsertionOrder_SameNameParticles(t *testing.T) {
	build := func(tags ...string) *Recipe {
		b := NewBuilder("twins")
		for _, tag := range tags {
			p := b.AddParticle("A")
			c := b.AddConnection(p, "x")
			b.SetConnectionDirection(c, types.DirectionIn)
			b.SetConnectionType(c, types.Entity("Foo"))
			v := b.AddView()
			b.AddViewTags(v, tag)
			b.ConnectView(c, v)
		}
		return b.Normalize()
	}

	forward, backward := build("t1", "t2"), build("t2", "t1")
	assert.Equal(t, forward.String(), backward.String())
	assert.Equal(t, forward.Hash(), backward.Hash())
}

func TestHashIgnoresInsertionOrder_SharedView(t *testing.T) {
	// Two A particles bind views with identical content; only the B
	// particle sharing one of them tells them apart.
	build := func(sharedFirst bool) *Recipe {
		b := NewBuilder("shared")
		addA := func() View {
			p := b.AddParticle("A")
			c := b.AddConnection(p, "x")
			b.SetConnectionDirection(c, types.DirectionIn)
			b.SetConnectionType(c, types.Entity("Foo"))
			v := b.AddView()
			b.ConnectView(c, v)
			return v
		}
		var shared View
		if sharedFirst {
			shared = addA()
			addA()
		} else {
			addA()
			shared = addA()
		}
		q := b.AddParticle("B")
		d := b.AddConnection(q, "y")
		b.SetConnectionDirection(d, types.DirectionOut)
		b.SetConnectionType(d, types.Entity("Foo"))
		b.ConnectView(d, shared)
		return b.Normalize()
	}

	forward, backward := build(true), build(false)
	assert.Equal(t, forward.String(), backward.String())
	assert.Equal(t, forward.Hash(), backward.Hash())
}

func TestHashIgnoresRecipeName(t *testing.T) {
	a := NewBuilder("one")
	a.AddParticle("P")
	b := NewBuilder("two")
	b.AddParticle("P")

	ra, rb := a.Normalize(), b.Normalize()
	assert.Equal(t, ra.Hash(), rb.Hash())
	assert.NotEqual(t, ra.String(), rb.String())
}

func TestResolverConflictKeepsCommittedType(t *testing.T) {
	b := NewBuilder("conflict")
	p := b.AddParticle("P")
	c := b.AddConnection(p, "a")
	b.SetConnectionDirection(c, types.DirectionIn)
	b.SetConnectionType(c, types.Entity("Foo"))
	b.ConnectView(c, b.AddView())

	r := b.Normalize()
	require.True(t, r.Valid())
	require.Equal(t, "Foo", r.View(0).Type().String())

	next := r.Copy()
	q := next.AddParticle("Q")
	d := next.AddConnection(q, "b")
	next.SetConnectionDirection(d, types.DirectionOut)
	next.SetConnectionType(d, types.Entity("Bar"))
	next.ConnectView(d, next.View(0))

	res := next.View(0).Check()
	assert.False(t, res.Valid)
	assert.Equal(t, "Foo", next.View(0).Type().String())

	invalid := next.Normalize()
	assert.False(t, invalid.Valid())
	assert.NotEmpty(t, invalid.Problems())
	assert.Equal(t, "Foo", invalid.View(0).Type().String())
}

func TestResolveViewMapDirection(t *testing.T) {
	for _, dir := range []types.Direction{types.DirectionOut, types.DirectionInOut} {
		res := ResolveView(ViewInput{
			Fate:       FateMap,
			MappedType: types.Entity("Foo"),
			Contributions: []Contribution{
				{Connection: "P.in", Type: types.Entity("Foo"), Direction: types.DirectionIn},
				{Connection: "P.w", Type: types.Entity("Foo"), Direction: dir},
			},
		})
		assert.False(t, res.Valid, dir)
	}

	res := ResolveView(ViewInput{
		Fate:          FateMap,
		Tags:          []string{"b"},
		MappedType:    types.Entity("Foo"),
		Contributions: []Contribution{{Connection: "P.in", Type: types.Entity("Foo"), Direction: types.DirectionIn, Tags: []string{"a", "b"}}},
	})
	require.True(t, res.Valid)
	assert.Equal(t, []string{"a", "b"}, res.Tags)
	assert.Equal(t, "Foo", res.Type.String())
}

func TestResolveViewCollections(t *testing.T) {
	res := ResolveView(ViewInput{
		Fate: FateUse,
		Contributions: []Contribution{
			{Connection: "A.x", Type: types.MustParse("[Foo]"), Direction: types.DirectionIn},
			{Connection: "B.y", Type: types.MustParse("[Foo]"), Direction: types.DirectionOut},
		},
	})
	assert.True(t, res.Valid)
	assert.Equal(t, "[Foo]", res.Type.String())

	res = ResolveView(ViewInput{
		Fate: FateUse,
		Contributions: []Contribution{
			{Connection: "A.x", Type: types.MustParse("[Foo]"), Direction: types.DirectionIn},
			{Connection: "B.y", Type: types.MustParse("[Bar]"), Direction: types.DirectionOut},
		},
	})
	assert.False(t, res.Valid)
}

func TestViewIsResolved(t *testing.T) {
	b := NewBuilder("views")
	p := b.AddParticle("P")
	c := b.AddConnection(p, "a")
	b.SetConnectionDirection(c, types.DirectionIn)
	b.SetConnectionType(c, types.Entity("Foo"))
	created := b.AddView()
	b.SetViewFate(created, FateCreate)
	b.ConnectView(c, created)

	used := b.AddView()
	b.SetViewFate(used, FateUse)
	b.SetViewType(used, types.Entity("Foo"))

	unknown := b.AddView()
	b.SetViewType(unknown, types.Entity("Foo"))

	r := b.Normalize()
	states := make(map[Fate]bool)
	for _, v := range r.Views() {
		states[v.Fate()] = v.IsResolved()
	}
	assert.True(t, states[FateCreate])
	assert.False(t, states[FateUse], "use without id")
	assert.False(t, states[FateUnknown])

	next := r.Copy()
	for _, v := range next.Views() {
		if v.Fate() == FateUse {
			next.MapToStore(v, "store-1", types.Entity("Foo"))
		}
	}
	for _, v := range next.Normalize().Views() {
		if v.Fate() == FateUse {
			assert.True(t, v.IsResolved())
			assert.Equal(t, "store-1", v.ID())
		}
	}
}

func TestMapToStoreRecomputesType(t *testing.T) {
	b := NewBuilder("mapped")
	p := b.AddParticle("P")
	c := b.AddConnection(p, "a")
	b.SetConnectionDirection(c, types.DirectionIn)
	b.SetConnectionType(c, types.Entity("Product"))
	v := b.AddView()
	b.ConnectView(c, v)
	b.SetViewFate(v, FateUse)
	b.MapToStore(v, "s1", types.MustParse("[Product]"))

	r := b.Normalize()
	assert.False(t, r.Valid())
}

func TestSlotConnectionResolution(t *testing.T) {
	b := NewBuilder("slots")
	p := b.AddParticle("ShowProducts")
	b.SetParticleSpec(p, showProductsSpec())

	root, ok := p.SlotConnection("root")
	require.True(t, ok)
	remote := b.AddSlot("root")
	b.SetSlotID(remote, "root-0")
	b.ConnectToSlot(root, remote)

	undeclared := b.AddSlotConnection(p, "detail")
	detail := b.AddSlot("detail")
	b.ConnectToSlot(undeclared, detail)

	r := b.Normalize()
	require.True(t, r.Valid())

	rp := r.Particle(0)
	rootConn, _ := rp.SlotConnection("root")
	detailConn, _ := rp.SlotConnection("detail")

	_, hasTarget := detailConn.TargetSlot()
	assert.True(t, hasTarget)
	assert.False(t, detailConn.IsResolved())
	assert.True(t, rootConn.IsResolved())

	provided := rootConn.ProvidedSlots()
	require.Contains(t, provided, "annotation")
	vcs := provided["annotation"].ViewConnections()
	require.Len(t, vcs, 1)
	assert.Equal(t, "list", vcs[0].Name())
}

func TestRequiredSlotNeedsProvider(t *testing.T) {
	b := NewBuilder("required")
	p := b.AddParticle("ShowProducts")
	b.SetParticleSpec(p, showProductsSpec())
	root, _ := p.SlotConnection("root")
	b.ConnectToSlot(root, b.AddSlot("root"))

	r := b.Normalize()
	sc, _ := r.Particle(0).SlotConnection("root")
	assert.False(t, sc.IsResolved())
}

func TestContractViolationsPanic(t *testing.T) {
	b := NewBuilder("contracts")
	p := b.AddParticle("P")

	assert.Panics(t, func() { b.AddConnection(p, "") })

	c := b.AddConnection(p, "a")
	b.ConnectView(c, b.AddView())
	assert.Panics(t, func() { b.ConnectView(c, b.AddView()) })

	sc := b.AddSlotConnection(p, "root")
	b.ConnectToSlot(sc, b.AddSlot("root"))
	assert.Panics(t, func() { b.ConnectToSlot(sc, b.AddSlot("root")) })

	other := NewBuilder("other")
	sc2 := b.AddSlotConnection(p, "side")
	assert.Panics(t, func() { b.ConnectToSlot(sc2, other.AddSlot("side")) })

	self := Endpoint{Particle: "P", Connection: "a"}
	assert.Panics(t, func() { b.AddConstraint(Constraint{From: self, To: self}) })
	assert.Empty(t, b.Constraints())

	frozen := b.Normalize()
	assert.Panics(t, func() { b.SetViewFate(frozen.View(0), FateCreate) })

	var ce *ContractError
	func() {
		defer func() {
			r := recover()
			var ok bool
			ce, ok = r.(*ContractError)
			require.True(t, ok)
		}()
		b.AddParticle("")
	}()
	assert.Equal(t, "AddParticle", ce.Op)
}

func TestCopyIsIndependent(t *testing.T) {
	b := NewBuilder("copy")
	b.AddView()
	r := b.Normalize()

	next := r.Copy()
	next.SetViewFate(next.View(0), FateCreate)
	next.AddView()

	assert.Equal(t, FateUnknown, r.View(0).Fate())
	assert.Len(t, r.Views(), 1)
	assert.Len(t, next.Views(), 2)
}

func TestRecipeIsResolved(t *testing.T) {
	spec := &catalog.ParticleSpec{
		Name: "Reader",
		Connections: []catalog.ConnectionSpec{
			{Name: "input", Direction: types.DirectionIn, Type: types.Entity("Foo")},
		},
	}
	b := NewBuilder("resolved")
	p := b.AddParticle("Reader")
	b.SetParticleSpec(p, spec)
	assert.False(t, b.Normalize().IsResolved())

	input, _ := p.Connection("input")
	v := b.AddView()
	b.SetViewFate(v, FateCreate)
	b.ConnectView(input, v)
	assert.True(t, b.Normalize().IsResolved())

	b.AddConstraint(Constraint{From: Endpoint{"Reader", "input"}, To: Endpoint{"Writer", "output"}})
	assert.False(t, b.Normalize().IsResolved())
}

func TestDirectionCounts(t *testing.T) {
	b := NewBuilder("counts")
	v := b.AddView()
	for i, dir := range []types.Direction{types.DirectionIn, types.DirectionInOut, types.DirectionUnknown} {
		p := b.AddParticle("P")
		c := b.AddConnection(p, string(rune('a'+i)))
		b.SetConnectionDirection(c, dir)
		b.ConnectView(c, v)
	}
	counts := b.View(0).DirectionCounts()
	assert.Equal(t, DirectionCounts{In: 2, Out: 1, InOut: 1, Unknown: 1}, counts)
}

func TestDocument(t *testing.T) {
	b := NewBuilder("doc")
	p := b.AddParticle("ShowProducts")
	b.SetParticleSpec(p, showProductsSpec())
	list, ok := p.Connection("list")
	require.True(t, ok)
	v := b.AddView()
	b.SetViewFate(v, FateCreate)
	b.ConnectView(list, v)
	b.AddParticle("Unknown")

	r := b.Normalize()
	d := r.Document()

	assert.Equal(t, "doc", d.Name)
	assert.Equal(t, r.Hash(), d.Hash)
	assert.False(t, d.Resolved)

	require.Len(t, d.Views, 1)
	assert.Equal(t, "create", d.Views[0].Fate)
	assert.Equal(t, 1, d.Views[0].Readers)
	assert.Equal(t, 0, d.Views[0].Writers)
	assert.NotNil(t, d.Views[0].Tags)

	require.Len(t, d.Particles, 2)
	byName := map[string]ParticleDocument{}
	for _, pd := range d.Particles {
		byName[pd.Name] = pd
	}
	show := byName["ShowProducts"]
	require.Len(t, show.Connections, 1)
	assert.Equal(t, "list", show.Connections[0].Name)
	assert.Equal(t, "in", show.Connections[0].Direction)
	assert.Equal(t, 0, show.Connections[0].View)
	require.Len(t, show.Consumes, 1)
	assert.Equal(t, -1, show.Consumes[0].Slot)

	unknown := byName["Unknown"]
	assert.False(t, unknown.Resolved)
	assert.Empty(t, unknown.Connections)
	assert.NotNil(t, unknown.Connections)
}
