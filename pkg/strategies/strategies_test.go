package strategies

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smalls/arcs/pkg/catalog"
	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/stores"
	"github.com/smalls/arcs/pkg/strategizer"
	"github.com/smalls/arcs/pkg/types"
)

var (
	readerSpec = &catalog.ParticleSpec{
		Name: "Reader",
		Connections: []catalog.ConnectionSpec{
			{Name: "input", Direction: types.DirectionIn, Type: types.Entity("Foo")},
		},
	}
	rootSpec = &catalog.ParticleSpec{
		Name: "Root",
		Connections: []catalog.ConnectionSpec{
			{Name: "list", Direction: types.DirectionIn, Type: types.MustParse("[Foo]")},
		},
		Slots: []catalog.SlotSpec{
			{Name: "root", Provides: []catalog.ProvidedSlotSpec{{Name: "detail", Views: []string{"list"}}}},
		},
	}
	detailSpec = &catalog.ParticleSpec{
		Name: "Detail",
		Connections: []catalog.ConnectionSpec{
			{Name: "items", Direction: types.DirectionIn, Type: types.MustParse("[Foo]"), Optional: true},
		},
		Slots: []catalog.SlotSpec{{Name: "detail"}},
	}
)

func generate(t *testing.T, s strategizer.Strategy, parents ...*recipe.Recipe) []*strategizer.Individual {
	t.Helper()
	in := strategizer.Input{Generation: 1}
	for _, r := range parents {
		in.Generated = append(in.Generated, strategizer.NewIndividual(r, 0, nil, "seed"))
	}
	out, err := s.Generate(context.Background(), in, 0)
	require.NoError(t, err)
	return out
}

func mustCatalog(t *testing.T, specs ...*catalog.ParticleSpec) *catalog.Memory {
	t.Helper()
	cat, err := catalog.NewMemory(specs...)
	require.NoError(t, err)
	return cat
}

func withSpecs(specs ...*catalog.ParticleSpec) *recipe.Builder {
	b := recipe.NewBuilder("test")
	for _, spec := range specs {
		b.SetParticleSpec(b.AddParticle(spec.Name), spec)
	}
	return b
}

func TestInitPopulation(t *testing.T) {
	seed := recipe.NewBuilder("seed").Normalize()
	s := NewInitPopulation(seed)

	out, err := s.Generate(context.Background(), strategizer.Input{}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Same(t, seed, out[0].Recipe)
	assert.Nil(t, out[0].Parent())
	assert.Equal(t, NameInitPopulation, out[0].Strategy())

	out, err = s.Generate(context.Background(), strategizer.Input{Generation: 1}, 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCreateViewsResolvesUnboundInput(t *testing.T) {
	seed := withSpecs(readerSpec).Normalize()
	require.False(t, seed.IsResolved())

	out := generate(t, CreateViews(), seed)
	require.Len(t, out, 1)

	r := out[0].Recipe
	require.Len(t, r.Views(), 1)
	v := r.View(0)
	assert.Equal(t, recipe.FateCreate, v.Fate())
	assert.True(t, v.IsResolved())
	assert.Equal(t, "Foo", v.Type().String())
	assert.True(t, r.IsResolved())
	assert.Equal(t, 0.0, out[0].Score)
	assert.Equal(t, NameCreateViews, out[0].Strategy())
}

func TestCreateViewsScoresByDirection(t *testing.T) {
	build := func(dirs ...types.Direction) *recipe.Recipe {
		b := recipe.NewBuilder("dirs")
		v := b.AddView()
		for i, d := range dirs {
			p := b.AddParticle(string(rune('A' + i)))
			c := b.AddConnection(p, "x")
			b.SetConnectionDirection(c, d)
			b.ConnectView(c, v)
		}
		return b.Normalize()
	}

	cases := []struct {
		name  string
		dirs  []types.Direction
		score float64
		skip  bool
	}{
		{name: "readers and writers", dirs: []types.Direction{types.DirectionIn, types.DirectionOut}, score: 1},
		{name: "inout", dirs: []types.Direction{types.DirectionInOut}, score: 1},
		{name: "only readers", dirs: []types.Direction{types.DirectionIn}, score: 0},
		{name: "only writers", dirs: []types.Direction{types.DirectionOut}, score: -1},
		{name: "unknown with missing side", dirs: []types.Direction{types.DirectionIn, types.DirectionUnknown}, skip: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := generate(t, CreateViews(), build(tc.dirs...))
			if tc.skip {
				assert.Empty(t, out)
				return
			}
			require.Len(t, out, 1)
			assert.Equal(t, tc.score, out[0].Score)
			assert.Equal(t, recipe.FateCreate, out[0].Recipe.View(0).Fate())
		})
	}
}

func TestResolveParticleByName(t *testing.T) {
	b := recipe.NewBuilder("names")
	b.AddParticle("Reader")
	b.AddParticle("Ghost")
	seed := b.Normalize()

	out := generate(t, ResolveParticleByName(mustCatalog(t, readerSpec)), seed)
	require.Len(t, out, 1)

	r := out[0].Recipe
	reader, ok := r.FindParticle("Reader")
	require.True(t, ok)
	assert.Same(t, readerSpec, reader.Spec())
	_, hasInput := reader.Connection("input")
	assert.True(t, hasInput)

	ghost, ok := r.FindParticle("Ghost")
	require.True(t, ok)
	assert.Nil(t, ghost.Spec())
	assert.Equal(t, 1.0, out[0].Score)

	// Nothing left to resolve.
	assert.Empty(t, generate(t, ResolveParticleByName(mustCatalog(t, readerSpec)), r))
}

func typedView(tags ...string) *recipe.Recipe {
	b := recipe.NewBuilder("typed")
	v := b.AddView()
	b.SetViewType(v, types.Entity("Foo"))
	b.AddViewTags(v, tags...)
	return b.Normalize()
}

func registry(t *testing.T) *stores.Memory {
	t.Helper()
	m, err := stores.NewMemory(
		stores.Store{ID: "local-tagged", Type: types.Entity("Foo"), Tags: []string{"mine"}},
		stores.Store{ID: "local", Type: types.Entity("Foo")},
		stores.Store{ID: "remote", Type: types.Entity("Foo"), Remote: true},
		stores.Store{ID: "other", Type: types.Entity("Bar")},
	)
	require.NoError(t, err)
	require.NoError(t, m.PutRemoteSlot(stores.RemoteSlot{ID: "root-0", Name: "root", FormFactor: "big"}))
	return m
}

func TestAssignViewsByTagAndType(t *testing.T) {
	reg := registry(t)

	out := generate(t, AssignViewsByTagAndType(reg), typedView())
	require.Len(t, out, 2)
	var ids []string
	for _, ind := range out {
		v := ind.Recipe.View(0)
		ids = append(ids, v.ID())
		assert.Equal(t, recipe.FateUse, v.Fate())
		assert.True(t, v.IsResolved())
		assert.Equal(t, 1.0, ind.Score)
	}
	assert.Equal(t, []string{"local-tagged", "local"}, ids)

	out = generate(t, AssignViewsByTagAndType(reg), typedView("mine"))
	require.Len(t, out, 1)
	assert.Equal(t, "local-tagged", out[0].Recipe.View(0).ID())

	b := typedView().Copy()
	b.SetViewFate(b.View(0), recipe.FateCopy)
	out = generate(t, AssignViewsByTagAndType(reg), b.Normalize())
	require.Len(t, out, 2)
	assert.Equal(t, recipe.FateCopy, out[0].Recipe.View(0).Fate())

	b = typedView().Copy()
	b.SetViewFate(b.View(0), recipe.FateCreate)
	assert.Empty(t, generate(t, AssignViewsByTagAndType(reg), b.Normalize()))
}

func TestAssignRemoteViews(t *testing.T) {
	out := generate(t, AssignRemoteViews(registry(t)), typedView())
	require.Len(t, out, 1)
	v := out[0].Recipe.View(0)
	assert.Equal(t, "remote", v.ID())
	assert.Equal(t, recipe.FateMap, v.Fate())
	assert.True(t, v.IsResolved())
}

func TestAssignRemoteViewsRejectsWriters(t *testing.T) {
	b := recipe.NewBuilder("writer")
	v := b.AddView()
	p := b.AddParticle("W")
	c := b.AddConnection(p, "out")
	b.SetConnectionDirection(c, types.DirectionOut)
	b.SetConnectionType(c, types.Entity("Foo"))
	b.ConnectView(c, v)

	out := generate(t, AssignRemoteViews(registry(t)), b.Normalize())
	require.Len(t, out, 1)
	assert.False(t, out[0].Valid())
}

func TestConvertConstraintsToConnections(t *testing.T) {
	b := recipe.NewBuilder("constraints")
	b.AddConstraint(recipe.Constraint{
		From: recipe.Endpoint{Particle: "Writer", Connection: "output"},
		To:   recipe.Endpoint{Particle: "Reader", Connection: "input"},
	})
	seed := b.Normalize()

	out := generate(t, ConvertConstraintsToConnections(), seed)
	require.Len(t, out, 1)
	r := out[0].Recipe
	assert.Empty(t, r.Constraints())
	require.Len(t, r.Views(), 1)
	require.Len(t, r.Particles(), 2)

	writer, _ := r.FindParticle("Writer")
	reader, _ := r.FindParticle("Reader")
	output, _ := writer.Connection("output")
	input, _ := reader.Connection("input")
	wv, ok := output.View()
	require.True(t, ok)
	rv, ok := input.View()
	require.True(t, ok)
	assert.Equal(t, wv.Index(), rv.Index())
	assert.Equal(t, types.DirectionOut, output.Direction())
	assert.Equal(t, types.DirectionIn, input.Direction())
	assert.Equal(t, 1.0, out[0].Score)

	assert.Empty(t, generate(t, ConvertConstraintsToConnections(), r))
}

func TestConvertConstraintsReusesBoundView(t *testing.T) {
	b := withSpecs(readerSpec)
	reader, _ := b.FindParticle("Reader")
	input, _ := reader.Connection("input")
	v := b.AddView()
	b.ConnectView(input, v)
	b.AddConstraint(recipe.Constraint{
		From: recipe.Endpoint{Particle: "Writer", Connection: "output"},
		To:   recipe.Endpoint{Particle: "Reader", Connection: "input"},
	})

	out := generate(t, ConvertConstraintsToConnections(), b.Normalize())
	require.Len(t, out, 1)
	r := out[0].Recipe
	require.Len(t, r.Views(), 1)
	assert.Len(t, r.View(0).Connections(), 2)
}

func TestConvertConstraintsKeepsConflicts(t *testing.T) {
	b := recipe.NewBuilder("conflict")
	for _, name := range []string{"A", "B"} {
		p := b.AddParticle(name)
		b.ConnectView(b.AddConnection(p, "x"), b.AddView())
	}
	b.AddConstraint(recipe.Constraint{
		From: recipe.Endpoint{Particle: "A", Connection: "x"},
		To:   recipe.Endpoint{Particle: "B", Connection: "x"},
	})

	out := generate(t, ConvertConstraintsToConnections(), b.Normalize())
	require.Len(t, out, 1)
	assert.Len(t, out[0].Recipe.Constraints(), 1)
	assert.Equal(t, 0.0, out[0].Score)
}

func TestMapConsumedSlots(t *testing.T) {
	b := withSpecs(rootSpec, detailSpec)
	root, _ := b.FindParticle("Root")
	detail, _ := b.FindParticle("Detail")
	list, _ := root.Connection("list")
	items, _ := detail.Connection("items")
	shared := b.AddView()
	b.ConnectView(list, shared)
	b.ConnectView(items, shared)
	seed := b.Normalize()

	out := generate(t, MapConsumedSlots(), seed)
	require.Len(t, out, 1)

	r := out[0].Recipe
	consumer, _ := r.FindParticle("Detail")
	sc, ok := consumer.SlotConnection("detail")
	require.True(t, ok)
	target, ok := sc.TargetSlot()
	require.True(t, ok)
	source, ok := target.Source()
	require.True(t, ok)
	assert.Equal(t, "Root", source.Particle().Name())
	assert.True(t, sc.IsValid())
	assert.True(t, sc.IsResolved())
	assert.True(t, r.Valid())
}

func TestMapConsumedSlotsRequiresSharedView(t *testing.T) {
	b := withSpecs(rootSpec, detailSpec)
	root, _ := b.FindParticle("Root")
	list, _ := root.Connection("list")
	shared := b.AddView()
	b.ConnectView(list, shared)
	unconnected := b.Normalize()

	assert.Empty(t, generate(t, MapConsumedSlots(), unconnected))

	b = unconnected.Copy()
	detail, _ := b.FindParticle("Detail")
	items, _ := detail.Connection("items")
	b.ConnectView(items, b.View(0))
	out := generate(t, MapConsumedSlots(), b.Normalize())
	assert.Len(t, out, 1)
}

func TestMapRemoteSlots(t *testing.T) {
	seed := withSpecs(rootSpec).Normalize()

	out := generate(t, MapRemoteSlots(registry(t)), seed)
	require.Len(t, out, 1)

	root, _ := out[0].Recipe.FindParticle("Root")
	sc, _ := root.SlotConnection("root")
	target, ok := sc.TargetSlot()
	require.True(t, ok)
	assert.Equal(t, "root-0", target.ID())
	assert.Equal(t, "big", target.FormFactor())
	assert.True(t, sc.IsResolved())
}

func TestDefault(t *testing.T) {
	set := Default(mustCatalog(t), registry(t))
	var names []string
	for _, s := range set {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		NameInitPopulation,
		NameResolveParticleByName,
		NameCreateViews,
		NameAssignViewsByTagAndType,
		NameConvertConstraints,
		NameMapConsumedSlots,
		NameAssignRemoteViews,
		NameMapRemoteSlots,
	}, names)
}
