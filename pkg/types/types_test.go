package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnify(t *testing.T) {
	tests := []struct {
		name   string
		a, b   *Type
		want   string
		wantOK bool
	}{
		{name: "same entity", a: Entity("Foo"), b: Entity("Foo"), want: "Foo", wantOK: true},
		{name: "different entity", a: Entity("Foo"), b: Entity("Bar"), wantOK: false},
		{name: "nil left", a: nil, b: Entity("Foo"), want: "Foo", wantOK: true},
		{name: "nil right", a: CollectionOf(Entity("Foo")), b: nil, want: "[Foo]", wantOK: true},
		{name: "collection match", a: CollectionOf(Entity("Foo")), b: CollectionOf(Entity("Foo")), want: "[Foo]", wantOK: true},
		{name: "collection mismatch", a: CollectionOf(Entity("Foo")), b: CollectionOf(Entity("Bar")), wantOK: false},
		{name: "entity vs collection", a: Entity("Foo"), b: CollectionOf(Entity("Foo")), wantOK: false},
		{name: "nested collections", a: MustParse("[[Foo]]"), b: MustParse("[[Foo]]"), want: "[[Foo]]", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Unify(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestParse(t *testing.T) {
	typ, err := Parse("[Product]")
	require.NoError(t, err)
	assert.True(t, typ.IsCollection())
	assert.Equal(t, "Product", typ.Schema())
	assert.Equal(t, "list:Product", typ.Key())

	typ, err = Parse(" Person ")
	require.NoError(t, err)
	assert.Equal(t, "Person", typ.Key())

	for _, bad := range []string{"", "[Foo", "Fo o", "[]"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestDirection(t *testing.T) {
	assert.True(t, DirectionOut.Writes())
	assert.True(t, DirectionInOut.Writes())
	assert.False(t, DirectionIn.Writes())
	assert.True(t, DirectionInOut.Reads())
	assert.NoError(t, DirectionUnknown.Validate())
	assert.Error(t, Direction("sideways").Validate())
}
