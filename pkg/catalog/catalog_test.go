package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smalls/arcs/pkg/types"
)

func TestMemoryLookup(t *testing.T) {
	ctx := context.Background()
	cat, err := NewMemory(
		&ParticleSpec{Name: "ShowProducts", Connections: []ConnectionSpec{
			{Name: "list", Direction: types.DirectionIn, Type: types.MustParse("[Product]")},
		}},
		&ParticleSpec{Name: "Chooser"},
	)
	require.NoError(t, err)

	spec, err := cat.Lookup(ctx, "ShowProducts")
	require.NoError(t, err)
	c, ok := spec.Connection("list")
	require.True(t, ok)
	assert.Equal(t, "[Product]", c.Type.String())

	_, err = cat.Lookup(ctx, "Missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := cat.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Chooser", all[0].Name)
}

func TestParticleSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    ParticleSpec
		wantErr bool
	}{
		{name: "valid", spec: ParticleSpec{Name: "A", Connections: []ConnectionSpec{{Name: "x", Direction: types.DirectionIn}}}},
		{name: "no name", spec: ParticleSpec{}, wantErr: true},
		{name: "duplicate connection", spec: ParticleSpec{Name: "A", Connections: []ConnectionSpec{
			{Name: "x", Direction: types.DirectionIn}, {Name: "x", Direction: types.DirectionOut},
		}}, wantErr: true},
		{name: "bad direction", spec: ParticleSpec{Name: "A", Connections: []ConnectionSpec{{Name: "x", Direction: "up"}}}, wantErr: true},
		{name: "provided slot references unknown view", spec: ParticleSpec{Name: "A", Slots: []SlotSpec{
			{Name: "root", Provides: []ProvidedSlotSpec{{Name: "detail", Views: []string{"nope"}}}},
		}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
