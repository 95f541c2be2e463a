package stores

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/smalls/arcs/pkg/types"
)

// Memory is an in-memory Registry.
type Memory struct {
	mu     sync.RWMutex
	stores []Store
	byID   map[string]int
	slots  []RemoteSlot
}

// NewMemory creates a registry holding the given stores.
func NewMemory(stores ...Store) (*Memory, error) {
	m := &Memory{byID: make(map[string]int)}
	for _, s := range stores {
		if err := m.PutStore(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// PutStore registers a store, replacing any store with the same id in place.
func (m *Memory) PutStore(s Store) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.Tags = slices.Clone(s.Tags)

	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byID[s.ID]; ok {
		m.stores[i] = s
		return nil
	}
	m.byID[s.ID] = len(m.stores)
	m.stores = append(m.stores, s)
	return nil
}

// PutRemoteSlot registers a remote slot.
func (m *Memory) PutRemoteSlot(s RemoteSlot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if m.slots[i].ID == s.ID {
			m.slots[i] = s
			return nil
		}
	}
	m.slots = append(m.slots, s)
	return nil
}

// FindByType implements Registry.
func (m *Memory) FindByType(_ context.Context, t *types.Type, tag string) ([]Store, error) {
	if t == nil {
		return nil, nil
	}
	key := t.Key()

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Store
	for _, s := range m.stores {
		if s.Type.Key() == key && s.HasTag(tag) {
			out = append(out, s)
		}
	}
	return out, nil
}

// FindByID implements Registry.
func (m *Memory) FindByID(_ context.Context, id string) (Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return Store{}, fmt.Errorf("store %s: %w", id, ErrNotFound)
	}
	return m.stores[i], nil
}

// RemoteSlots implements Registry.
func (m *Memory) RemoteSlots(_ context.Context, name string) ([]RemoteSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RemoteSlot
	for _, s := range m.slots {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out, nil
}

// Stores returns every registered store in registration order.
func (m *Memory) Stores() []Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.stores)
}
