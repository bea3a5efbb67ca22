package prefs

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore keeps preferences in process memory.
type MemoryStore struct {
	observers

	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns a store seeded with initial.
func NewMemoryStore(initial map[string]string) *MemoryStore {
	values := make(map[string]string, len(initial))
	maps.Copy(values, initial)
	return &MemoryStore{values: values}
}

func (m *MemoryStore) Get(_ context.Context, name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, name, value string) error {
	m.mu.Lock()
	m.values[name] = value
	m.mu.Unlock()

	m.notify(Change{Name: name, Value: value})
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	_, existed := m.values[name]
	delete(m.values, name)
	m.mu.Unlock()

	if existed {
		m.notify(Change{Name: name, Deleted: true})
	}
	return nil
}

func (m *MemoryStore) All(context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values), nil
}
