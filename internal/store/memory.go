package store

import (
	"context"
	"sync"
)

// MemoryStore keeps payloads in memory. Payloads are stored in encoded form
// so callers never share maps with the store, and values behave exactly as
// they would after a round trip through a persistent adapter.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Read returns a copy of the payload for id.
func (m *MemoryStore) Read(ctx context.Context, id string) (map[string]any, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	b, ok := m.data[id]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(id)
	}
	return decode(id, b)
}

// Write stores a copy of data.
func (m *MemoryStore) Write(ctx context.Context, id string, data map[string]any) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	b, err := encode(id, data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[id] = b
	m.mu.Unlock()
	return nil
}

// Delete removes id.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; !ok {
		return notFound(id)
	}
	delete(m.data, id)
	return nil
}

// List returns copies of every payload sorted by id.
func (m *MemoryStore) List(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]Record, 0, len(m.data))
	for id, b := range m.data {
		data, err := decode(id, b)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{ID: id, Data: data})
	}
	sortRecords(records)
	return records, nil
}

// Len returns the number of stored payloads.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
