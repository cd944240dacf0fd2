package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a process-local EmbeddingStore.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[int64]Embedding
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[int64]Embedding)}
}

func (m *MemoryStore) Get(ctx context.Context, key int64) (*Embedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	clone := e.Clone()
	return &clone, nil
}

func (m *MemoryStore) GetAll(ctx context.Context) ([]Embedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]Embedding, 0, len(m.items))
	for _, e := range m.items {
		all = append(all, e.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].IdentityKey < all[j].IdentityKey })
	return all, nil
}

func (m *MemoryStore) Put(ctx context.Context, e Embedding) error {
	if err := e.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[e.IdentityKey]; ok {
		return ErrExists
	}
	m.items[e.IdentityKey] = e.Clone()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.items[key]
	delete(m.items, key)
	return ok, nil
}
