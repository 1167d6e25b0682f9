package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryDocs is an in-process DocumentStore.
type MemoryDocs struct {
	mu   sync.RWMutex
	docs map[string]Record
}

func NewMemoryDocs() *MemoryDocs {
	return &MemoryDocs{docs: map[string]Record{}}
}

func (m *MemoryDocs) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryDocs) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.docs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryDocs) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.docs))
	for _, rec := range m.docs {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryDocs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *MemoryDocs) Close() error { return nil }
