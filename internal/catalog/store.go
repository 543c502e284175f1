package catalog

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps ingested items for the life of the process.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveItems(_ context.Context, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.records = append(s.records, it.Record())
	}
	return nil
}

func (s *MemoryStore) LoadItems(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records), nil
}
