package registry

import (
	"context"
	"fmt"
	"sync"

	id "capcall/pkg/domain"
	"capcall/pkg/platform/sentinel"
)

// InMemoryStore keeps registry records in process.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.RegistryID]Registry
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.RegistryID]Registry)}
}

func (s *InMemoryStore) Create(_ context.Context, record *Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return fmt.Errorf("registry %s: %w", record.ID, sentinel.ErrConflict)
	}
	s.records[record.ID] = *record
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, registryID id.RegistryID) (*Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[registryID]
	if !ok {
		return nil, fmt.Errorf("registry %s: %w", registryID, sentinel.ErrNotFound)
	}
	return &record, nil
}
