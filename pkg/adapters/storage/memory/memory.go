package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mardens/potracker/pkg/domain"
	"github.com/mardens/potracker/pkg/ports"
)

// InMemoryChangeStorage implements ChangeStorage using an in-memory map
type InMemoryChangeStorage struct {
	changes  map[domain.Kind]domain.Change
	revision int64
	mu       sync.RWMutex
}

// NewInMemoryChangeStorage creates a new in-memory change storage
func NewInMemoryChangeStorage() *InMemoryChangeStorage {
	return &InMemoryChangeStorage{
		changes: make(map[domain.Kind]domain.Change),
	}
}

// Save records change as the latest for its kind
func (s *InMemoryChangeStorage) Save(ctx context.Context, change *domain.Change) error {
	if change == nil {
		return fmt.Errorf("change is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// copy to avoid mutations by the caller
	s.changes[change.Kind] = *change
	if change.Revision > s.revision {
		s.revision = change.Revision
	}
	return nil
}

// Latest returns the latest change recorded for kind
func (s *InMemoryChangeStorage) Latest(ctx context.Context, kind domain.Kind) (*domain.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	change, ok := s.changes[kind]
	if !ok {
		return nil, fmt.Errorf("no change for %s: %w", kind, ports.ErrNotFound)
	}
	return &change, nil
}

// List returns the latest change for every kind that has one, in kind order
func (s *InMemoryChangeStorage) List(ctx context.Context) ([]*domain.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes := make([]*domain.Change, 0, len(s.changes))
	for _, kind := range domain.Kinds() {
		if change, ok := s.changes[kind]; ok {
			changes = append(changes, &change)
		}
	}
	return changes, nil
}

// NextRevision returns the next revision number
func (s *InMemoryChangeStorage) NextRevision(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revision++
	return s.revision, nil
}
