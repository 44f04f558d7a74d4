package memory

import (
	"context"
	"fmt"
	"sync"

	"pdfrag/internal/domain"
	"pdfrag/internal/vectorstore"
)

// Store keeps the persisted index in process memory. It is used when no
// index path is configured and in tests.
type Store struct {
	mu       sync.RWMutex
	location string
	index    *vectorstore.Index
}

func NewStore(location string) *Store {
	if location == "" {
		location = "memory"
	}
	return &Store{location: location}
}

func (s *Store) Location() string { return s.location }

func (s *Store) Persist(ctx context.Context, idx *vectorstore.Index) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIndexPersist, err)
	}
	if idx == nil {
		return fmt.Errorf("%w: nil index", domain.ErrIndexPersist)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = idx
	return nil
}

func (s *Store) Load(ctx context.Context) (*vectorstore.Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, s.location)
	}
	return s.index, nil
}
