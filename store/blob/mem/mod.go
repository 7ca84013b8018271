// Package mem implements an in-memory blob store, used by the tests and by
// deployments that do not need durability.
package mem

import (
	"context"
	"sync"

	"github.com/sealbox/sealbox/store/blob"
)

// NewStore returns a new empty in-memory blob store.
func NewStore() *Store {
	return &Store{
		objects: make(map[string][]byte),
	}
}

// Store implements an in-memory blob store.
//
// - implements blob.Store
type Store struct {
	sync.RWMutex
	objects map[string][]byte
}

// Put implements blob.Store. It keeps a private copy of the data.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	s.Lock()
	s.objects[key] = append([]byte{}, data...)
	s.Unlock()

	return nil
}

// Get implements blob.Store. It returns a copy of the stored data.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.RLock()
	data, found := s.objects[key]
	s.RUnlock()

	if !found {
		return nil, blob.ErrNotFound
	}

	return append([]byte{}, data...), nil
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.RLock()
	defer s.RUnlock()

	return len(s.objects)
}
