package fake

import (
	"context"
	"sync"

	"github.com/sealbox/sealbox/store/blob"
)

// BlobStore is a fake in-memory blob store recording its calls.
//
// - implements blob.Store
type BlobStore struct {
	sync.Mutex

	objects map[string][]byte
	ErrPut  error
	ErrGet  error

	// Puts and Gets record the keys of the calls, so a test can assert that
	// a denied request never reached the store.
	Puts Call
	Gets Call
}

// NewBlobStore creates a new empty fake blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		objects: make(map[string][]byte),
	}
}

// NewBadBlobStore creates a fake blob store that always fails.
func NewBadBlobStore() *BlobStore {
	store := NewBlobStore()
	store.ErrPut = blob.UnavailableError{Cause: fakeErr}
	store.ErrGet = blob.UnavailableError{Cause: fakeErr}

	return store
}

// Put implements blob.Store.
func (s *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	s.Lock()
	defer s.Unlock()

	s.Puts.Add(key)

	if s.ErrPut != nil {
		return s.ErrPut
	}

	s.objects[key] = append([]byte{}, data...)

	return nil
}

// Get implements blob.Store.
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	s.Gets.Add(key)

	if s.ErrGet != nil {
		return nil, s.ErrGet
	}

	data, found := s.objects[key]
	if !found {
		return nil, blob.ErrNotFound
	}

	return append([]byte{}, data...), nil
}

// Corrupt flips a bit of the object stored under the key.
func (s *BlobStore) Corrupt(key string) {
	s.Lock()
	defer s.Unlock()

	data, found := s.objects[key]
	if found {
		data[len(data)/2] ^= 0x01
	}
}
