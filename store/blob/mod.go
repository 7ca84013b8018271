// Package blob defines the boundary to the remote object store holding the
// encrypted payloads.
//
// The store only ever sees ciphertext envelopes. Keys are namespaced as
// <owner>/<object-identifier>. Implementations may block on I/O and must
// honor the context deadline; a timeout surfaces as an UnavailableError.
package blob

import (
	"context"
	"fmt"

	"golang.org/x/xerrors"
)

// ErrNotFound is returned by Get when no object lives under the key.
var ErrNotFound = xerrors.New("object not found")

// UnavailableError is returned when the store cannot be reached or timed
// out. The caller may retry; the engine never does on its own.
type UnavailableError struct {
	Cause error
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("blob store unavailable: %v", e.Cause)
}

// Unwrap returns the transport error.
func (e UnavailableError) Unwrap() error {
	return e.Cause
}

// Store is a content store reachable by key.
type Store interface {
	// Put writes the data under the key, overwriting a previous object.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the data stored under the key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}
