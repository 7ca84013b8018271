// Package fs implements a blob store on a local directory, for single-node
// deployments and for the command line tool.
//
// The <owner>/<object-identifier> key shape maps directly to a directory per
// owner. Writes go through a temporary file and a rename, so a reader never
// observes a half-written envelope.
package fs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/xid"
	"github.com/sealbox/sealbox/store/blob"
	"golang.org/x/xerrors"
)

// Store implements a blob store under a root directory.
//
// - implements blob.Store
type Store struct {
	root string
}

// NewStore returns a store writing under the root directory, creating it if
// needed.
func NewStore(root string) (*Store, error) {
	err := os.MkdirAll(root, 0700)
	if err != nil {
		return nil, xerrors.Errorf("failed to create root: %v", err)
	}

	return &Store{root: root}, nil
}

// Put implements blob.Store.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	path := filepath.Join(s.root, filepath.FromSlash(key))

	err := os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		return blob.UnavailableError{Cause: err}
	}

	tmp := path + "." + xid.New().String()

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return blob.UnavailableError{Cause: err}
	}

	err = os.Rename(tmp, path)
	if err != nil {
		os.Remove(tmp)

		return blob.UnavailableError{Cause: err}
	}

	return nil
}

// Get implements blob.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, blob.ErrNotFound
		}

		return nil, blob.UnavailableError{Cause: err}
	}

	return data, nil
}
