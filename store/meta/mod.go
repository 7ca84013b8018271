// Package meta implements the metadata store of the vault: the per-owner
// object record and the revocation set, both persisted in the key/value
// database.
//
// The layout is one record per owner, so an upload replaces the previous
// record of that owner (last-write-wins, serialized by the engine). A record
// never points at a blob that was not written first.
package meta

import (
	"encoding/json"
	"time"

	"github.com/sealbox/sealbox/access"
	"github.com/sealbox/sealbox/store/kv"
	"golang.org/x/xerrors"
)

// ErrUnknownOwner is returned when no record exists for an owner.
var ErrUnknownOwner = xerrors.New("unknown owner")

var (
	recordBucket     = []byte("records")
	revocationBucket = []byte("revocations")
)

// Record binds an owner to its current object and policy.
type Record struct {
	ObjectKey string        `json:"object_key"`
	Policy    access.Policy `json:"policy"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store persists owner records and the revocation set.
type Store struct {
	db kv.DB
}

// NewStore returns a metadata store on the database, creating the buckets if
// they do not exist yet.
func NewStore(db kv.DB) (*Store, error) {
	for _, bucket := range [][]byte{recordBucket, revocationBucket} {
		err := db.Update(bucket, func(kv.Bucket) error { return nil })
		if err != nil {
			return nil, xerrors.Errorf("failed to create bucket: %v", err)
		}
	}

	return &Store{db: db}, nil
}

// Upsert writes the record of the owner, replacing a previous one.
func (s *Store) Upsert(owner string, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return xerrors.Errorf("failed to marshal record: %v", err)
	}

	err = s.db.Update(recordBucket, func(b kv.Bucket) error {
		return b.Set([]byte(owner), data)
	})
	if err != nil {
		return xerrors.Errorf("failed to write record: %v", err)
	}

	return nil
}

// Get returns the record of the owner, or ErrUnknownOwner.
func (s *Store) Get(owner string) (Record, error) {
	var record Record

	err := s.db.View(recordBucket, func(b kv.Bucket) error {
		data := b.Get([]byte(owner))
		if data == nil {
			return ErrUnknownOwner
		}

		return json.Unmarshal(data, &record)
	})
	if err != nil {
		if xerrors.Is(err, ErrUnknownOwner) {
			return Record{}, ErrUnknownOwner
		}

		return Record{}, xerrors.Errorf("failed to read record: %v", err)
	}

	return record, nil
}

// Revoke adds the user to the revocation set of the owner. Revoking twice is
// a no-op.
func (s *Store) Revoke(owner, userID string) error {
	err := s.db.Update(revocationBucket, func(b kv.Bucket) error {
		return b.Set(revocationKey(owner, userID), []byte{1})
	})
	if err != nil {
		return xerrors.Errorf("failed to write revocation: %v", err)
	}

	return nil
}

// Unrevoke removes the user from the revocation set of the owner. It is the
// only way a revocation ever goes away.
func (s *Store) Unrevoke(owner, userID string) error {
	err := s.db.Update(revocationBucket, func(b kv.Bucket) error {
		return b.Delete(revocationKey(owner, userID))
	})
	if err != nil {
		return xerrors.Errorf("failed to delete revocation: %v", err)
	}

	return nil
}

// IsRevoked returns true when the user is revoked under the owner.
func (s *Store) IsRevoked(owner, userID string) (bool, error) {
	revoked := false

	err := s.db.View(revocationBucket, func(b kv.Bucket) error {
		revoked = b.Get(revocationKey(owner, userID)) != nil

		return nil
	})
	if err != nil {
		return false, xerrors.Errorf("failed to read revocation: %v", err)
	}

	return revoked, nil
}

// revocationKey builds the key of a (owner, user) pair. The NUL separator
// cannot appear in a normalized owner identifier.
func revocationKey(owner, userID string) []byte {
	return []byte(owner + "\x00" + userID)
}
