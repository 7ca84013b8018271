package fake

import (
	"sort"
	"sync"

	"github.com/sealbox/sealbox/store/kv"
)

// DB is a fake in-memory implementation of a key/value database.
//
// - implements kv.DB
type DB struct {
	sync.Mutex

	buckets   map[string]*bucket
	ErrView   error
	ErrUpdate error
}

// NewDB creates a new empty in-memory database.
func NewDB() *DB {
	return &DB{
		buckets: make(map[string]*bucket),
	}
}

// NewBadDB creates a database that always returns an error.
func NewBadDB() *DB {
	db := NewDB()
	db.ErrView = fakeErr
	db.ErrUpdate = fakeErr

	return db
}

// View implements kv.DB.
func (db *DB) View(name []byte, fn func(kv.Bucket) error) error {
	if db.ErrView != nil {
		return db.ErrView
	}

	db.Lock()
	defer db.Unlock()

	b, found := db.buckets[string(name)]
	if !found {
		return fakeErr
	}

	return fn(b)
}

// Update implements kv.DB.
func (db *DB) Update(name []byte, fn func(kv.Bucket) error) error {
	if db.ErrUpdate != nil {
		return db.ErrUpdate
	}

	db.Lock()
	defer db.Unlock()

	b, found := db.buckets[string(name)]
	if !found {
		b = &bucket{values: make(map[string][]byte)}
		db.buckets[string(name)] = b
	}

	return fn(b)
}

// Close implements kv.DB.
func (db *DB) Close() error {
	return nil
}

// bucket is the in-memory bucket of the fake database.
//
// - implements kv.Bucket
type bucket struct {
	values map[string][]byte
	seq    uint64
}

func (b *bucket) Get(key []byte) []byte {
	return b.values[string(key)]
}

func (b *bucket) Set(key, value []byte) error {
	b.values[string(key)] = append([]byte{}, value...)

	return nil
}

func (b *bucket) Delete(key []byte) error {
	delete(b.values, string(key))

	return nil
}

func (b *bucket) NextSequence() (uint64, error) {
	b.seq++

	return b.seq, nil
}

func (b *bucket) ForEach(fn func(k, v []byte) error) error {
	keys := make([]string, 0, len(b.values))
	for key := range b.values {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		err := fn([]byte(key), b.values[key])
		if err != nil {
			return err
		}
	}

	return nil
}

func (b *bucket) Scan(prefix []byte, fn func(k, v []byte) error) error {
	return b.ForEach(func(k, v []byte) error {
		if len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix) {
			return fn(k, v)
		}

		return nil
	})
}
