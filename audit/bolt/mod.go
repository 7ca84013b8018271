// Package bolt implements the audit trail on the key/value database.
//
// Each record is stored under its big-endian sequence number, assigned by
// the bucket sequence inside the write transaction. The database serializes
// write transactions, which makes the append linearizable for free.
package bolt

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/sealbox/sealbox/audit"
	"github.com/sealbox/sealbox/store/kv"
	"golang.org/x/xerrors"
)

var trailBucket = []byte("audit")

// Trail is an audit trail persisted in a database bucket.
//
// - implements audit.Trail
type Trail struct {
	db    kv.DB
	clock func() time.Time
}

// NewTrail returns a trail appending to the database.
func NewTrail(db kv.DB) (*Trail, error) {
	err := db.Update(trailBucket, func(kv.Bucket) error { return nil })
	if err != nil {
		return nil, xerrors.Errorf("failed to create bucket: %v", err)
	}

	trail := &Trail{
		db:    db,
		clock: time.Now,
	}

	return trail, nil
}

// Append implements audit.Trail. It assigns the next sequence number and a
// timestamp to the record and stores it.
func (t *Trail) Append(record audit.Record) (uint64, error) {
	var seq uint64

	err := t.db.Update(trailBucket, func(b kv.Bucket) error {
		var err error

		seq, err = b.NextSequence()
		if err != nil {
			return xerrors.Errorf("failed to get sequence: %v", err)
		}

		record.Seq = seq
		if record.Timestamp.IsZero() {
			record.Timestamp = t.clock()
		}

		data, err := json.Marshal(record)
		if err != nil {
			return xerrors.Errorf("failed to marshal record: %v", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		return b.Set(key, data)
	})
	if err != nil {
		return 0, xerrors.Errorf("failed to append record: %v", err)
	}

	return seq, nil
}

// ReadAll implements audit.Trail. It returns every record in sequence order,
// which is the bucket key order.
func (t *Trail) ReadAll() ([]audit.Record, error) {
	records := []audit.Record{}

	err := t.db.View(trailBucket, func(b kv.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			var record audit.Record

			err := json.Unmarshal(v, &record)
			if err != nil {
				return xerrors.Errorf("failed to unmarshal record: %v", err)
			}

			records = append(records, record)

			return nil
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to read trail: %v", err)
	}

	return records, nil
}
