package fake

import (
	"sync"

	"github.com/sealbox/sealbox/audit"
)

// Trail is a fake in-memory audit trail.
//
// - implements audit.Trail
type Trail struct {
	sync.Mutex

	records   []audit.Record
	ErrAppend error
	ErrRead   error
}

// NewTrail creates a new empty fake trail.
func NewTrail() *Trail {
	return &Trail{}
}

// NewBadTrail creates a fake trail that always fails.
func NewBadTrail() *Trail {
	return &Trail{
		ErrAppend: fakeErr,
		ErrRead:   fakeErr,
	}
}

// Append implements audit.Trail.
func (t *Trail) Append(record audit.Record) (uint64, error) {
	t.Lock()
	defer t.Unlock()

	if t.ErrAppend != nil {
		return 0, t.ErrAppend
	}

	record.Seq = uint64(len(t.records) + 1)
	t.records = append(t.records, record)

	return record.Seq, nil
}

// ReadAll implements audit.Trail.
func (t *Trail) ReadAll() ([]audit.Record, error) {
	t.Lock()
	defer t.Unlock()

	if t.ErrRead != nil {
		return nil, t.ErrRead
	}

	return append([]audit.Record{}, t.records...), nil
}
