// Package audit defines the append-only trail of access decisions.
//
// Every access attempt produces exactly one record, granted or denied, so
// there is no silent denial. Records are immutable once appended and totally
// ordered by their sequence number; the timestamp is informational only.
package audit

import (
	"time"

	"github.com/sealbox/sealbox/access"
)

// Decision is the outcome of an access attempt.
type Decision string

const (
	// Granted means the payload was returned to the requester.
	Granted Decision = "Granted"

	// Denied means it was not, for the reason carried by the record.
	Denied Decision = "Denied"
)

// Record is one immutable entry of the trail.
type Record struct {
	Seq        uint64            `json:"seq"`
	User       string            `json:"user"`
	Attributes access.Attributes `json:"attributes,omitempty"`
	Owner      string            `json:"owner"`
	Decision   Decision          `json:"decision"`
	Reason     string            `json:"reason,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Trail is an append-only, totally ordered sequence of records.
type Trail interface {
	// Append stamps the record with the next sequence number and stores it.
	// Concurrent appends are linearized: all readers observe the same total
	// order.
	Append(record Record) (uint64, error)

	// ReadAll returns every record in append order.
	ReadAll() ([]Record, error)
}
