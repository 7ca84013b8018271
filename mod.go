// Package sealbox is a vault for encrypted blobs gated by role-based access
// policies. A data owner uploads a payload together with the set of roles
// allowed to read it; the engine encrypts the payload, stores the ciphertext
// in a blob store, evaluates every access request against the owner's policy
// and the revocation set, and appends each decision to a tamper-evident audit
// trail.
package sealbox

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// PromCollectors exposes the Prometheus collectors created in the different
// packages. The caller is free to register them to one or multiple registries.
var PromCollectors []prometheus.Collector

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(zerolog.InfoLevel)
