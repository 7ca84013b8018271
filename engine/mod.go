// Package engine implements the access control engine at the heart of the
// vault.
//
// The engine binds an uploaded payload to its owner's policy, evaluates every
// access request against that policy and the revocation set, decrypts on
// grant, and appends one audit record per decision. The blob store, the
// metadata store and the audit trail are injected collaborators: the engine
// owns no ambient state besides its per-owner serialization locks.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/sealbox/sealbox"
	"github.com/sealbox/sealbox/access"
	"github.com/sealbox/sealbox/audit"
	"github.com/sealbox/sealbox/crypto"
	"github.com/sealbox/sealbox/crypto/escrow"
	"github.com/sealbox/sealbox/store/blob"
	"github.com/sealbox/sealbox/store/meta"
	"go.dedis.ch/kyber/v3"
	"golang.org/x/xerrors"
)

// defines prometheus metrics
var (
	promUploads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sealbox_uploads_total",
		Help: "total number of successful uploads",
	})

	promDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sealbox_decisions_total",
		Help: "total number of access decisions",
	}, []string{"decision", "reason"})
)

func init() {
	sealbox.PromCollectors = append(sealbox.PromCollectors,
		promUploads, promDecisions)
}

// ConfigError is returned when a request is rejected before any store I/O.
type ConfigError struct {
	Reason string
}

func (e ConfigError) Error() string {
	return "invalid request: " + e.Reason
}

// Engine orchestrates the crypto provider, the policy evaluator, the two
// stores and the audit trail. It is safe for concurrent use.
type Engine struct {
	cipher   crypto.Cipher
	eval     access.Evaluator
	blobs    blob.Store
	meta     *meta.Store
	trail    audit.Trail
	registry *access.Registry
	logger   zerolog.Logger
	clock    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns an engine using the given collaborators.
func New(cipher crypto.Cipher, eval access.Evaluator, blobs blob.Store,
	metaStore *meta.Store, trail audit.Trail) *Engine {

	return &Engine{
		cipher:   cipher,
		eval:     eval,
		blobs:    blobs,
		meta:     metaStore,
		trail:    trail,
		registry: access.NewRegistry(),
		logger:   sealbox.Logger.With().Str("component", "engine").Logger(),
		clock:    time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Upload encrypts the payload and binds it to the owner under the policy. It
// returns the blob store key of the object. The blob write happens before the
// metadata write, so a failed blob write never leaves metadata pointing at a
// missing blob; the opposite failure leaves an orphaned blob, which is
// reported but harmless.
func (e *Engine) Upload(ctx context.Context, owner string, payload []byte,
	policy access.Policy) (string, error) {

	owner = Normalize(owner)

	if owner == "" {
		return "", ConfigError{Reason: "empty owner"}
	}

	if len(payload) == 0 {
		return "", ConfigError{Reason: "empty payload"}
	}

	for _, role := range policy {
		if strings.TrimSpace(role) == "" {
			return "", ConfigError{Reason: "empty role in policy"}
		}
	}

	lock := e.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	envelope, err := e.cipher.Encrypt(payload)
	if err != nil {
		return "", xerrors.Errorf("failed to encrypt payload: %v", err)
	}

	key := owner + "/" + xid.New().String()

	err = e.blobs.Put(ctx, key, envelope)
	if err != nil {
		return "", xerrors.Errorf("failed to store blob: %v", err)
	}

	record := meta.Record{
		ObjectKey: key,
		Policy:    policy,
		CreatedAt: e.clock(),
	}

	err = e.meta.Upsert(owner, record)
	if err != nil {
		// The blob exists but nothing points at it. Report the
		// inconsistency instead of hiding it.
		e.logger.Warn().Str("key", key).Msg("orphaned blob after metadata failure")

		e.append(audit.Record{
			User:     owner,
			Owner:    owner,
			Decision: audit.Denied,
			Reason:   "upload metadata failure",
		})

		return "", xerrors.Errorf("failed to store metadata, blob %q is orphaned: %v", key, err)
	}

	e.append(audit.Record{
		User:     owner,
		Owner:    owner,
		Decision: audit.Granted,
		Reason:   "upload",
	})

	promUploads.Inc()

	e.logger.Info().Str("key", key).Strs("policy", policy).Msg("object uploaded")

	return key, nil
}

// Access evaluates the request of the user against the owner's policy and
// returns the decrypted payload on grant. Every call appends exactly one
// audit record. A denied request never touches the blob store.
func (e *Engine) Access(ctx context.Context, user string,
	attrs access.Attributes, owner string) ([]byte, error) {

	owner = Normalize(owner)
	user = Normalize(user)

	record := audit.Record{
		User:       user,
		Attributes: attrs,
		Owner:      owner,
	}

	objMeta, err := e.meta.Get(owner)
	if err != nil {
		if xerrors.Is(err, meta.ErrUnknownOwner) {
			return nil, e.deny(record, access.ReasonUnknownOwner)
		}

		e.audit(record, audit.Denied, "storage unavailable")

		return nil, xerrors.Errorf("failed to read metadata: %v", err)
	}

	revoked, err := e.meta.IsRevoked(owner, user)
	if err != nil {
		e.audit(record, audit.Denied, "storage unavailable")

		return nil, xerrors.Errorf("failed to read revocations: %v", err)
	}

	err = e.eval.Evaluate(attrs, objMeta.Policy, revoked)
	if err != nil {
		denied := access.DeniedError{}
		if xerrors.As(err, &denied) {
			return nil, e.deny(record, denied.Reason)
		}

		return nil, xerrors.Errorf("failed to evaluate policy: %v", err)
	}

	envelope, err := e.blobs.Get(ctx, objMeta.ObjectKey)
	if err != nil {
		if xerrors.Is(err, blob.ErrNotFound) {
			return nil, e.deny(record, "object not found")
		}

		e.audit(record, audit.Denied, "storage unavailable")

		return nil, xerrors.Errorf("failed to fetch blob: %v", err)
	}

	payload, err := e.cipher.Decrypt(envelope)
	if err != nil {
		// Raw ciphertext never leaves the engine: a failed authentication
		// is reported as a denial.
		e.logger.Warn().Str("key", objMeta.ObjectKey).Msg("envelope failed authentication")

		return nil, e.deny(record, access.ReasonIntegrity)
	}

	e.audit(record, audit.Granted, "")

	return payload, nil
}

// Revoke denies the user every future access to the owner's data until an
// explicit un-revocation. Revoking twice is a no-op.
func (e *Engine) Revoke(owner, userID string) error {
	owner = Normalize(owner)
	userID = Normalize(userID)

	err := e.meta.Revoke(owner, userID)
	if err != nil {
		return xerrors.Errorf("failed to revoke: %v", err)
	}

	e.append(audit.Record{
		User:     userID,
		Owner:    owner,
		Decision: audit.Denied,
		Reason:   "revocation added",
	})

	e.logger.Info().Str("owner", owner).Str("user", userID).Msg("user revoked")

	return nil
}

// Unrevoke lifts a revocation. It is the explicit counterpart of Revoke and
// is idempotent as well.
func (e *Engine) Unrevoke(owner, userID string) error {
	owner = Normalize(owner)
	userID = Normalize(userID)

	err := e.meta.Unrevoke(owner, userID)
	if err != nil {
		return xerrors.Errorf("failed to unrevoke: %v", err)
	}

	e.append(audit.Record{
		User:     userID,
		Owner:    owner,
		Decision: audit.Granted,
		Reason:   "revocation lifted",
	})

	return nil
}

// Audit returns the full ordered audit trail.
func (e *Engine) Audit() ([]audit.Record, error) {
	records, err := e.trail.ReadAll()
	if err != nil {
		return nil, xerrors.Errorf("failed to read audit trail: %v", err)
	}

	return records, nil
}

// ExportKey returns the data key sealed under the given recovery public key,
// when the cipher supports exporting it. The key never leaves in clear.
func (e *Engine) ExportKey(public kyber.Point) (escrow.SealedKey, error) {
	exporter, ok := e.cipher.(interface{ Key() []byte })
	if !ok {
		return escrow.SealedKey{}, xerrors.New("cipher does not support key export")
	}

	sealed, err := escrow.Seal(exporter.Key(), public)
	if err != nil {
		return escrow.SealedKey{}, xerrors.Errorf("failed to seal key: %v", err)
	}

	return sealed, nil
}

// Normalize maps an identifier to its canonical form, so lookups are
// case-insensitive while storage stays consistent.
func Normalize(ident string) string {
	return strings.ToLower(strings.TrimSpace(ident))
}

// deny appends the denial to the trail and returns the typed error given to
// the caller.
func (e *Engine) deny(record audit.Record, reason string) error {
	e.audit(record, audit.Denied, reason)

	return access.DeniedError{Reason: reason}
}

func (e *Engine) audit(record audit.Record, decision audit.Decision, reason string) {
	record.Decision = decision
	record.Reason = reason

	e.append(record)

	promDecisions.WithLabelValues(string(decision), reason).Inc()
}

func (e *Engine) append(record audit.Record) {
	record.Timestamp = e.clock()

	_, err := e.trail.Append(record)
	if err != nil {
		// The trail is the non-repudiation backbone: a failed append is
		// loud in the logs even though the decision stands.
		e.logger.Error().Err(err).Msg("failed to append audit record")
	}
}

func (e *Engine) ownerLock(owner string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, found := e.locks[owner]
	if !found {
		lock = &sync.Mutex{}
		e.locks[owner] = lock
	}

	return lock
}
