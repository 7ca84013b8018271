// This file contains the capability facades handed to the different actors.
// Holding an engine reference is not an authorization: each actor only gets
// the operations of its role, scoped to its own identity where relevant.

package engine

import (
	"context"

	"github.com/sealbox/sealbox/access"
	"github.com/sealbox/sealbox/audit"
	"github.com/sealbox/sealbox/crypto/escrow"
	"go.dedis.ch/kyber/v3"
)

// DataOwner is the capability to manage the data of one owner identity. It
// can upload and revoke only for itself.
type DataOwner struct {
	engine *Engine
	name   string
}

// DataOwner returns the capability of the given owner.
func (e *Engine) DataOwner(name string) DataOwner {
	return DataOwner{
		engine: e,
		name:   Normalize(name),
	}
}

// Name returns the normalized owner identifier.
func (o DataOwner) Name() string {
	return o.name
}

// Upload uploads a payload under the owner's identity.
func (o DataOwner) Upload(ctx context.Context, payload []byte,
	policy access.Policy) (string, error) {

	return o.engine.Upload(ctx, o.name, payload, policy)
}

// Revoke revokes a user from the owner's own data.
func (o DataOwner) Revoke(userID string) error {
	return o.engine.Revoke(o.name, userID)
}

// CloudUser is the capability to request access with one user's own
// attributes. The credential is derived at admission and identifies the user
// if it ever leaks.
type CloudUser struct {
	engine *Engine
	cred   access.Credential
	attrs  access.Attributes
}

// CloudUser admits a user with its attributes and returns its capability.
func (e *Engine) CloudUser(name string, attrs access.Attributes) (CloudUser, error) {
	cred, err := e.registry.Issue(Normalize(name))
	if err != nil {
		return CloudUser{}, err
	}

	user := CloudUser{
		engine: e,
		cred:   cred,
		attrs:  attrs,
	}

	return user, nil
}

// Name returns the normalized user identifier.
func (u CloudUser) Name() string {
	return u.cred.UserID()
}

// Credential returns the user's derived credential.
func (u CloudUser) Credential() access.Credential {
	return u.cred
}

// RequestAccess requests the data of the owner with the user's own
// attributes.
func (u CloudUser) RequestAccess(ctx context.Context, owner string) ([]byte, error) {
	return u.engine.Access(ctx, u.cred.UserID(), u.attrs, owner)
}

// Authority is the capability to manage revocations across all owners and to
// recover the data key through escrow.
type Authority struct {
	engine *Engine
}

// Authority returns the authority capability.
func (e *Engine) Authority() Authority {
	return Authority{engine: e}
}

// Revoke revokes a user under any owner.
func (a Authority) Revoke(owner, userID string) error {
	return a.engine.Revoke(owner, userID)
}

// Unrevoke lifts a revocation under any owner.
func (a Authority) Unrevoke(owner, userID string) error {
	return a.engine.Unrevoke(owner, userID)
}

// Audit returns the full audit trail.
func (a Authority) Audit() ([]audit.Record, error) {
	return a.engine.Audit()
}

// ExportKey returns the data key sealed under the authority's recovery
// public key.
func (a Authority) ExportKey(public kyber.Point) (escrow.SealedKey, error) {
	return a.engine.ExportKey(public)
}

// Auditor is the read-only capability over the audit trail.
type Auditor struct {
	engine *Engine
}

// Auditor returns the auditor capability.
func (e *Engine) Auditor() Auditor {
	return Auditor{engine: e}
}

// Audit returns the full audit trail.
func (a Auditor) Audit() ([]audit.Record, error) {
	return a.engine.Audit()
}

// TraceLeak names the user a leaked credential public point was issued to.
func (a Auditor) TraceLeak(public kyber.Point) (string, error) {
	return a.engine.registry.Trace(public)
}
