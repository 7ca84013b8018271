// This file contains the per-user credentials handed to cloud users, and the
// registry that traces a leaked credential back to the user it was issued to.

package access

import (
	"sync"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/suites"
	"golang.org/x/xerrors"
)

var suite = suites.MustFind("Ed25519")

// Credential is the capability material derived for a cloud user when it is
// admitted to the system. It is derived on issuance and never persisted in
// the metadata store.
type Credential struct {
	userID string
	secret kyber.Scalar
	public kyber.Point
}

// UserID returns the identifier of the user the credential was issued to.
func (c Credential) UserID() string {
	return c.userID
}

// Public returns the public point of the credential.
func (c Credential) Public() kyber.Point {
	return c.public
}

// Registry issues credentials and remembers which public point belongs to
// which user, so that an auditor can name the user behind a leaked
// credential.
type Registry struct {
	sync.Mutex
	issued map[string]string
}

// NewRegistry returns an empty credential registry.
func NewRegistry() *Registry {
	return &Registry{
		issued: make(map[string]string),
	}
}

// Issue derives a fresh credential for the user and records its public point.
func (r *Registry) Issue(userID string) (Credential, error) {
	secret := suite.Scalar().Pick(suite.RandomStream())
	public := suite.Point().Mul(secret, nil)

	data, err := public.MarshalBinary()
	if err != nil {
		return Credential{}, xerrors.Errorf("failed to marshal point: %v", err)
	}

	cred := Credential{
		userID: userID,
		secret: secret,
		public: public,
	}

	r.Lock()
	r.issued[string(data)] = userID
	r.Unlock()

	return cred, nil
}

// Trace returns the user a public point was issued to, or an error when the
// point is unknown to the registry.
func (r *Registry) Trace(public kyber.Point) (string, error) {
	data, err := public.MarshalBinary()
	if err != nil {
		return "", xerrors.Errorf("failed to marshal point: %v", err)
	}

	r.Lock()
	userID, found := r.issued[string(data)]
	r.Unlock()

	if !found {
		return "", xerrors.New("credential is not issued by this registry")
	}

	return userID, nil
}
