// Package escrow implements the sealed export of the data key.
//
// The engine operator can hand the authority a copy of the symmetric data key
// without ever writing the key in clear outside the process: the key is
// ElGamal-encrypted under the authority's public point on the Ed25519 curve.
// Only the holder of the matching scalar can recover it.
package escrow

import (
	"bytes"

	"github.com/sealbox/sealbox/crypto"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/suites"
	"golang.org/x/xerrors"
)

var suite = suites.MustFind("Ed25519")

// Keypair is an authority recovery keypair.
type Keypair struct {
	secret kyber.Scalar
	public kyber.Point
}

// NewKeypair generates a fresh recovery keypair for an authority.
func NewKeypair() Keypair {
	secret := suite.Scalar().Pick(suite.RandomStream())

	return Keypair{
		secret: secret,
		public: suite.Point().Mul(secret, nil),
	}
}

// Public returns the point to seal data keys with.
func (kp Keypair) Public() kyber.Point {
	return kp.public
}

// SealedKey is a data key ElGamal-encrypted under an authority public key. K
// is the ephemeral Diffie-Hellman point and Cs the blinded key chunks, split
// because a 32-byte key does not fit the embedding capacity of one point.
type SealedKey struct {
	K  kyber.Point
	Cs []kyber.Point
}

// Seal encrypts the data key under the authority public key.
func Seal(key []byte, public kyber.Point) (SealedKey, error) {
	if len(key) != crypto.KeySize {
		return SealedKey{}, xerrors.Errorf("expected a %d-byte key, got %d",
			crypto.KeySize, len(key))
	}

	r := suite.Scalar().Pick(suite.RandomStream())

	K := suite.Point().Mul(r, nil)
	S := suite.Point().Mul(r, public)

	cs := make([]kyber.Point, 0, 2)
	for len(key) > 0 {
		kp := suite.Point().Embed(key, suite.RandomStream())

		cs = append(cs, suite.Point().Add(S, kp))

		chunk := kp.EmbedLen()
		if chunk > len(key) {
			chunk = len(key)
		}

		key = key[chunk:]
	}

	sealed := SealedKey{
		K:  K,
		Cs: cs,
	}

	return sealed, nil
}

// Open recovers the data key with the authority keypair. It fails when the
// sealed key was produced for a different public key.
func (kp Keypair) Open(sealed SealedKey) ([]byte, error) {
	if sealed.K == nil || len(sealed.Cs) == 0 {
		return nil, xerrors.New("sealed key is empty")
	}

	S := suite.Point().Mul(kp.secret, sealed.K)

	key := make([]byte, 0, crypto.KeySize)
	for _, c := range sealed.Cs {
		point := suite.Point().Sub(c, S)

		chunk, err := point.Data()
		if err != nil {
			return nil, xerrors.Errorf("failed to unblind chunk: %v", err)
		}

		key = append(key, chunk...)
	}

	if len(key) != crypto.KeySize {
		return nil, xerrors.Errorf("recovered %d bytes instead of %d",
			len(key), crypto.KeySize)
	}

	return key, nil
}

// Bytes returns the serialized form of the sealed key so it can be handed to
// the authority out of band.
func (sealed SealedKey) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	_, err := sealed.K.MarshalTo(buf)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal K: %v", err)
	}

	for _, c := range sealed.Cs {
		_, err = c.MarshalTo(buf)
		if err != nil {
			return nil, xerrors.Errorf("failed to marshal C: %v", err)
		}
	}

	return buf.Bytes(), nil
}

// FromBytes deserializes a sealed key.
func FromBytes(data []byte) (SealedKey, error) {
	buf := bytes.NewBuffer(data)

	K := suite.Point()

	_, err := K.UnmarshalFrom(buf)
	if err != nil {
		return SealedKey{}, xerrors.Errorf("failed to unmarshal K: %v", err)
	}

	cs := make([]kyber.Point, 0, 2)
	for buf.Len() > 0 {
		c := suite.Point()

		_, err = c.UnmarshalFrom(buf)
		if err != nil {
			return SealedKey{}, xerrors.Errorf("failed to unmarshal C: %v", err)
		}

		cs = append(cs, c)
	}

	sealed := SealedKey{
		K:  K,
		Cs: cs,
	}

	return sealed, nil
}
