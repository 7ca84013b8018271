// Package crypto defines the primitives to protect the confidentiality and
// the integrity of the payloads stored in the blob store.
//
// The cipher is deliberately symmetric and authenticated: the blob store is
// not trusted to return the bytes it was given, so a plain cipher mode is not
// enough. Decryption must fail loudly on any alteration instead of returning
// garbage plaintext.
package crypto

import "fmt"

// KeySize is the size in bytes of the symmetric data key.
const KeySize = 32

// Cipher provides authenticated encryption of payloads. The underlying key is
// immutable after creation so that a cipher is safe for concurrent use.
type Cipher interface {
	// Encrypt seals the plaintext into a self-describing envelope. The
	// envelope carries a fresh random nonce so that two encryptions of the
	// same plaintext yield different envelopes.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt opens an envelope and returns the plaintext. It returns an
	// IntegrityError when the authentication tag does not verify, and a
	// FormatError when the envelope is too short to be valid. It never
	// returns partial plaintext.
	Decrypt(envelope []byte) ([]byte, error)
}

// IntegrityError is returned when an envelope fails authentication, which
// means the ciphertext has been altered or the key is wrong.
type IntegrityError struct{}

func (e IntegrityError) Error() string {
	return "envelope authentication failed"
}

// FormatError is returned when an envelope is malformed and cannot even be
// split into its nonce and ciphertext parts.
type FormatError struct {
	Len int
}

func (e FormatError) Error() string {
	return fmt.Sprintf("malformed envelope of %d bytes", e.Len)
}
