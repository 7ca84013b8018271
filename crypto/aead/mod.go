// Package aead implements the payload cipher with AES-256-GCM.
//
// An envelope is the concatenation of a 12-byte random nonce and the GCM
// output, which ends with a 16-byte authentication tag. The nonce is drawn
// from crypto/rand for every encryption so that it never repeats for the
// key, and the envelope is self-describing given those two fixed lengths.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"github.com/sealbox/sealbox/crypto"
	"golang.org/x/xerrors"
)

const (
	// NonceSize is the size in bytes of the random nonce prepended to every
	// envelope.
	NonceSize = 12

	// TagSize is the size in bytes of the GCM authentication tag at the end
	// of every envelope.
	TagSize = 16
)

// Cipher is an AES-256-GCM cipher holding a single immutable data key.
//
// - implements crypto.Cipher
type Cipher struct {
	key  []byte
	aead cipher.AEAD
}

// NewCipher returns a cipher keyed with a fresh random key. It fails only
// when the entropy source does, which is fatal for the caller.
func NewCipher() (*Cipher, error) {
	key := make([]byte, crypto.KeySize)

	_, err := rand.Read(key)
	if err != nil {
		return nil, xerrors.Errorf("failed to generate key: %v", err)
	}

	return fromKey(key)
}

// NewCipherFromSecret returns a cipher whose key is derived from the operator
// secret with a one-way hash, so the same secret always yields the same key.
func NewCipherFromSecret(secret string) (*Cipher, error) {
	key := sha256.Sum256([]byte(secret))

	return fromKey(key[:])
}

func fromKey(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, xerrors.Errorf("failed to create cipher: %v", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, xerrors.Errorf("failed to create GCM: %v", err)
	}

	c := &Cipher{
		key:  key,
		aead: aead,
	}

	return c, nil
}

// Encrypt implements crypto.Cipher. It seals the plaintext under a fresh
// random nonce and returns nonce || ciphertext || tag.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)

	_, err := rand.Read(nonce)
	if err != nil {
		return nil, xerrors.Errorf("failed to generate nonce: %v", err)
	}

	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt implements crypto.Cipher. It opens the envelope and returns the
// plaintext, or a typed error when the envelope is malformed or fails
// authentication.
func (c *Cipher) Decrypt(envelope []byte) ([]byte, error) {
	if len(envelope) < NonceSize+TagSize {
		return nil, crypto.FormatError{Len: len(envelope)}
	}

	plaintext, err := c.aead.Open(nil, envelope[:NonceSize], envelope[NonceSize:], nil)
	if err != nil {
		return nil, crypto.IntegrityError{}
	}

	return plaintext, nil
}

// Key returns a copy of the data key so that it can be put in escrow. The
// copy never reaches the metadata store or the audit trail.
func (c *Cipher) Key() []byte {
	return append([]byte{}, c.key...)
}
