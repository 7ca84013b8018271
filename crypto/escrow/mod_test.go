package escrow

import (
	"crypto/rand"
	"testing"

	"github.com/sealbox/sealbox/crypto"
	"github.com/stretchr/testify/require"
)

func TestSeal_RoundTrip(t *testing.T) {
	authority := NewKeypair()

	key := make([]byte, crypto.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	sealed, err := Seal(key, authority.Public())
	require.NoError(t, err)
	require.Len(t, sealed.Cs, 2)

	recovered, err := authority.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, key, recovered)
}

func TestSeal_BadKeySize(t *testing.T) {
	authority := NewKeypair()

	_, err := Seal([]byte("too short"), authority.Public())
	require.EqualError(t, err, "expected a 32-byte key, got 9")
}

func TestOpen_WrongKeypair(t *testing.T) {
	authority := NewKeypair()
	intruder := NewKeypair()

	key := make([]byte, crypto.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	sealed, err := Seal(key, authority.Public())
	require.NoError(t, err)

	recovered, err := intruder.Open(sealed)
	if err == nil {
		// Unblinding with the wrong scalar can still yield embeddable
		// points, but never the original key.
		require.NotEqual(t, key, recovered)
	}

	_, err = intruder.Open(SealedKey{})
	require.EqualError(t, err, "sealed key is empty")
}

func TestSealedKey_Serialization(t *testing.T) {
	authority := NewKeypair()

	key := make([]byte, crypto.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	sealed, err := Seal(key, authority.Public())
	require.NoError(t, err)

	data, err := sealed.Bytes()
	require.NoError(t, err)

	restored, err := FromBytes(data)
	require.NoError(t, err)

	recovered, err := authority.Open(restored)
	require.NoError(t, err)
	require.Equal(t, key, recovered)

	_, err = FromBytes([]byte{0x01, 0x02})
	require.Error(t, err)
}
