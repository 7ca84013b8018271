package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sealbox/sealbox/access"
	"github.com/sealbox/sealbox/audit"
	"github.com/sealbox/sealbox/crypto/aead"
	"github.com/sealbox/sealbox/crypto/escrow"
	"github.com/sealbox/sealbox/internal/testing/fake"
	"github.com/sealbox/sealbox/store/meta"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

type testEnv struct {
	engine *Engine
	blobs  *fake.BlobStore
	db     *fake.DB
	trail  *fake.Trail
}

func makeEngine(t *testing.T) testEnv {
	cipher, err := aead.NewCipherFromSecret("test secret")
	require.NoError(t, err)

	db := fake.NewDB()

	metaStore, err := meta.NewStore(db)
	require.NoError(t, err)

	blobs := fake.NewBlobStore()
	trail := fake.NewTrail()

	eng := New(cipher, access.NewEvaluator(access.MatchAny), blobs, metaStore, trail)
	eng.clock = func() time.Time {
		return time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	}

	return testEnv{
		engine: eng,
		blobs:  blobs,
		db:     db,
		trail:  trail,
	}
}

func TestEngine_Upload(t *testing.T) {
	env := makeEngine(t)
	ctx := context.Background()

	payload := []byte("patient record 42")

	key, err := env.engine.Upload(ctx, "Bob", payload, access.Policy{"BCS", "BCY", "BCD"})
	require.NoError(t, err)
	require.Regexp(t, "^bob/", key)

	// The blob store only ever sees ciphertext.
	stored, err := env.blobs.Get(ctx, key)
	require.NoError(t, err)
	require.NotEqual(t, payload, stored)

	records, err := env.trail.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "upload", records[0].Reason)
	require.Equal(t, "bob", records[0].Owner)
	require.False(t, records[0].Timestamp.IsZero())
}

func TestEngine_Upload_RejectsBadInput(t *testing.T) {
	env := makeEngine(t)
	ctx := context.Background()

	_, err := env.engine.Upload(ctx, "  ", []byte("data"), access.Policy{"BCS"})
	require.EqualError(t, err, "invalid request: empty owner")

	_, err = env.engine.Upload(ctx, "bob", nil, access.Policy{"BCS"})
	require.EqualError(t, err, "invalid request: empty payload")

	_, err = env.engine.Upload(ctx, "bob", []byte("data"), access.Policy{"BCS", " "})
	require.EqualError(t, err, "invalid request: empty role in policy")

	// Rejections happen before any store I/O.
	require.Equal(t, 0, env.blobs.Puts.Len())
}

func TestEngine_Upload_BlobFailure(t *testing.T) {
	env := makeEngine(t)
	env.blobs.ErrPut = fake.GetError()

	_, err := env.engine.Upload(context.Background(), "bob", []byte("data"),
		access.Policy{"BCS"})
	require.EqualError(t, err, fake.Err("failed to store blob"))

	// A failed blob write never triggers a metadata write, and no audit
	// record documents state that does not exist.
	_, err = env.engine.meta.Get("bob")
	require.ErrorIs(t, err, meta.ErrUnknownOwner)

	records, err := env.trail.ReadAll()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestEngine_Upload_MetadataFailure(t *testing.T) {
	env := makeEngine(t)
	env.db.ErrUpdate = fake.GetError()

	_, err := env.engine.Upload(context.Background(), "bob", []byte("data"),
		access.Policy{"BCS"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "is orphaned")

	// The blob exists, the inconsistency is recorded.
	require.Equal(t, 1, env.blobs.Puts.Len())

	records, err := env.trail.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "upload metadata failure", records[0].Reason)
}

func TestEngine_Access_Scenario(t *testing.T) {
	env := makeEngine(t)
	ctx := context.Background()

	payload := []byte("deep dive into the immune system")

	_, err := env.engine.Upload(ctx, "bob", payload, access.Policy{"BCS", "BCY", "BCD"})
	require.NoError(t, err)

	// A user holding one of the policy roles is granted the exact payload.
	data, err := env.engine.Access(ctx, "carol", access.Attributes{"BCY"}, "bob")
	require.NoError(t, err)
	require.Equal(t, payload, data)

	// A user holding none is denied before any blob fetch.
	gets := env.blobs.Gets.Len()

	_, err = env.engine.Access(ctx, "mallory", access.Attributes{"X"}, "bob")
	require.EqualError(t, err, "access denied: policy mismatch")
	require.Equal(t, gets, env.blobs.Gets.Len())

	// Owner lookups are case-insensitive.
	data, err = env.engine.Access(ctx, "carol", access.Attributes{"BCY"}, "BOB")
	require.NoError(t, err)
	require.Equal(t, payload, data)

	records, err := env.trail.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	require.Equal(t, audit.Granted, records[1].Decision)
	require.Equal(t, "carol", records[1].User)
	require.Equal(t, access.Attributes{"BCY"}, records[1].Attributes)

	require.Equal(t, audit.Denied, records[2].Decision)
	require.Equal(t, "policy mismatch", records[2].Reason)
}

func TestEngine_Access_UnknownOwner(t *testing.T) {
	env := makeEngine(t)

	_, err := env.engine.Access(context.Background(), "carol",
		access.Attributes{"BCY"}, "nobody")
	require.EqualError(t, err, "access denied: unknown owner")

	records, err := env.trail.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, audit.Denied, records[0].Decision)
	require.Equal(t, "unknown owner", records[0].Reason)
}

func TestEngine_Access_Revoked(t *testing.T) {
	env := makeEngine(t)
	ctx := context.Background()

	_, err := env.engine.Upload(ctx, "bob", []byte("data"), access.Policy{"BCY"})
	require.NoError(t, err)

	err = env.engine.Revoke("bob", "Eve")
	require.NoError(t, err)

	// Revoking twice is a no-op.
	err = env.engine.Revoke("bob", "eve")
	require.NoError(t, err)

	// Matching attributes do not help a revoked user.
	_, err = env.engine.Access(ctx, "eve", access.Attributes{"BCY"}, "bob")
	require.EqualError(t, err, "access denied: revoked")

	err = env.engine.Unrevoke("bob", "eve")
	require.NoError(t, err)

	_, err = env.engine.Access(ctx, "eve", access.Attributes{"BCY"}, "bob")
	require.NoError(t, err)
}

func TestEngine_Access_IntegrityFailure(t *testing.T) {
	env := makeEngine(t)
	ctx := context.Background()

	key, err := env.engine.Upload(ctx, "bob", []byte("data"), access.Policy{"BCY"})
	require.NoError(t, err)

	env.blobs.Corrupt(key)

	_, err = env.engine.Access(ctx, "carol", access.Attributes{"BCY"}, "bob")
	require.EqualError(t, err, "access denied: integrity failure")

	records, err := env.trail.ReadAll()
	require.NoError(t, err)
	require.Equal(t, "integrity failure", records[len(records)-1].Reason)
}

func TestEngine_Access_StorageFailures(t *testing.T) {
	env := makeEngine(t)
	ctx := context.Background()

	_, err := env.engine.Upload(ctx, "bob", []byte("data"), access.Policy{"BCY"})
	require.NoError(t, err)

	env.blobs.ErrGet = fake.GetError()

	_, err = env.engine.Access(ctx, "carol", access.Attributes{"BCY"}, "bob")
	require.EqualError(t, err, fake.Err("failed to fetch blob"))

	env.db.ErrView = fake.GetError()

	_, err = env.engine.Access(ctx, "carol", access.Attributes{"BCY"}, "bob")
	require.EqualError(t, err,
		fake.Err("failed to read metadata: failed to read record"))

	// Failures are not silent: each attempt left a record.
	records, err := env.trail.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "storage unavailable", records[1].Reason)
	require.Equal(t, "storage unavailable", records[2].Reason)
}

func TestEngine_Access_LastWriteWins(t *testing.T) {
	env := makeEngine(t)
	ctx := context.Background()

	_, err := env.engine.Upload(ctx, "bob", []byte("first"), access.Policy{"BCY"})
	require.NoError(t, err)

	_, err = env.engine.Upload(ctx, "bob", []byte("second"), access.Policy{"BCD"})
	require.NoError(t, err)

	// The second upload replaced both the payload and the policy.
	_, err = env.engine.Access(ctx, "carol", access.Attributes{"BCY"}, "bob")
	require.EqualError(t, err, "access denied: policy mismatch")

	data, err := env.engine.Access(ctx, "carol", access.Attributes{"BCD"}, "bob")
	require.NoError(t, err)
	require.Equal(t, []byte("second"), data)
}

func TestEngine_Audit_Concurrent(t *testing.T) {
	env := makeEngine(t)
	ctx := context.Background()

	_, err := env.engine.Upload(ctx, "bob", []byte("data"), access.Policy{"BCY"})
	require.NoError(t, err)

	n := 20

	wg := sync.WaitGroup{}
	wg.Add(n)

	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()

			attrs := access.Attributes{"BCY"}
			if i%2 == 0 {
				attrs = access.Attributes{"X"}
			}

			env.engine.Access(ctx, fmt.Sprintf("user%d", i), attrs, "bob")
		}(i)
	}

	wg.Wait()

	// One record per access on top of the upload record, in a single total
	// order.
	records, err := env.engine.Audit()
	require.NoError(t, err)
	require.Len(t, records, n+1)

	for i, record := range records {
		require.Equal(t, uint64(i+1), record.Seq)
	}
}

func TestEngine_Upload_ConcurrentSameOwner(t *testing.T) {
	env := makeEngine(t)
	ctx := context.Background()

	n := 8

	wg := sync.WaitGroup{}
	wg.Add(n)

	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()

			payload := []byte(fmt.Sprintf("version %d", i))

			_, err := env.engine.Upload(ctx, "bob", payload, access.Policy{"BCY"})
			require.NoError(t, err)
		}(i)
	}

	wg.Wait()

	// Whatever the interleaving, the record points at a blob that exists
	// and decrypts to the payload of one of the uploads.
	data, err := env.engine.Access(ctx, "carol", access.Attributes{"BCY"}, "bob")
	require.NoError(t, err)
	require.Regexp(t, "^version [0-7]$", string(data))
}

func TestEngine_ExportKey(t *testing.T) {
	env := makeEngine(t)

	authority := escrow.NewKeypair()

	sealed, err := env.engine.ExportKey(authority.Public())
	require.NoError(t, err)

	key, err := authority.Open(sealed)
	require.NoError(t, err)

	cipher, err := aead.NewCipherFromSecret("test secret")
	require.NoError(t, err)
	require.Equal(t, cipher.Key(), key)
}

func TestEngine_ExportKey_Unsupported(t *testing.T) {
	env := makeEngine(t)
	env.engine.cipher = sealedCipher{}

	_, err := env.engine.ExportKey(escrow.NewKeypair().Public())
	require.EqualError(t, err, "cipher does not support key export")
}

func TestEngine_Audit_TrailFailure(t *testing.T) {
	env := makeEngine(t)
	env.trail.ErrRead = fake.GetError()

	_, err := env.engine.Audit()
	require.EqualError(t, err, fake.Err("failed to read audit trail"))
}

// sealedCipher is a cipher that does not expose its key.
type sealedCipher struct{}

func (sealedCipher) Encrypt(plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (sealedCipher) Decrypt(envelope []byte) ([]byte, error) {
	return nil, xerrors.New("unusable")
}
