package bolt

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sealbox/sealbox/audit"
	"github.com/sealbox/sealbox/store/kv"
	"github.com/stretchr/testify/require"
)

func makeTrail(t *testing.T) *Trail {
	db, err := kv.New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	trail, err := NewTrail(db)
	require.NoError(t, err)

	return trail
}

func TestTrail_Append(t *testing.T) {
	trail := makeTrail(t)

	now := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	trail.clock = func() time.Time { return now }

	seq, err := trail.Append(audit.Record{
		User:     "eve",
		Owner:    "bob",
		Decision: audit.Denied,
		Reason:   "revoked",
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)

	seq, err = trail.Append(audit.Record{
		User:     "carol",
		Owner:    "bob",
		Decision: audit.Granted,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq)

	records, err := trail.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, uint64(1), records[0].Seq)
	require.Equal(t, "eve", records[0].User)
	require.Equal(t, audit.Denied, records[0].Decision)
	require.Equal(t, "revoked", records[0].Reason)
	require.Equal(t, now, records[0].Timestamp)

	require.Equal(t, uint64(2), records[1].Seq)
	require.Equal(t, audit.Granted, records[1].Decision)
}

func TestTrail_Append_KeepsTimestamp(t *testing.T) {
	trail := makeTrail(t)

	stamp := time.Date(2023, time.July, 14, 12, 0, 0, 0, time.UTC)

	_, err := trail.Append(audit.Record{
		User:      "carol",
		Owner:     "bob",
		Decision:  audit.Granted,
		Timestamp: stamp,
	})
	require.NoError(t, err)

	records, err := trail.ReadAll()
	require.NoError(t, err)
	require.Equal(t, stamp, records[0].Timestamp)
}

func TestTrail_ReadAll_Empty(t *testing.T) {
	trail := makeTrail(t)

	records, err := trail.ReadAll()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestTrail_ConcurrentAppends(t *testing.T) {
	trail := makeTrail(t)

	n := 32

	wg := sync.WaitGroup{}
	wg.Add(n)

	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()

			_, err := trail.Append(audit.Record{
				User:     "carol",
				Owner:    "bob",
				Decision: audit.Granted,
			})
			require.NoError(t, err)
		}()
	}

	wg.Wait()

	records, err := trail.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, n)

	// The sequence is dense and strictly increasing: one slot per append,
	// no gap and no duplicate.
	for i, record := range records {
		require.Equal(t, uint64(i+1), record.Seq)
	}
}
