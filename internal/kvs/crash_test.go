package kvs_test

import (
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tomatosoup97/distributed-rust/internal/fsx"
	"github.com/Tomatosoup97/distributed-rust/internal/kvs"
)

// TestRenameFailureDuringCompactionKeepsOldLogAuthoritative exercises spec
// §4.1's compaction crash-safety contract: if the rename that commits a
// compaction fails, data.log must be untouched and still authoritative.
func TestRenameFailureDuringCompactionKeepsOldLogAuthoritative(t *testing.T) {
	dir := t.TempDir()
	real := fsx.NewReal()
	rnd := rand.New(rand.NewPCG(1, 2))
	chaos := fsx.NewChaos(real, fsx.ChaosConfig{RenameFailRate: 1.0}, rnd.Float64)

	store, err := kvs.Open(dir, chaos)
	require.NoError(t, err)

	// Every Set after the first overwrites the same key, so toCompact
	// exceeds the threshold on the last Set of the loop; compaction is
	// attempted and fails on the injected rename error. A compaction
	// failure is surfaced as a Set error even though the write itself
	// persisted (see DESIGN.md), so only the final write's success matters
	// here.
	var sawCompactionFailure bool

	for i := range kvs.CompactionThreshold + 2 {
		if err := store.Set("k", "v"+strconv.Itoa(i)); err != nil {
			sawCompactionFailure = true
		}
	}

	require.True(t, sawCompactionFailure, "expected at least one compaction attempt to fail")

	value, ok, getErr := store.Get("k")
	require.NoError(t, getErr)
	require.True(t, ok)
	require.Equal(t, "v"+strconv.Itoa(kvs.CompactionThreshold+1), value)

	require.NoError(t, store.Close())

	// data.log must still be a valid, replayable log after the failed
	// compaction attempt, with the last write intact.
	reopened, err := kvs.Open(dir, real)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	value, ok, err := reopened.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v"+strconv.Itoa(kvs.CompactionThreshold+1), value)
}

func TestOpenRejectsCorruptTrailingRecord(t *testing.T) {
	dir := t.TempDir()
	fs := fsx.NewReal()

	store, err := kvs.Open(dir, fs)
	require.NoError(t, err)
	require.NoError(t, store.Set("a", "1"))
	require.NoError(t, store.Close())

	logPath := dir + "/data.log"
	data, err := fs.ReadFile(logPath)
	require.NoError(t, err)

	truncated := data[:len(data)-2]
	require.NoError(t, fs.WriteFileAtomic(logPath, truncated, 0o644))

	_, err = kvs.Open(dir, fs)
	require.Error(t, err)
}
