package kvs_test

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/Tomatosoup97/distributed-rust/internal/fsx"
	"github.com/Tomatosoup97/distributed-rust/internal/kvs"
)

func TestSetGetOverwriteAndReopen(t *testing.T) {
	dir := t.TempDir()
	fs := fsx.NewReal()

	store, err := kvs.Open(dir, fs)
	require.NoError(t, err)

	require.NoError(t, store.Set("a", "1"))
	require.NoError(t, store.Set("a", "2"))

	value, ok, err := store.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", value)

	require.NoError(t, store.Close())

	store, err = kvs.Open(dir, fs)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	value, ok, err = store.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", value)

	require.NoError(t, store.Remove("a"))

	_, ok, err = store.Get("a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOpenRejectsSecondConcurrentOpener(t *testing.T) {
	dir := t.TempDir()
	fs := fsx.NewReal()

	store, err := kvs.Open(dir, fs)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = kvs.Open(dir, fs)
	require.Error(t, err)
	require.ErrorIs(t, err, fsx.ErrWouldBlock)
}

func TestRemoveAbsentKeyFails(t *testing.T) {
	dir := t.TempDir()
	store, err := kvs.Open(dir, fsx.NewReal())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	err = store.Remove("missing")
	require.Error(t, err)
	require.True(t, kvs.IsKeyNotFound(err))
}

func TestSetRejectsTombstoneValue(t *testing.T) {
	dir := t.TempDir()
	store, err := kvs.Open(dir, fsx.NewReal())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	err = store.Set("a", kvs.TombstoneValue)
	require.Error(t, err)
}

func TestSequenceConsistentWithReferenceMap(t *testing.T) {
	dir := t.TempDir()
	store, err := kvs.Open(dir, fsx.NewReal())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	reference := map[string]string{}

	ops := []struct {
		op, key, value string
	}{
		{"set", "a", "1"},
		{"set", "b", "2"},
		{"set", "a", "3"},
		{"remove", "b", ""},
		{"set", "c", "4"},
	}

	for _, o := range ops {
		switch o.op {
		case "set":
			require.NoError(t, store.Set(o.key, o.value))
			reference[o.key] = o.value
		case "remove":
			require.NoError(t, store.Remove(o.key))
			delete(reference, o.key)
		}

		for k, want := range reference {
			got, ok, err := store.Get(k)
			require.NoError(t, err)
			require.True(t, ok)

			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("value mismatch for %q (-want +got):\n%s", k, diff)
			}
		}
	}
}

func TestManyDistinctKeysReadableWithinLogSizeBound(t *testing.T) {
	dir := t.TempDir()
	store, err := kvs.Open(dir, fsx.NewReal())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	const n = 2000

	for i := range n {
		key := keyFor(i)
		require.NoError(t, store.Set(key, "abcd"))
	}

	require.Equal(t, n, store.IndexLen())

	for i := range n {
		value, ok, err := store.Get(keyFor(i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "abcd", value)
	}

	size, err := store.LogSize()
	require.NoError(t, err)
	require.LessOrEqual(t, size, int64(n*64))
}

func keyFor(i int) string {
	return "key-" + strconv.Itoa(i)
}
