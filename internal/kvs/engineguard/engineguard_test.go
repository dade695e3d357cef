package engineguard_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tomatosoup97/distributed-rust/internal/fsx"
	"github.com/Tomatosoup97/distributed-rust/internal/kvs/engineguard"
)

func TestEnsureWritesMarkerOnFirstOpen(t *testing.T) {
	dir := t.TempDir()
	fs := fsx.NewReal()

	require.NoError(t, engineguard.Ensure(dir, "kvs", fs))
	require.NoError(t, engineguard.Ensure(dir, "kvs", fs))
}

func TestEnsureRejectsMismatchedEngine(t *testing.T) {
	dir := t.TempDir()
	fs := fsx.NewReal()

	require.NoError(t, engineguard.Ensure(dir, "kvs", fs))

	err := engineguard.Ensure(dir, "sled", fs)
	require.Error(t, err)
	require.True(t, errors.Is(err, engineguard.ErrWrongEngineUsed))
}
