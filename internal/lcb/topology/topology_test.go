package topology_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tomatosoup97/distributed-rust/internal/lcb"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/topology"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	return path
}

func TestLoadHostsParsesLines(t *testing.T) {
	path := writeFile(t, "1 127.0.0.1 5001\n2 127.0.0.1 5002\n# comment\n\n3 127.0.0.1 5003\n")

	nodes, err := topology.LoadHosts(path)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	require.Equal(t, 5002, nodes[lcb.NodeID(2)].Port)
}

func TestLoadHostsRejectsMalformedLine(t *testing.T) {
	path := writeFile(t, "1 127.0.0.1\n")

	_, err := topology.LoadHosts(path)
	require.Error(t, err)
}

func TestLoadConfigParsesMessageCountAndDependencies(t *testing.T) {
	path := writeFile(t, "5\n\n1\n1\n")

	cfg, err := topology.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.MessagesCount)
	require.Empty(t, cfg.Causality[lcb.OwnerID(1)])
	require.Equal(t, []lcb.OwnerID{1}, cfg.Causality[lcb.OwnerID(2)])
	require.Equal(t, []lcb.OwnerID{1}, cfg.Causality[lcb.OwnerID(3)])
}

func TestInvertBuildsReverseDependencyMap(t *testing.T) {
	cm := topology.CausalityMap{
		1: nil,
		2: {1},
		3: {1, 2},
	}

	inv := topology.Invert(cm)
	require.ElementsMatch(t, []lcb.OwnerID{2, 3}, inv[lcb.OwnerID(1)])
	require.ElementsMatch(t, []lcb.OwnerID{3}, inv[lcb.OwnerID(2)])
}
