package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMergesOverFileOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coordinator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
local_cell_tag: 10
raft_id: cell-10
raft_bind_address: 127.0.0.1:7000
peers:
  - cell_tag: 11
    raft_id: cell-11
    address: 127.0.0.1:7001
`), 0644))

	cfg, err := Load(path, Default())
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.SequoiaBackend)
	require.Equal(t, "cell-10", cfg.RaftID)
	require.Len(t, cfg.Peers, 1)
	require.Equal(t, "cell-11", cfg.Peers[0].RaftID)
}

func TestLoadRejectsMissingRaftID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coordinator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("raft_bind_address: 127.0.0.1:7000\n"), 0644))

	_, err := Load(path, Default())
	require.Error(t, err)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), Default())
	require.Error(t, err)
}
