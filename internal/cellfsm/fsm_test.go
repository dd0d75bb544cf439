package cellfsm

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/require"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/txnid"
)

// newSingleNodeCell boots a one-node raft cluster backed by in-memory
// stores/transport, bootstrapped and leader within the test — enough to
// exercise Dispatch/SyncWithLeader without touching disk, matching the
// teacher's own raft bootstrap sequence in cmd/gojodb_server/main.go but
// trimmed to a single voter.
func newSingleNodeCell(t *testing.T) *Cell {
	t.Helper()

	cell := New()

	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID("test-node")
	config.HeartbeatTimeout = 50 * time.Millisecond
	config.ElectionTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 50 * time.Millisecond
	config.CommitTimeout = 5 * time.Millisecond

	_, transport := raft.NewInmemTransport(raft.ServerAddress("test-node"))
	logStore := raft.NewInmemStore()
	stableStore := raft.NewInmemStore()
	snapshots := raft.NewInmemSnapshotStore()

	r, err := raft.NewRaft(config, cell, logStore, stableStore, snapshots, transport)
	require.NoError(t, err)

	cell.Attach(r)

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: config.LocalID, Address: transport.LocalAddr()}},
	})
	require.NoError(t, future.Error())

	require.Eventually(t, func() bool {
		return r.State() == raft.Leader
	}, time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		r.Shutdown().Error()
	})
	return cell
}

func TestDispatchAppliesToLedgerAndSyncWithLeaderCompletes(t *testing.T) {
	cell := newSingleNodeCell(t)
	ctx := context.Background()

	tr := txnid.NewUUIDGenerator().Generate(txnid.KindTransaction, 10)
	err := cell.Dispatch(ctx, 10, actions.Action{
		Kind:   actions.KindCommitCypressTransaction,
		Commit: &actions.CommitCypressTransaction{TransactionId: tr, CommitTimestamp: 7},
	})
	require.NoError(t, err)

	rec, ok := cell.Record(tr)
	require.True(t, ok)
	require.True(t, rec.Committed)
	require.Equal(t, actions.KindCommitCypressTransaction, rec.LastAction)

	require.NoError(t, cell.SyncWithLeader(ctx))
}

func TestDispatchBeforeAttachFails(t *testing.T) {
	cell := New()
	err := cell.Dispatch(context.Background(), 10, actions.Action{Kind: actions.KindCommitCypressTransaction})
	require.Error(t, err)
}
