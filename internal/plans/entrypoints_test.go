package plans

import (
	"context"
	"testing"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/mutation"
	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
	"github.com/stretchr/testify/require"
)

type fakeLeaderSync struct {
	calls int
}

func (f *fakeLeaderSync) SyncWithLeader(ctx context.Context) error {
	f.calls++
	return nil
}

func TestCoordinatorStartCommitLifecycle(t *testing.T) {
	store, _ := newDispatchStore()
	invoker := mutation.NewInvoker(2)
	defer invoker.Close()

	coord := NewCoordinator(store, invoker, nil, mutation.NewMetrics(nil), 10, nil)

	startResult, err := coord.StartCypressTransactionInSequoiaAndReply(context.Background(), StartRequest{})
	require.NoError(t, err)
	require.False(t, startResult.Id.IsNull())

	commitResult, err := coord.CommitCypressTransactionInSequoia(context.Background(), startResult.Id, 99, actions.AuthenticationIdentity{})
	require.NoError(t, err)
	require.Equal(t, uint64(99), commitResult.CommitTimestamps[10])
	require.Equal(t, 0, store.TransactionCount())
}

func TestCoordinatorAbortExpiredForcesAbort(t *testing.T) {
	store, _ := newDispatchStore()
	invoker := mutation.NewInvoker(1)
	defer invoker.Close()

	coord := NewCoordinator(store, invoker, nil, mutation.NewMetrics(nil), 10, nil)

	missing := txnid.NewUUIDGenerator().Generate(txnid.KindTransaction, 10)
	_, err := coord.AbortExpiredCypressTransactionInSequoia(context.Background(), missing)
	require.NoError(t, err)
}

func TestCoordinatorReplicateAndSyncWithLeaderCallsLeaderSync(t *testing.T) {
	store, _ := newDispatchStore()
	invoker := mutation.NewInvoker(1)
	defer invoker.Close()
	sync := &fakeLeaderSync{}

	coord := NewCoordinator(store, invoker, nil, mutation.NewMetrics(nil), 11, sync)

	ctx := context.Background()
	tr := txnid.NewUUIDGenerator().Generate(txnid.KindTransaction, 10)
	seed, _ := store.StartTransaction(ctx)
	seed.WriteTransaction(sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: tr}})
	require.NoError(t, seed.Commit(ctx, sequoia.CommitOptions{}))

	err := coord.ReplicateCypressTransactionsInSequoiaAndSyncWithLeader(ctx, []txnid.Id{tr})
	require.NoError(t, err)
	require.Equal(t, 1, sync.calls)
	require.True(t, store.HasReplica(tr, 11))
}
