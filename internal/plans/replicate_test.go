package plans

import (
	"context"
	"testing"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
	"github.com/stretchr/testify/require"
)

// TestReplicateFastPathToNativeCell mirrors spec.md §8 scenario 5.
func TestReplicateFastPathToNativeCell(t *testing.T) {
	store, log := newDispatchStore()
	ctx := context.Background()

	tr := txnid.NewUUIDGenerator().Generate(txnid.KindTransaction, 10)
	seed, _ := store.StartTransaction(ctx)
	seed.WriteTransaction(sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: tr}})
	require.NoError(t, seed.Commit(ctx, sequoia.CommitOptions{}))
	*log = nil

	plan := NewReplicatePlan(ReplicateRequest{TransactionIds: []txnid.Id{tr}, LocalCellTag: 10})
	txn, _ := store.StartTransaction(ctx)
	require.NoError(t, plan.Run(ctx, txn))
	require.NoError(t, txn.Commit(ctx, sequoia.CommitOptions{}))

	require.Empty(t, *log)
	require.False(t, store.HasReplica(tr, 10))
}

// TestReplicateWithAncestors mirrors spec.md §8 scenario 6.
func TestReplicateWithAncestors(t *testing.T) {
	store, log := newDispatchStore()
	ctx := context.Background()

	gen := txnid.NewUUIDGenerator()
	a := gen.Generate(txnid.KindTransaction, 10)
	tr := gen.Generate(txnid.KindNestedTransaction, 10)

	seed, _ := store.StartTransaction(ctx)
	seed.WriteTransaction(sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: a}})
	seed.WriteTransaction(sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: tr}, AncestorIds: []txnid.Id{a}})
	require.NoError(t, seed.Commit(ctx, sequoia.CommitOptions{}))
	*log = nil

	plan := NewReplicatePlan(ReplicateRequest{TransactionIds: []txnid.Id{tr}, LocalCellTag: 11})
	txn, _ := store.StartTransaction(ctx)
	require.NoError(t, plan.Run(ctx, txn))
	require.NoError(t, txn.Commit(ctx, sequoia.CommitOptions{}))

	require.True(t, store.HasReplica(a, 11))
	require.True(t, store.HasReplica(tr, 11))

	var materialize *actions.MaterializeCypressTransactionReplicas
	var markCount int
	for _, e := range *log {
		switch e.action.Kind {
		case actions.KindMaterializeCypressTransactionReplicas:
			require.Equal(t, txnid.CellTag(11), e.cellTag)
			materialize = e.action.Materialize
		case actions.KindMarkCypressTransactionsReplicatedToCell:
			markCount++
			require.Equal(t, txnid.CellTag(10), e.cellTag)
			require.Equal(t, txnid.CellTag(11), e.action.MarkReplicated.DestinationCellTag)
			require.Equal(t, []txnid.Id{tr}, e.action.MarkReplicated.TransactionIds)
		}
	}
	require.NotNil(t, materialize)
	require.Len(t, materialize.Transactions, 2)
	require.Equal(t, 1, markCount)
}

func TestReplicateAlreadyReplicatedIsIdempotent(t *testing.T) {
	store, log := newDispatchStore()
	ctx := context.Background()

	tr := txnid.NewUUIDGenerator().Generate(txnid.KindTransaction, 10)
	seed, _ := store.StartTransaction(ctx)
	seed.WriteTransaction(sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: tr}})
	seed.WriteReplica(sequoia.TransactionReplicasRecord{Key: sequoia.TransactionReplicasKey{TransactionId: tr, CellTag: 11}})
	require.NoError(t, seed.Commit(ctx, sequoia.CommitOptions{}))
	*log = nil

	plan := NewReplicatePlan(ReplicateRequest{TransactionIds: []txnid.Id{tr}, LocalCellTag: 11})
	txn, _ := store.StartTransaction(ctx)
	require.NoError(t, plan.Run(ctx, txn))
	require.NoError(t, txn.Commit(ctx, sequoia.CommitOptions{}))

	for _, e := range *log {
		require.NotEqual(t, actions.KindMaterializeCypressTransactionReplicas, e.action.Kind)
	}
}
