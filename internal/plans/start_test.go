package plans

import (
	"context"
	"testing"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
	"github.com/stretchr/testify/require"
)

func newDispatchStore() (*sequoia.Store, *[]dispatchedAction) {
	var log []dispatchedAction
	d := actions.DispatcherFunc(func(_ context.Context, cellTag txnid.CellTag, a actions.Action) error {
		log = append(log, dispatchedAction{cellTag: cellTag, action: a})
		return nil
	})
	return sequoia.NewStore(nil, d), &log
}

type dispatchedAction struct {
	cellTag txnid.CellTag
	action  actions.Action
}

// TestStartNestedUnderExistingParent mirrors spec.md §8 scenario 1.
func TestStartNestedUnderExistingParent(t *testing.T) {
	store, log := newDispatchStore()
	ctx := context.Background()

	seed, _ := store.StartTransaction(ctx)
	p := txnid.NewUUIDGenerator().Generate(txnid.KindTransaction, 10)
	seed.WriteTransaction(sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: p}})
	require.NoError(t, seed.Commit(ctx, sequoia.CommitOptions{}))
	*log = nil

	txn, _ := store.StartTransaction(ctx)
	title := "t"
	result, err := Start(ctx, txn, 10, StartRequest{ParentId: p, Attributes: map[string]string{}, Title: &title})
	require.NoError(t, err)
	require.NoError(t, txn.Commit(ctx, sequoia.CommitOptions{}))

	require.True(t, store.HasDescendant(p, result.Id))
	require.Equal(t, 2, store.TransactionCount())
	require.Len(t, *log, 1)
	require.Equal(t, actions.KindStartCypressTransaction, (*log)[0].action.Kind)
	require.Equal(t, result.Id, (*log)[0].action.Start.HintId)
}

// TestStartTopLevelWithReplicate mirrors spec.md §8 scenario 2.
func TestStartTopLevelWithReplicate(t *testing.T) {
	store, log := newDispatchStore()
	ctx := context.Background()
	txn, _ := store.StartTransaction(ctx)

	result, err := Start(ctx, txn, 10, StartRequest{ReplicateToCellTags: []txnid.CellTag{11, 12}})
	require.NoError(t, err)
	require.NoError(t, txn.Commit(ctx, sequoia.CommitOptions{}))

	require.True(t, store.HasReplica(result.Id, 11))
	require.True(t, store.HasReplica(result.Id, 12))

	var materializeCount, startCount int
	for _, e := range *log {
		switch e.action.Kind {
		case actions.KindMaterializeCypressTransactionReplicas:
			materializeCount++
			require.Contains(t, []txnid.CellTag{11, 12}, e.cellTag)
		case actions.KindStartCypressTransaction:
			startCount++
			require.Equal(t, txnid.CellTag(10), e.cellTag)
		}
	}
	require.Equal(t, 2, materializeCount)
	require.Equal(t, 1, startCount)
}

func TestStartWithMixedSequoiaAndNonSequoiaPrerequisitesWritesOneDependent(t *testing.T) {
	store, _ := newDispatchStore()
	ctx := context.Background()

	seed, _ := store.StartTransaction(ctx)
	sequoiaPrereq := txnid.NewUUIDGenerator().Generate(txnid.KindTransaction, 10)
	seed.WriteTransaction(sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: sequoiaPrereq}})
	require.NoError(t, seed.Commit(ctx, sequoia.CommitOptions{}))

	nonSequoiaPrereq := txnid.NewSystemId(7, 7)
	require.False(t, nonSequoiaPrereq.IsSequoiaId())
	seed2, _ := store.StartTransaction(ctx)
	seed2.WriteTransaction(sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: nonSequoiaPrereq}})
	require.NoError(t, seed2.Commit(ctx, sequoia.CommitOptions{}))

	txn, _ := store.StartTransaction(ctx)
	result, err := Start(ctx, txn, 10, StartRequest{
		PrerequisiteTransactionIds: []txnid.Id{sequoiaPrereq, nonSequoiaPrereq},
	})
	require.NoError(t, err)
	require.NoError(t, txn.Commit(ctx, sequoia.CommitOptions{}))

	require.True(t, store.HasDependent(sequoiaPrereq, result.Id))
	require.False(t, store.HasDependent(nonSequoiaPrereq, result.Id))
}

func TestStartWithMissingPrerequisiteFails(t *testing.T) {
	store, _ := newDispatchStore()
	ctx := context.Background()
	txn, _ := store.StartTransaction(ctx)

	missing := txnid.NewUUIDGenerator().Generate(txnid.KindTransaction, 10)
	_, err := Start(ctx, txn, 10, StartRequest{PrerequisiteTransactionIds: []txnid.Id{missing}})
	require.Error(t, err)
	var pcf *sequoia.PrerequisiteCheckFailedError
	require.ErrorAs(t, err, &pcf)
}

// TestStartWithCorruptedParentFails mirrors spec.md §8 invariant I2: a
// nested transaction row with no ancestor_ids is corrupt, and Start must
// surface that instead of nesting under it.
func TestStartWithCorruptedParentFails(t *testing.T) {
	store, _ := newDispatchStore()
	ctx := context.Background()

	seed, _ := store.StartTransaction(ctx)
	badParent := txnid.NewUUIDGenerator().Generate(txnid.KindNestedTransaction, 10)
	seed.WriteTransaction(sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: badParent}})
	require.NoError(t, seed.Commit(ctx, sequoia.CommitOptions{}))

	txn, _ := store.StartTransaction(ctx)
	_, err := Start(ctx, txn, 10, StartRequest{ParentId: badParent})
	require.Error(t, err)
	_, ok := sequoia.IsTableCorrupted(err)
	require.True(t, ok)
}

// TestStartWithCorruptedPrerequisiteFails mirrors spec.md §8 invariant I2
// for the prerequisite lookup in the slow path.
func TestStartWithCorruptedPrerequisiteFails(t *testing.T) {
	store, _ := newDispatchStore()
	ctx := context.Background()

	seed, _ := store.StartTransaction(ctx)
	badPrereq := txnid.NewUUIDGenerator().Generate(txnid.KindTransaction, 10)
	seed.WriteTransaction(sequoia.TransactionRecord{
		Key:         sequoia.TransactionsKey{TransactionId: badPrereq},
		AncestorIds: []txnid.Id{txnid.NewUUIDGenerator().Generate(txnid.KindTransaction, 10)},
	})
	require.NoError(t, seed.Commit(ctx, sequoia.CommitOptions{}))

	txn, _ := store.StartTransaction(ctx)
	_, err := Start(ctx, txn, 10, StartRequest{PrerequisiteTransactionIds: []txnid.Id{badPrereq}})
	require.Error(t, err)
	_, ok := sequoia.IsTableCorrupted(err)
	require.True(t, ok)
}
