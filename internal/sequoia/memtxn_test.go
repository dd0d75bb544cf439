package sequoia

import (
	"context"
	"testing"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/txnid"
	"github.com/stretchr/testify/require"
)

func TestMemTransactionWriteCommitLookup(t *testing.T) {
	store := NewStore(nil, nil)
	ctx := context.Background()

	txn, err := store.StartTransaction(ctx)
	require.NoError(t, err)

	id := txn.GenerateObjectId(txnid.KindTransaction, txnid.CellTag(1))
	txn.WriteTransaction(TransactionRecord{
		Key:        TransactionsKey{TransactionId: id},
		Attributes: Attributes{"title": "t"},
	})
	require.NoError(t, txn.Commit(ctx, CommitOptions{CoordinatorCellTag: 1}))

	require.Equal(t, 1, store.TransactionCount())

	readTxn, err := store.StartTransaction(ctx)
	require.NoError(t, err)
	records, err := readTxn.LookupTransactions(ctx, []TransactionsKey{{TransactionId: id}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0])
	require.Equal(t, "t", records[0].Attributes["title"])
}

func TestMemTransactionDeleteRemovesRow(t *testing.T) {
	store := NewStore(nil, nil)
	ctx := context.Background()

	txn, _ := store.StartTransaction(ctx)
	id := txn.GenerateObjectId(txnid.KindTransaction, txnid.CellTag(1))
	txn.WriteTransaction(TransactionRecord{Key: TransactionsKey{TransactionId: id}})
	require.NoError(t, txn.Commit(ctx, CommitOptions{}))

	del, _ := store.StartTransaction(ctx)
	del.DeleteTransaction(TransactionsKey{TransactionId: id})
	require.NoError(t, del.Commit(ctx, CommitOptions{}))

	require.Equal(t, 0, store.TransactionCount())
}

func TestMemTransactionDispatchesActionsOnCommit(t *testing.T) {
	var got []actions.Action
	dispatcher := actions.DispatcherFunc(func(_ context.Context, cellTag txnid.CellTag, a actions.Action) error {
		got = append(got, a)
		return nil
	})
	store := NewStore(nil, dispatcher)
	ctx := context.Background()

	txn, _ := store.StartTransaction(ctx)
	txn.AddTransactionAction(1, actions.Action{Kind: actions.KindCommitTransaction})
	require.NoError(t, txn.Commit(ctx, CommitOptions{}))

	require.Len(t, got, 1)
	require.Equal(t, actions.KindCommitTransaction, got[0].Kind)
}

func TestValidateAncestorsRejectsMismatch(t *testing.T) {
	nested := txnid.NewUUIDGenerator().Generate(txnid.KindNestedTransaction, 1)
	bad := &TransactionRecord{Key: TransactionsKey{TransactionId: nested}}
	err := ValidateAncestors(bad)
	require.Error(t, err)
	_, ok := IsTableCorrupted(err)
	require.True(t, ok)
}
