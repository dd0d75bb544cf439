package dependents

import (
	"context"
	"testing"

	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
	"github.com/stretchr/testify/require"
)

// TestCollectCascadedAbortSet mirrors spec.md §8 scenario 4: T with nested
// U, and U a prerequisite for V. The collected closure is {T,U,V} and the
// only subtree root (besides the target) is V.
func TestCollectCascadedAbortSet(t *testing.T) {
	gen := txnid.NewUUIDGenerator()
	tTx := gen.Generate(txnid.KindTransaction, 10)
	u := gen.Generate(txnid.KindNestedTransaction, 10)
	v := gen.Generate(txnid.KindTransaction, 12)

	store := sequoia.NewStore(nil, nil)
	ctx := context.Background()
	seed, _ := store.StartTransaction(ctx)
	seed.WriteTransaction(sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: tTx}})
	seed.WriteTransaction(sequoia.TransactionRecord{
		Key:         sequoia.TransactionsKey{TransactionId: u},
		AncestorIds: []txnid.Id{tTx},
	})
	seed.WriteTransaction(sequoia.TransactionRecord{
		Key:                        sequoia.TransactionsKey{TransactionId: v},
		PrerequisiteTransactionIds: []txnid.Id{u},
	})
	seed.WriteDescendant(sequoia.TransactionDescendantsRecord{Key: sequoia.TransactionDescendantsKey{TransactionId: tTx, DescendantId: u}})
	seed.WriteDependent(sequoia.DependentTransactionsRecord{Key: sequoia.DependentTransactionsKey{TransactionId: u, DependentTransactionId: v}})
	require.NoError(t, seed.Commit(ctx, sequoia.CommitOptions{}))

	txn, _ := store.StartTransaction(ctx)
	target := sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: tTx}}
	result, err := Collect(ctx, txn, target)
	require.NoError(t, err)

	require.Len(t, result.Collected, 3)
	require.Contains(t, result.Collected, tTx)
	require.Contains(t, result.Collected, u)
	require.Contains(t, result.Collected, v)
	require.Equal(t, []txnid.Id{v}, result.SubtreeRoots)
}

func TestCollectTrivialNoDescendantsOrDependents(t *testing.T) {
	id := txnid.NewUUIDGenerator().Generate(txnid.KindTransaction, 10)
	store := sequoia.NewStore(nil, nil)
	ctx := context.Background()
	seed, _ := store.StartTransaction(ctx)
	seed.WriteTransaction(sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: id}})
	require.NoError(t, seed.Commit(ctx, sequoia.CommitOptions{}))

	txn, _ := store.StartTransaction(ctx)
	result, err := Collect(ctx, txn, sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: id}})
	require.NoError(t, err)
	require.Len(t, result.Collected, 1)
	require.Empty(t, result.SubtreeRoots)
}
