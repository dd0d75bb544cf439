package mutation

import (
	"context"
	"errors"
	"testing"

	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
	"github.com/stretchr/testify/require"
)

func TestMutationRunSuccessCommitsAndReturnsResult(t *testing.T) {
	store := sequoia.NewStore(nil, nil)
	invoker := NewInvoker(2)
	defer invoker.Close()

	id := txnid.NewUUIDGenerator().Generate(txnid.KindTransaction, 10)
	m := New[txnid.Id]("TestOp", store, invoker, nil, NewMetrics(nil))

	result, err := m.Run(context.Background(), sequoia.CommitOptions{}, func(ctx context.Context, txn sequoia.Transaction) (txnid.Id, error) {
		txn.WriteTransaction(sequoia.TransactionRecord{Key: sequoia.TransactionsKey{TransactionId: id}})
		return id, nil
	})

	require.NoError(t, err)
	require.Equal(t, id, result)
	require.Equal(t, 1, store.TransactionCount())
}

func TestMutationRunPropagatesApplyError(t *testing.T) {
	store := sequoia.NewStore(nil, nil)
	invoker := NewInvoker(1)
	defer invoker.Close()

	wantErr := sequoia.NewNoSuchTransactionError(txnid.Null)
	m := New[int]("TestOp", store, invoker, nil, NewMetrics(nil))

	_, err := m.Run(context.Background(), sequoia.CommitOptions{}, func(ctx context.Context, txn sequoia.Transaction) (int, error) {
		return 0, wantErr
	})

	require.Error(t, err)
	require.Equal(t, wantErr, err)
	require.Equal(t, 0, store.TransactionCount())
}

func TestMutationRunClassifiesTableCorrupted(t *testing.T) {
	store := sequoia.NewStore(nil, nil)
	invoker := NewInvoker(1)
	defer invoker.Close()

	metrics := NewMetrics(nil)
	m := New[int]("TestOp", store, invoker, nil, metrics)

	_, err := m.Run(context.Background(), sequoia.CommitOptions{}, func(ctx context.Context, txn sequoia.Transaction) (int, error) {
		return 0, sequoia.NewTableCorruptedError(sequoia.TableTransactions, "boom")
	})

	require.Error(t, err)
	_, ok := sequoia.IsTableCorrupted(err)
	require.True(t, ok)
	require.NotNil(t, metrics.TableCorrupted)
}

func TestMutationRunClassifiesRetriable(t *testing.T) {
	store := sequoia.NewStore(nil, nil)
	invoker := NewInvoker(1)
	defer invoker.Close()

	m := New[int]("TestOp", store, invoker, nil, NewMetrics(nil))
	cause := errors.New("backend unavailable")

	_, err := m.Run(context.Background(), sequoia.CommitOptions{}, func(ctx context.Context, txn sequoia.Transaction) (int, error) {
		return 0, sequoia.NewRetriableError(cause)
	})

	require.Error(t, err)
	require.True(t, sequoia.IsRetriable(err))
}

func TestInvokerRunReturnsContextErrorWhenCanceledBeforeDispatch(t *testing.T) {
	invoker := NewInvoker(1)
	defer invoker.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = invoker.Run(context.Background(), func(ctx context.Context) {
			close(started)
			<-block
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := invoker.Run(ctx, func(ctx context.Context) {})
	require.ErrorIs(t, err, context.Canceled)

	close(block)
}
