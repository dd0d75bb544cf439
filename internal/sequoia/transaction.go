package sequoia

import (
	"context"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/txnid"
)

// LockMode is the intent-lock mode taken by LockRow. SharedStrong is the
// only mode the core ever needs: it blocks concurrent commit/abort of the
// locked row while still permitting other nested starts (spec.md §4.1,
// §5 "Ordering guarantees").
type LockMode int

const (
	LockSharedStrong LockMode = iota
)

// CommitOptions configures a Transaction's Commit call.
type CommitOptions struct {
	// CoordinatorCellTag names the cell that acts as coordinator for this
	// Sequoia transaction's two-phase commit.
	CoordinatorCellTag txnid.CellTag
}

// Predicate selects rows from a table by a typed key list, replacing the
// source's textual "transaction_id IN (...)" clause with the typed
// builder spec.md §9 Design Notes calls for.
type Predicate struct {
	Table Table
	// TransactionIdIn, when non-nil, restricts to rows whose
	// "transaction_id" column (ancestor_id / prerequisite_id, depending on
	// table) is one of these IDs.
	TransactionIdIn []txnid.Id
}

// SelectByTransactionIds builds the Predicate used throughout the
// dependent-set collector and the finish plan's replica scan.
func SelectByTransactionIds(table Table, ids []txnid.Id) Predicate {
	return Predicate{Table: table, TransactionIdIn: ids}
}

// Transaction is the ambient Sequoia transaction contract from spec.md
// §4.1: a single staging buffer until Commit. All row reads the core needs
// are issued through this same object, so a plan's work is always exactly
// one Sequoia transaction's worth of work.
type Transaction interface {
	// GenerateObjectId mints a fresh transaction ID attributed to cellTag.
	GenerateObjectId(kind txnid.ObjectKind, cellTag txnid.CellTag) txnid.Id

	// LookupTransactions returns one *TransactionRecord per key, nil where
	// absent, in the same order as keys.
	LookupTransactions(ctx context.Context, keys []TransactionsKey) ([]*TransactionRecord, error)

	// LookupReplicas returns one *TransactionReplicasRecord per key, nil
	// where absent, in the same order as keys.
	LookupReplicas(ctx context.Context, keys []TransactionReplicasKey) ([]*TransactionReplicasRecord, error)

	// SelectDescendants returns every transaction_descendants row matching p.
	SelectDescendants(ctx context.Context, p Predicate) ([]TransactionDescendantsRecord, error)

	// SelectDependents returns every dependent_transactions row matching p.
	SelectDependents(ctx context.Context, p Predicate) ([]DependentTransactionsRecord, error)

	// SelectReplicas returns every transaction_replicas row matching p.
	SelectReplicas(ctx context.Context, p Predicate) ([]TransactionReplicasRecord, error)

	// LockRow stages an intent-lock on a transactions row.
	LockRow(key TransactionsKey, mode LockMode)

	// WriteTransaction / WriteDescendant / WriteReplica / WriteDependent
	// stage a row write, applied atomically at Commit.
	WriteTransaction(record TransactionRecord)
	WriteDescendant(record TransactionDescendantsRecord)
	WriteReplica(record TransactionReplicasRecord)
	WriteDependent(record DependentTransactionsRecord)

	// DeleteTransaction / DeleteDescendant / DeleteReplica / DeleteDependent
	// stage a row deletion, applied atomically at Commit.
	DeleteTransaction(key TransactionsKey)
	DeleteDescendant(key TransactionDescendantsKey)
	DeleteReplica(key TransactionReplicasKey)
	DeleteDependent(key DependentTransactionsKey)

	// AddTransactionAction stages a participant action to be delivered to
	// cellTag's master state machine atomically with the row mutations,
	// at Commit.
	AddTransactionAction(cellTag txnid.CellTag, action actions.Action)

	// Commit prepares and commits all staged mutations and actions.
	Commit(ctx context.Context, opts CommitOptions) error
}

// Client starts fresh Sequoia transactions, the way the ambient Sequoia
// client does in spec.md §4.5 step 1.
type Client interface {
	StartTransaction(ctx context.Context) (Transaction, error)
}
