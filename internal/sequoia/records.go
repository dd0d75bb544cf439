// Package sequoia models the ambient Sequoia transactional table client
// described in spec.md §4.1: row lookup, row locking, row write/delete,
// select-by-predicate, participant-action dispatch, and atomic commit. The
// real Sequoia store is an external collaborator out of this module's
// scope; this package defines the contract (Transaction) plus an
// in-memory reference implementation used by tests and the demo binaries.
package sequoia

import "github.com/cypressdb/coordinator/internal/txnid"

// Table names the four Sequoia metadata tables from spec.md §3.
type Table string

const (
	TableTransactions            Table = "transactions"
	TableTransactionDescendants  Table = "transaction_descendants"
	TableTransactionReplicas     Table = "transaction_replicas"
	TableDependentTransactions   Table = "dependent_transactions"
)

// Attributes is the attribute-name -> value mapping stored on a
// transactions row. Only title, operation_type, operation_id and
// operation_title are ever populated, per spec.md §3.
type Attributes map[string]string

// Clone returns a shallow copy, since Attributes maps are shared between a
// written row and the action payloads derived from it.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// TransactionsKey is the primary key of the transactions table.
type TransactionsKey struct {
	TransactionId txnid.Id
}

// TransactionRecord is a row of the transactions table.
type TransactionRecord struct {
	Key                        TransactionsKey
	AncestorIds                []txnid.Id
	Attributes                 Attributes
	PrerequisiteTransactionIds []txnid.Id
}

// ParentId returns the last element of AncestorIds, or the null ID if the
// record has no ancestors (i.e. is top-level).
func (r TransactionRecord) ParentId() txnid.Id {
	if len(r.AncestorIds) == 0 {
		return txnid.Null
	}
	return r.AncestorIds[len(r.AncestorIds)-1]
}

// TransactionDescendantsKey is the primary key of transaction_descendants.
type TransactionDescendantsKey struct {
	TransactionId txnid.Id // ancestor_id
	DescendantId  txnid.Id
}

// TransactionDescendantsRecord is a row of transaction_descendants. It
// carries no non-key data; existence of the row is the fact being stored.
type TransactionDescendantsRecord struct {
	Key TransactionDescendantsKey
}

// TransactionReplicasKey is the primary key of transaction_replicas.
type TransactionReplicasKey struct {
	TransactionId txnid.Id
	CellTag       txnid.CellTag
}

// TransactionReplicasRecord is a row of transaction_replicas.
type TransactionReplicasRecord struct {
	Key TransactionReplicasKey
}

// DependentTransactionsKey is the primary key of dependent_transactions.
type DependentTransactionsKey struct {
	TransactionId          txnid.Id // prerequisite_id
	DependentTransactionId txnid.Id
}

// DependentTransactionsRecord is a row of dependent_transactions.
type DependentTransactionsRecord struct {
	Key DependentTransactionsKey
}
