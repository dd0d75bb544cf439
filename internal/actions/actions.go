// Package actions defines the content (not wire encoding) of every
// participant action the core dispatches to master cells, per spec.md §6.
package actions

import "github.com/cypressdb/coordinator/internal/txnid"

// Kind names an action type, used for routing on the receiving end and
// for metrics/log labels.
type Kind string

const (
	KindStartCypressTransaction           Kind = "StartCypressTransaction"
	KindCommitCypressTransaction          Kind = "CommitCypressTransaction"
	KindAbortCypressTransaction           Kind = "AbortCypressTransaction"
	KindMaterializeCypressTransactionReplicas Kind = "MaterializeCypressTransactionReplicas"
	KindCommitTransaction                 Kind = "CommitTransaction"
	KindAbortTransaction                  Kind = "AbortTransaction"
	KindMarkCypressTransactionsReplicatedToCell Kind = "MarkCypressTransactionsReplicatedToCell"
)

// AuthenticationIdentity stands in for the RPC layer's authentication
// identity, which spec.md §1 scopes out of the core's own responsibility;
// it is carried opaquely on every action that needs one.
type AuthenticationIdentity struct {
	User string
}

// Action is the sum type of every participant action the core can stage.
// Exactly one of the Kind-named fields is populated, matching Kind.
type Action struct {
	Kind Kind

	Start               *StartCypressTransaction
	Commit              *CommitCypressTransaction
	Abort               *AbortCypressTransaction
	Materialize         *MaterializeCypressTransactionReplicas
	CommitParticipant   *CommitTransaction
	AbortParticipant    *AbortTransaction
	MarkReplicated      *MarkCypressTransactionsReplicatedToCell
}

// StartCypressTransaction is dispatched to the local (coordinator) cell
// when a transaction is started.
type StartCypressTransaction struct {
	Timeout                    int64 // nanoseconds
	Deadline                   *int64
	Attributes                 map[string]string
	Title                      *string
	ParentId                   *txnid.Id
	PrerequisiteTransactionIds []txnid.Id
	ReplicateToCellTags        []txnid.CellTag
	HintId                     txnid.Id
	Identity                   AuthenticationIdentity
}

// CommitCypressTransaction is dispatched to the local cell on commit.
type CommitCypressTransaction struct {
	TransactionId              txnid.Id
	CommitTimestamp            uint64
	PrerequisiteTransactionIds []txnid.Id
	Identity                   AuthenticationIdentity
}

// AbortCypressTransaction is dispatched to the local cell on abort.
type AbortCypressTransaction struct {
	TransactionId     txnid.Id
	Force             bool
	ReplicateViaHive  bool
	Identity          AuthenticationIdentity
}

// MaterializeReplicaEntry is one element of a Materialize action's payload.
type MaterializeReplicaEntry struct {
	Id              txnid.Id
	ParentId        txnid.Id // txnid.Null if top-level
	Title           *string
	OperationType   *string
	OperationId     *string
	OperationTitle  *string
	Upload          bool
}

// MaterializeCypressTransactionReplicas is dispatched to each destination
// cell by the simple replicator.
type MaterializeCypressTransactionReplicas struct {
	Transactions []MaterializeReplicaEntry
}

// CommitTransaction is dispatched to every cell holding a replica of a
// committed transaction.
type CommitTransaction struct {
	TransactionId txnid.Id
}

// AbortTransaction is dispatched to every cell holding a replica of an
// aborted (or cascade-aborted) transaction.
type AbortTransaction struct {
	TransactionId txnid.Id
	Force         bool
}

// MarkCypressTransactionsReplicatedToCell is dispatched to a coordinator
// cell once its transactions have been replicated to DestinationCellTag.
type MarkCypressTransactionsReplicatedToCell struct {
	DestinationCellTag txnid.CellTag
	TransactionIds     []txnid.Id
}
