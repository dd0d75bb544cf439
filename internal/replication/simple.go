// Package replication implements the simple and hierarchical transaction
// replicators from spec.md §4.2–§4.3.
package replication

import (
	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
)

// SimpleReplicator adds "materialize replicas on cells C1..Ck" to a
// Sequoia transaction's staging buffer for a batch of transactions. It is
// not responsible for any tree/hierarchy logic (spec.md §4.2).
type SimpleReplicator struct {
	txn          sequoia.Transaction
	transactions []sequoia.TransactionRecord
	cellTags     []txnid.CellTag
}

// NewSimpleReplicator builds a SimpleReplicator staging onto txn.
func NewSimpleReplicator(txn sequoia.Transaction) *SimpleReplicator {
	return &SimpleReplicator{txn: txn}
}

// AddTransaction queues record for replication. Returns the receiver for
// chaining, matching the source's fluent builder.
func (r *SimpleReplicator) AddTransaction(record sequoia.TransactionRecord) *SimpleReplicator {
	r.transactions = append(r.transactions, record)
	return r
}

// AddCell queues a destination cell.
func (r *SimpleReplicator) AddCell(cellTag txnid.CellTag) *SimpleReplicator {
	r.cellTags = append(r.cellTags, cellTag)
	return r
}

// AddCells queues multiple destination cells.
func (r *SimpleReplicator) AddCells(cellTags []txnid.CellTag) *SimpleReplicator {
	r.cellTags = append(r.cellTags, cellTags...)
	return r
}

// Run stages one Materialize action per destination cell, listing every
// queued transaction, plus one transaction_replicas row per
// (transaction, cell) pair (spec.md §4.2).
func (r *SimpleReplicator) Run() {
	if len(r.transactions) == 0 || len(r.cellTags) == 0 {
		return
	}

	entries := make([]actions.MaterializeReplicaEntry, len(r.transactions))
	for i, record := range r.transactions {
		entries[i] = toMaterializeEntry(record)
	}

	for _, cellTag := range r.cellTags {
		r.txn.AddTransactionAction(cellTag, actions.Action{
			Kind:        actions.KindMaterializeCypressTransactionReplicas,
			Materialize: &actions.MaterializeCypressTransactionReplicas{Transactions: entries},
		})
		for _, record := range r.transactions {
			r.txn.WriteReplica(sequoia.TransactionReplicasRecord{
				Key: sequoia.TransactionReplicasKey{
					TransactionId: record.Key.TransactionId,
					CellTag:       cellTag,
				},
			})
		}
	}
}

func toMaterializeEntry(record sequoia.TransactionRecord) actions.MaterializeReplicaEntry {
	entry := actions.MaterializeReplicaEntry{
		Id:       record.Key.TransactionId,
		ParentId: record.ParentId(),
		Upload:   false,
	}
	if v, ok := record.Attributes["title"]; ok {
		entry.Title = &v
	}
	if v, ok := record.Attributes["operation_type"]; ok {
		entry.OperationType = &v
	}
	if v, ok := record.Attributes["operation_id"]; ok {
		entry.OperationId = &v
	}
	if v, ok := record.Attributes["operation_title"]; ok {
		entry.OperationTitle = &v
	}
	return entry
}
