package plans

import (
	"context"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/replication"
	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
)

// ReplicateRequest is the input to NewReplicatePlan: a list of transaction
// IDs whose replicas must exist on the local cell.
type ReplicateRequest struct {
	TransactionIds []txnid.Id
	LocalCellTag   txnid.CellTag
}

// ReplicatePlan implements spec.md §4.8.
type ReplicatePlan struct {
	req ReplicateRequest
}

// NewReplicatePlan builds a ReplicatePlan for req.
func NewReplicatePlan(req ReplicateRequest) *ReplicatePlan {
	return &ReplicatePlan{req: req}
}

// Run executes the replicate plan's five steps against txn.
func (p *ReplicatePlan) Run(ctx context.Context, txn sequoia.Transaction) error {
	// Step 1.
	filtered := make([]txnid.Id, 0, len(p.req.TransactionIds))
	for _, id := range p.req.TransactionIds {
		if id.CellTag() != p.req.LocalCellTag {
			filtered = append(filtered, id)
		}
	}

	// Step 2.
	if len(filtered) == 0 {
		return nil
	}

	// Step 3.
	keys := make([]sequoia.TransactionsKey, len(filtered))
	for i, id := range filtered {
		keys[i] = sequoia.TransactionsKey{TransactionId: id}
	}
	records, err := txn.LookupTransactions(ctx, keys)
	if err != nil {
		return err
	}
	innermost := make([]sequoia.TransactionRecord, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue // silently dropped, per spec.md §4.8 step 3
		}
		if err := sequoia.ValidateAncestors(r); err != nil {
			return err
		}
		innermost = append(innermost, *r)
	}
	if len(innermost) == 0 {
		return nil
	}

	// Step 4.
	replicator := replication.NewHierarchicalReplicator(txn, innermost, []txnid.CellTag{p.req.LocalCellTag})
	replicator.IterateGroupedByCoordinator(func(group []sequoia.TransactionRecord) {
		ids := make([]txnid.Id, len(group))
		for i, t := range group {
			txn.LockRow(t.Key, sequoia.LockSharedStrong)
			ids[i] = t.Key.TransactionId
		}
		coordinatorCell := group[0].Key.TransactionId.CellTag()
		txn.AddTransactionAction(coordinatorCell, actions.Action{
			Kind: actions.KindMarkCypressTransactionsReplicatedToCell,
			MarkReplicated: &actions.MarkCypressTransactionsReplicatedToCell{
				DestinationCellTag: p.req.LocalCellTag,
				TransactionIds:     ids,
			},
		})
	})
	if err := replicator.Run(ctx); err != nil {
		return err
	}

	// Step 5: commit happens at the mutation-skeleton layer.
	return nil
}
