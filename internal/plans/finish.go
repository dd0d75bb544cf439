package plans

import (
	"context"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/dependents"
	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
)

// FinishKind names which of the two finish variants a FinishPlan runs.
type FinishKind int

const (
	KindCommit FinishKind = iota
	KindAbort
)

// CommitData holds the fields only a commit needs.
type CommitData struct {
	CommitTimestamp uint64
}

// AbortData holds the fields only an abort needs.
type AbortData struct {
	Force bool
}

// FinishRequest is the input to NewFinishPlan.
type FinishRequest struct {
	Kind         FinishKind
	TargetId     txnid.Id
	LocalCellTag txnid.CellTag
	Identity     actions.AuthenticationIdentity

	Commit *CommitData // set iff Kind == KindCommit
	Abort  *AbortData  // set iff Kind == KindAbort

	// PrerequisiteTransactionIds is only meaningful for KindCommit, where
	// spec.md §4.7 step 1 requires it to be empty: commit with
	// prerequisites is unsupported and rejected at construction time.
	PrerequisiteTransactionIds []txnid.Id
}

// FinishResult is the finish reply: empty for abort, a per-cell commit
// timestamp map for commit.
type FinishResult struct {
	CommitTimestamps map[txnid.CellTag]uint64
}

// FinishPlan implements the shared scaffolding of spec.md §4.7, dispatching
// on Kind at the three hook points named in Design Notes §9.
type FinishPlan struct {
	req FinishRequest
}

// NewFinishPlan validates req and builds a FinishPlan. Committing with a
// non-empty prerequisite list fails immediately with UnsupportedFeature,
// per spec.md §4.7 step 1 and Open Question (a).
func NewFinishPlan(req FinishRequest) (*FinishPlan, error) {
	if req.Kind == KindCommit && len(req.PrerequisiteTransactionIds) > 0 {
		return nil, sequoia.NewUnsupportedFeatureError("commit with prerequisite_transaction_ids")
	}
	return &FinishPlan{req: req}, nil
}

// Run executes the finish plan's nine steps against txn.
func (p *FinishPlan) Run(ctx context.Context, txn sequoia.Transaction) (FinishResult, error) {
	// Step 1.
	records, err := txn.LookupTransactions(ctx, []sequoia.TransactionsKey{{TransactionId: p.req.TargetId}})
	if err != nil {
		return FinishResult{}, err
	}
	target := records[0]
	if target == nil {
		if p.req.Kind == KindAbort && p.req.Abort.Force {
			return FinishResult{}, nil
		}
		return FinishResult{}, sequoia.NewNoSuchTransactionError(p.req.TargetId)
	}

	// Step 2.
	if err := sequoia.ValidateAncestors(target); err != nil {
		return FinishResult{}, err
	}

	// Step 3.
	collected, err := dependents.Collect(ctx, txn, *target)
	if err != nil {
		return FinishResult{}, err
	}

	// Step 4.
	collectedIds := make([]txnid.Id, 0, len(collected.Collected))
	for id := range collected.Collected {
		collectedIds = append(collectedIds, id)
	}
	replicas, err := txn.SelectReplicas(ctx, sequoia.SelectByTransactionIds(sequoia.TableTransactionReplicas, collectedIds))
	if err != nil {
		return FinishResult{}, err
	}
	sequoia.SortByTransactionId(replicas)

	// Step 5.
	result := p.finishTargetOnMaster(txn, replicas)

	// Step 6.
	for _, rootId := range collected.SubtreeRoots {
		for _, r := range replicasFor(replicas, rootId) {
			txn.AddTransactionAction(r.Key.CellTag, actions.Action{
				Kind:             actions.KindAbortTransaction,
				AbortParticipant: &actions.AbortTransaction{TransactionId: rootId, Force: true},
			})
		}
	}

	// Step 7.
	for _, r := range replicas {
		txn.DeleteReplica(r.Key)
	}

	// Step 8.
	for id, record := range collected.Collected {
		for _, prereq := range record.PrerequisiteTransactionIds {
			if prereq.IsSequoiaId() {
				txn.DeleteDependent(sequoia.DependentTransactionsKey{TransactionId: prereq, DependentTransactionId: id})
			}
		}
		for _, ancestor := range record.AncestorIds {
			txn.DeleteDescendant(sequoia.TransactionDescendantsKey{TransactionId: ancestor, DescendantId: id})
		}
		txn.DeleteTransaction(sequoia.TransactionsKey{TransactionId: id})
	}

	// Step 9.
	return result, nil
}

// finishTargetOnMaster implements spec.md §4.7 step 5.
func (p *FinishPlan) finishTargetOnMaster(txn sequoia.Transaction, replicas []sequoia.TransactionReplicasRecord) FinishResult {
	targetReplicas := replicasFor(replicas, p.req.TargetId)

	switch p.req.Kind {
	case KindAbort:
		txn.AddTransactionAction(p.req.LocalCellTag, actions.Action{
			Kind: actions.KindAbortCypressTransaction,
			Abort: &actions.AbortCypressTransaction{
				TransactionId:    p.req.TargetId,
				Force:            p.req.Abort.Force,
				ReplicateViaHive: false,
				Identity:         p.req.Identity,
			},
		})
		for _, r := range targetReplicas {
			txn.AddTransactionAction(r.Key.CellTag, actions.Action{
				Kind:             actions.KindAbortTransaction,
				AbortParticipant: &actions.AbortTransaction{TransactionId: p.req.TargetId, Force: true},
			})
		}
		return FinishResult{}

	default: // KindCommit
		txn.AddTransactionAction(p.req.LocalCellTag, actions.Action{
			Kind: actions.KindCommitCypressTransaction,
			Commit: &actions.CommitCypressTransaction{
				TransactionId:   p.req.TargetId,
				CommitTimestamp: p.req.Commit.CommitTimestamp,
				Identity:        p.req.Identity,
			},
		})
		for _, r := range targetReplicas {
			txn.AddTransactionAction(r.Key.CellTag, actions.Action{
				Kind:              actions.KindCommitTransaction,
				CommitParticipant: &actions.CommitTransaction{TransactionId: p.req.TargetId},
			})
		}
		return FinishResult{CommitTimestamps: map[txnid.CellTag]uint64{p.req.LocalCellTag: p.req.Commit.CommitTimestamp}}
	}
}
