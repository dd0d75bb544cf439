package plans

import (
	"context"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/replication"
	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
)

// StartRequest is the pre-validation input to Start (spec.md §4.6).
type StartRequest struct {
	Timeout                    int64
	Deadline                   *int64
	Attributes                 map[string]string
	Title                      *string
	ParentId                   txnid.Id // txnid.Null if the request is top-level
	PrerequisiteTransactionIds []txnid.Id
	ReplicateToCellTags        []txnid.CellTag
	Identity                   actions.AuthenticationIdentity
}

// StartResult is the Start reply.
type StartResult struct {
	Id txnid.Id
}

// Start implements spec.md §4.6: pre-processing, the fast path (no
// parent, no prerequisites), and the lettered slow path.
func Start(ctx context.Context, txn sequoia.Transaction, localCellTag txnid.CellTag, req StartRequest) (StartResult, error) {
	prereqs := sortUniqueIds(req.PrerequisiteTransactionIds)
	replicateCells := filterAndSortCells(req.ReplicateToCellTags, localCellTag)
	action := buildStartAction(req, prereqs, replicateCells)

	kind := txnid.KindTransaction
	if !req.ParentId.IsNull() {
		kind = txnid.KindNestedTransaction
	}
	newId := txn.GenerateObjectId(kind, localCellTag)
	action.HintId = newId

	if req.ParentId.IsNull() && len(prereqs) == 0 {
		return startFastPath(txn, localCellTag, newId, req, prereqs, replicateCells, action)
	}
	return startSlowPath(ctx, txn, localCellTag, newId, req, prereqs, replicateCells, action)
}

func buildStartAction(req StartRequest, prereqs []txnid.Id, replicateCells []txnid.CellTag) *actions.StartCypressTransaction {
	a := &actions.StartCypressTransaction{
		Timeout:                    req.Timeout,
		Deadline:                   req.Deadline,
		Attributes:                 req.Attributes,
		Title:                      req.Title,
		PrerequisiteTransactionIds: prereqs,
		ReplicateToCellTags:        replicateCells,
		Identity:                   req.Identity,
	}
	if !req.ParentId.IsNull() {
		parent := req.ParentId
		a.ParentId = &parent
	}
	return a
}

// startFastPath implements spec.md §4.6 step 2.
func startFastPath(
	txn sequoia.Transaction,
	localCellTag txnid.CellTag,
	newId txnid.Id,
	req StartRequest,
	prereqs []txnid.Id,
	replicateCells []txnid.CellTag,
	action *actions.StartCypressTransaction,
) (StartResult, error) {
	record := sequoia.TransactionRecord{
		Key:                        sequoia.TransactionsKey{TransactionId: newId},
		Attributes:                 filterAttributes(req.Attributes, req.Title),
		PrerequisiteTransactionIds: prereqs,
	}
	txn.WriteTransaction(record)
	txn.AddTransactionAction(localCellTag, actions.Action{Kind: actions.KindStartCypressTransaction, Start: action})

	if len(replicateCells) > 0 {
		replication.NewSimpleReplicator(txn).AddTransaction(record).AddCells(replicateCells).Run()
	}
	return StartResult{Id: newId}, nil
}

// startSlowPath implements spec.md §4.6 step 3 (a)–(i).
func startSlowPath(
	ctx context.Context,
	txn sequoia.Transaction,
	localCellTag txnid.CellTag,
	newId txnid.Id,
	req StartRequest,
	prereqs []txnid.Id,
	replicateCells []txnid.CellTag,
	action *actions.StartCypressTransaction,
) (StartResult, error) {
	// (a)
	if len(prereqs) > 0 {
		keys := make([]sequoia.TransactionsKey, len(prereqs))
		for i, id := range prereqs {
			keys[i] = sequoia.TransactionsKey{TransactionId: id}
		}
		records, err := txn.LookupTransactions(ctx, keys)
		if err != nil {
			return StartResult{}, err
		}
		for i, r := range records {
			if r == nil {
				return StartResult{}, sequoia.NewPrerequisiteCheckFailedError(prereqs[i])
			}
		}
		if err := sequoia.ValidateAllAncestors(records); err != nil {
			return StartResult{}, err
		}
		for _, k := range keys {
			txn.LockRow(k, sequoia.LockSharedStrong)
		}
	}

	// (b)
	var ancestorIds []txnid.Id
	if !req.ParentId.IsNull() {
		parentKey := sequoia.TransactionsKey{TransactionId: req.ParentId}
		txn.LockRow(parentKey, sequoia.LockSharedStrong)
		records, err := txn.LookupTransactions(ctx, []sequoia.TransactionsKey{parentKey})
		if err != nil {
			return StartResult{}, err
		}
		parent := records[0]
		if parent == nil {
			return StartResult{}, sequoia.NewNoSuchTransactionError(req.ParentId)
		}
		if err := sequoia.ValidateAncestors(parent); err != nil {
			return StartResult{}, err
		}
		ancestorIds = append(append([]txnid.Id(nil), parent.AncestorIds...), req.ParentId)
	}

	// (c)
	for _, ancestor := range ancestorIds {
		txn.WriteDescendant(sequoia.TransactionDescendantsRecord{
			Key: sequoia.TransactionDescendantsKey{TransactionId: ancestor, DescendantId: newId},
		})
	}

	// (d), (e)
	record := sequoia.TransactionRecord{
		Key:                        sequoia.TransactionsKey{TransactionId: newId},
		AncestorIds:                ancestorIds,
		Attributes:                 filterAttributes(req.Attributes, req.Title),
		PrerequisiteTransactionIds: prereqs,
	}
	txn.WriteTransaction(record)

	// (f)
	txn.AddTransactionAction(localCellTag, actions.Action{Kind: actions.KindStartCypressTransaction, Start: action})

	// (g)
	for _, p := range prereqs {
		if p.IsSequoiaId() {
			txn.WriteDependent(sequoia.DependentTransactionsRecord{
				Key: sequoia.DependentTransactionsKey{TransactionId: p, DependentTransactionId: newId},
			})
		}
	}

	// (h)
	if len(replicateCells) > 0 {
		if len(ancestorIds) == 0 {
			replication.NewSimpleReplicator(txn).AddTransaction(record).AddCells(replicateCells).Run()
		} else {
			replicator := replication.NewHierarchicalReplicator(txn, []sequoia.TransactionRecord{record}, replicateCells)
			if err := replicator.Run(ctx); err != nil {
				return StartResult{}, err
			}
		}
	}

	// (i)
	return StartResult{Id: newId}, nil
}
