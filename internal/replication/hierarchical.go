package replication

import (
	"context"
	"sort"

	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
	"golang.org/x/sync/errgroup"
)

// HierarchicalReplicator implements spec.md §4.3: given a set of innermost
// transactions and a set of destination cells, it computes the
// topologically sorted closure of ancestors, skips pairs already
// replicated, and drives a SimpleReplicator per destination cell.
type HierarchicalReplicator struct {
	txn         sequoia.Transaction
	cellTags    []txnid.CellTag
	innermost   []sequoia.TransactionRecord
	ancestorIds []txnid.Id
}

// NewHierarchicalReplicator builds a replicator for innermost over
// destinations, performing the ancestor-collection and pruning steps
// (§4.3 steps 1–3) synchronously.
func NewHierarchicalReplicator(
	txn sequoia.Transaction,
	innermost []sequoia.TransactionRecord,
	destinations []txnid.CellTag,
) *HierarchicalReplicator {
	r := &HierarchicalReplicator{txn: txn, cellTags: destinations}
	r.collectAndSort(innermost)
	return r
}

// collectAndSort implements §4.3 steps 1–3.
func (r *HierarchicalReplicator) collectAndSort(transactions []sequoia.TransactionRecord) {
	allAncestors := make(map[txnid.Id]struct{})
	for _, t := range transactions {
		for _, a := range t.AncestorIds {
			allAncestors[a] = struct{}{}
		}
	}

	pruned := make([]sequoia.TransactionRecord, 0, len(transactions))
	for _, t := range transactions {
		if _, isAncestor := allAncestors[t.Key.TransactionId]; !isAncestor {
			pruned = append(pruned, t)
		}
	}
	sort.SliceStable(pruned, func(i, j int) bool {
		return pruned[i].Key.TransactionId.CellTag() < pruned[j].Key.TransactionId.CellTag()
	})

	ancestorIds := make([]txnid.Id, 0, len(allAncestors))
	remaining := make(map[txnid.Id]struct{}, len(allAncestors))
	for id := range allAncestors {
		remaining[id] = struct{}{}
	}
	for _, t := range pruned {
		for _, a := range t.AncestorIds {
			if _, ok := remaining[a]; ok {
				delete(remaining, a)
				ancestorIds = append(ancestorIds, a)
			}
		}
	}

	r.innermost = pruned
	r.ancestorIds = ancestorIds
}

// IterateGroupedByCoordinator invokes callback once per maximal run of
// equal native cell tag within the (already cell-tag-sorted) innermost
// list, used by the replicate plan to emit one
// MarkCypressTransactionsReplicatedToCell action per coordinator cell
// (spec.md §4.3 step 6, §4.8 step 4).
func (r *HierarchicalReplicator) IterateGroupedByCoordinator(callback func([]sequoia.TransactionRecord)) {
	if len(r.innermost) == 0 {
		return
	}
	start := 0
	for i := 1; i < len(r.innermost); i++ {
		if r.innermost[i-1].Key.TransactionId.CellTag() != r.innermost[i].Key.TransactionId.CellTag() {
			callback(r.innermost[start:i])
			start = i
		}
	}
	callback(r.innermost[start:])
}

// fetchedInfo is the two-level replacement (per spec.md §9 Design Notes)
// for the source's flat, hand-sliced replica vector.
type fetchedInfo struct {
	ancestors       []*sequoia.TransactionRecord // nil if the fast path (no ancestors) was taken
	replicasByCell  map[txnid.CellTag]map[txnid.Id]bool
}

// Run performs §4.3 steps 4–5: fetch ancestors and existing replicas in
// parallel, then replicate per destination cell.
func (r *HierarchicalReplicator) Run(ctx context.Context) error {
	info, err := r.fetchAncestorsAndReplicas(ctx)
	if err != nil {
		return err
	}

	for _, cellTag := range r.cellTags {
		already := info.replicasByCell[cellTag]
		simple := NewSimpleReplicator(r.txn).AddCell(cellTag)
		for _, ancestor := range info.ancestors {
			if ancestor != nil && !already[ancestor.Key.TransactionId] {
				simple.AddTransaction(*ancestor)
			}
		}
		for _, t := range r.innermost {
			if !already[t.Key.TransactionId] {
				simple.AddTransaction(t)
			}
		}
		simple.Run()
	}
	return nil
}

// fetchAncestorsAndReplicas issues the ancestors lookup and the replicas
// lookup concurrently via errgroup (spec.md §4.3 step 4: "Issue two
// parallel lookups"), skipping the ancestors lookup entirely when
// AncestorIds_ is empty (the fast path named in the same step).
func (r *HierarchicalReplicator) fetchAncestorsAndReplicas(ctx context.Context) (*fetchedInfo, error) {
	allIds := make([]txnid.Id, 0, len(r.ancestorIds)+len(r.innermost))
	allIds = append(allIds, r.ancestorIds...)
	for _, t := range r.innermost {
		allIds = append(allIds, t.Key.TransactionId)
	}
	replicaKeys := make([]sequoia.TransactionReplicasKey, 0, len(allIds)*len(r.cellTags))
	for _, cellTag := range r.cellTags {
		for _, id := range allIds {
			replicaKeys = append(replicaKeys, sequoia.TransactionReplicasKey{TransactionId: id, CellTag: cellTag})
		}
	}

	var ancestors []*sequoia.TransactionRecord
	var replicaRecords []*sequoia.TransactionReplicasRecord

	group, gctx := errgroup.WithContext(ctx)
	if len(r.ancestorIds) > 0 {
		group.Go(func() error {
			keys := make([]sequoia.TransactionsKey, len(r.ancestorIds))
			for i, id := range r.ancestorIds {
				keys[i] = sequoia.TransactionsKey{TransactionId: id}
			}
			records, err := r.txn.LookupTransactions(gctx, keys)
			if err != nil {
				return err
			}
			if err := sequoia.ValidateAllExist(records); err != nil {
				return err
			}
			if err := sequoia.ValidateAllAncestors(records); err != nil {
				return err
			}
			ancestors = records
			return nil
		})
	}
	group.Go(func() error {
		records, err := r.txn.LookupReplicas(gctx, replicaKeys)
		if err != nil {
			return err
		}
		replicaRecords = records
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	replicasByCell := make(map[txnid.CellTag]map[txnid.Id]bool, len(r.cellTags))
	idx := 0
	for _, cellTag := range r.cellTags {
		present := make(map[txnid.Id]bool, len(allIds))
		for range allIds {
			if replicaRecords[idx] != nil {
				present[replicaRecords[idx].Key.TransactionId] = true
			}
			idx++
		}
		replicasByCell[cellTag] = present
	}

	return &fetchedInfo{ancestors: ancestors, replicasByCell: replicasByCell}, nil
}
