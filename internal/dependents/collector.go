// Package dependents implements the dependent-set collector from
// spec.md §4.4: a BFS over transaction_descendants ∪ dependent_transactions
// starting from a target transaction, producing the transitive closure and
// its subtree roots.
package dependents

import (
	"context"

	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
	"golang.org/x/sync/errgroup"
)

// Result is the output of Collect: every transaction transitively reachable
// from the target via descendant or dependent edges, plus the topmost
// entries ("subtree roots") that suffice as cascaded-abort targets.
type Result struct {
	Collected   map[txnid.Id]sequoia.TransactionRecord
	SubtreeRoots []txnid.Id
}

// Collect runs the BFS described in spec.md §4.4.
func Collect(ctx context.Context, txn sequoia.Transaction, target sequoia.TransactionRecord) (*Result, error) {
	collected := map[txnid.Id]sequoia.TransactionRecord{target.Key.TransactionId: target}
	frontier := []txnid.Id{target.Key.TransactionId}

	for len(frontier) > 0 {
		descendants, dependents, err := selectNext(ctx, txn, frontier)
		if err != nil {
			return nil, err
		}

		var keys []sequoia.TransactionsKey
		seen := make(map[txnid.Id]struct{})
		for _, d := range dependents {
			id := d.Key.DependentTransactionId
			if _, ok := collected[id]; ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			keys = append(keys, sequoia.TransactionsKey{TransactionId: id})
		}
		for _, d := range descendants {
			id := d.Key.DescendantId
			if _, ok := collected[id]; ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			keys = append(keys, sequoia.TransactionsKey{TransactionId: id})
		}

		if len(keys) == 0 {
			break
		}

		records, err := txn.LookupTransactions(ctx, keys)
		if err != nil {
			return nil, err
		}
		if err := sequoia.ValidateAllExist(records); err != nil {
			return nil, err
		}
		if err := sequoia.ValidateAllAncestors(records); err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, r := range records {
			collected[r.Key.TransactionId] = *r
			frontier = append(frontier, r.Key.TransactionId)
		}
	}

	return &Result{Collected: collected, SubtreeRoots: subtreeRoots(target.Key.TransactionId, collected)}, nil
}

// selectNext issues the two SelectRows calls of a BFS round in parallel
// (spec.md §4.4 step 1).
func selectNext(ctx context.Context, txn sequoia.Transaction, frontier []txnid.Id) (
	[]sequoia.TransactionDescendantsRecord,
	[]sequoia.DependentTransactionsRecord,
	error,
) {
	var descendants []sequoia.TransactionDescendantsRecord
	var dependentsOut []sequoia.DependentTransactionsRecord

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		records, err := txn.SelectDescendants(gctx, sequoia.SelectByTransactionIds(sequoia.TableTransactionDescendants, frontier))
		if err != nil {
			return err
		}
		descendants = records
		return nil
	})
	group.Go(func() error {
		records, err := txn.SelectDependents(gctx, sequoia.SelectByTransactionIds(sequoia.TableDependentTransactions, frontier))
		if err != nil {
			return err
		}
		dependentsOut = records
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	return descendants, dependentsOut, nil
}

// subtreeRoots returns every entry of collected except target whose
// immediate parent (last element of ancestor_ids) is not itself in
// collected (spec.md §4.4 "Output").
func subtreeRoots(target txnid.Id, collected map[txnid.Id]sequoia.TransactionRecord) []txnid.Id {
	var roots []txnid.Id
	for id, record := range collected {
		if id == target {
			continue
		}
		parent := record.ParentId()
		if parent.IsNull() {
			roots = append(roots, id)
			continue
		}
		if _, ok := collected[parent]; !ok {
			roots = append(roots, id)
		}
	}
	return roots
}
