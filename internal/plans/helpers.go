package plans

import (
	"sort"

	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
)

// attributeWhitelist is the set of attribute names a Start request is
// allowed to persist onto a transactions row (spec.md §4.6 step d).
var attributeWhitelist = map[string]bool{
	"operation_type":  true,
	"operation_id":    true,
	"operation_title": true,
}

// filterAttributes copies only whitelisted attributes from attrs, then
// inserts title under the "title" key if present.
func filterAttributes(attrs map[string]string, title *string) sequoia.Attributes {
	out := make(sequoia.Attributes)
	for k, v := range attrs {
		if attributeWhitelist[k] {
			out[k] = v
		}
	}
	if title != nil {
		out["title"] = *title
	}
	return out
}

// sortUniqueIds returns ids sorted by txnid.Less with adjacent duplicates
// removed (spec.md §4.6 pre-processing: "sort-and-unique
// prerequisite_transaction_ids").
func sortUniqueIds(ids []txnid.Id) []txnid.Id {
	if len(ids) == 0 {
		return nil
	}
	sorted := append([]txnid.Id(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return txnid.Less(sorted[i], sorted[j]) })

	out := sorted[:0]
	var havePrev bool
	var prev txnid.Id
	for _, id := range sorted {
		if havePrev && prev == id {
			continue
		}
		out = append(out, id)
		prev = id
		havePrev = true
	}
	return out
}

// filterAndSortCells removes local from cells and sorts the remainder
// (spec.md §4.6 pre-processing: "remove the local cell tag from
// replicate_to_cell_tags and sort the rest").
func filterAndSortCells(cells []txnid.CellTag, local txnid.CellTag) []txnid.CellTag {
	var out []txnid.CellTag
	for _, c := range cells {
		if c != local {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// replicasFor returns the subset of replicas keyed on id.
func replicasFor(replicas []sequoia.TransactionReplicasRecord, id txnid.Id) []sequoia.TransactionReplicasRecord {
	var out []sequoia.TransactionReplicasRecord
	for _, r := range replicas {
		if r.Key.TransactionId == id {
			out = append(out, r)
		}
	}
	return out
}
