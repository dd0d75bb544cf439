package sequoia

import "github.com/cypressdb/coordinator/internal/txnid"

// ValidateAncestors checks invariant I2 from spec.md §3/§8: AncestorIds is
// empty iff the record's object kind is Transaction (top-level). Violation
// is reported as a TableCorruptedError naming the transactions table.
func ValidateAncestors(record *TransactionRecord) error {
	if record == nil {
		return nil
	}
	isNested := record.Key.TransactionId.Kind() == txnid.KindNestedTransaction
	hasAncestors := len(record.AncestorIds) > 0
	if isNested != hasAncestors {
		return NewTableCorruptedError(TableTransactions, "ancestor_ids presence disagrees with object kind")
	}
	return nil
}

// ValidateAllExist checks that every entry of records is non-nil, i.e.
// every requested key was found. A missing row here means the table
// disagrees with a reference held elsewhere (e.g. transaction_descendants
// pointing at a transactions row that no longer exists), which is itself
// a corruption, not an ordinary not-found.
func ValidateAllExist(records []*TransactionRecord) error {
	for _, r := range records {
		if r == nil {
			return NewTableCorruptedError(TableTransactions, "referenced transaction is missing")
		}
	}
	return nil
}

// ValidateAllAncestors runs ValidateAncestors over every non-nil record.
func ValidateAllAncestors(records []*TransactionRecord) error {
	for _, r := range records {
		if err := ValidateAncestors(r); err != nil {
			return err
		}
	}
	return nil
}
