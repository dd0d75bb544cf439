// Package txnid implements the opaque transaction identifier described by
// the Cypress/Sequoia data model: a 128-bit value that encodes its object
// kind and native cell tag and is otherwise treated as opaque.
package txnid

import (
	"encoding/binary"
	"fmt"
)

// CellTag identifies a master cell in the cluster.
type CellTag uint32

// ObjectKind distinguishes top-level transactions from nested ones. The
// encoding mirrors the high nibble of a YT-style object ID: it is read and
// written by pure functions, never inferred from context.
type ObjectKind uint8

const (
	// KindTransaction is a top-level (non-nested) transaction.
	KindTransaction ObjectKind = iota
	// KindNestedTransaction is a transaction started under a parent.
	KindNestedTransaction
	// kindSystem marks non-Sequoia transaction IDs (e.g. externally minted
	// "system" transactions). These are never written to Sequoia tables.
	kindSystem
)

// Id is an opaque 128-bit transaction identifier. The zero value is the
// well-known "null" ID used as a sentinel parent_id.
type Id struct {
	hi uint64
	lo uint64
}

// Null is the sentinel used where "no transaction" is a valid value (e.g.
// a top-level transaction's parent_id in a materialize-replicas payload).
var Null = Id{}

// IsNull reports whether id is the null sentinel.
func (id Id) IsNull() bool { return id == Null }

// Kind extracts the object kind encoded in id's high word.
func (id Id) Kind() ObjectKind {
	return ObjectKind(id.hi >> 60)
}

// CellTag extracts the native cell tag encoded in id's high word.
func (id Id) CellTag() CellTag {
	return CellTag((id.hi >> 32) & 0xFFFF)
}

// IsSequoiaId reports whether id was minted by this subsystem (as opposed
// to being a "system" transaction ID that is deliberately not mirrored to
// Sequoia tables).
func (id Id) IsSequoiaId() bool {
	return id.Kind() != kindSystem
}

// String renders id as a stable hex string, suitable for use as a map key
// or log field; it is not meant to match any particular wire format.
func (id Id) String() string {
	return fmt.Sprintf("%016x-%016x", id.hi, id.lo)
}

// Less gives transaction IDs a total order, used for the "stable sort by
// transaction_id" step of the finish plan (§4.7 step 4) and for the
// sort-and-unique of a start request's prerequisite IDs; it has no bearing
// on object-kind or cell-tag semantics.
func Less(a, b Id) bool {
	if a.hi != b.hi {
		return a.hi < b.hi
	}
	return a.lo < b.lo
}

// Bytes returns a 16-byte big-endian encoding of id, for use as a stable
// sort/storage key.
func (id Id) Bytes() [16]byte {
	var out [16]byte
	binary.BigEndian.PutUint64(out[0:8], id.hi)
	binary.BigEndian.PutUint64(out[8:16], id.lo)
	return out
}

// MarshalText implements encoding.TextMarshaler so Id can be used as a
// JSON map key (e.g. cellfsm's per-transaction ledger snapshot).
func (id Id) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Id) UnmarshalText(text []byte) error {
	var hi, lo uint64
	if _, err := fmt.Sscanf(string(text), "%016x-%016x", &hi, &lo); err != nil {
		return fmt.Errorf("txnid: invalid Id text %q: %w", text, err)
	}
	id.hi, id.lo = hi, lo
	return nil
}

// NewSystemId constructs an opaque, non-Sequoia transaction ID: the kind
// external subsystems mint for prerequisite/dependency IDs this core never
// writes to its own tables (spec.md §4.6 step g, "non-Sequoia
// prerequisites are deliberately not mirrored").
func NewSystemId(cellTag CellTag, entropy uint64) Id {
	return newId(kindSystem, cellTag, entropy>>32, entropy)
}

// newId packs kind (bits 60-63) and the low 16 bits of cellTag (bits
// 32-47) into the high word and fills the low word (and the low 32 bits of
// the high word below the cell tag) with the supplied entropy.
func newId(kind ObjectKind, cellTag CellTag, entropyHi, entropyLo uint64) Id {
	hi := uint64(kind)<<60 | uint64(cellTag&0xFFFF)<<32 | (entropyHi & 0xFFFFFFFF)
	return Id{hi: hi, lo: entropyLo}
}
