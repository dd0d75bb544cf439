package txnid

import "testing"

func TestKindAndCellTagRoundTrip(t *testing.T) {
	gen := NewUUIDGenerator()

	id := gen.Generate(KindNestedTransaction, CellTag(42))
	if id.Kind() != KindNestedTransaction {
		t.Fatalf("Kind() = %v, want %v", id.Kind(), KindNestedTransaction)
	}
	if id.CellTag() != CellTag(42) {
		t.Fatalf("CellTag() = %v, want 42", id.CellTag())
	}
	if !id.IsSequoiaId() {
		t.Fatalf("expected Sequoia ID")
	}
}

func TestNullIsZeroValue(t *testing.T) {
	var id Id
	if !id.IsNull() {
		t.Fatalf("zero value should be null")
	}
	if id != Null {
		t.Fatalf("zero value should equal Null")
	}
}

func TestGenerateIsCollisionFree(t *testing.T) {
	gen := NewUUIDGenerator()
	seen := make(map[Id]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := gen.Generate(KindTransaction, CellTag(1))
		if _, ok := seen[id]; ok {
			t.Fatalf("collision at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

func TestNewSystemIdIsNotSequoiaId(t *testing.T) {
	id := NewSystemId(CellTag(7), 123)
	if id.IsSequoiaId() {
		t.Fatalf("system ID should not be a Sequoia ID")
	}
	if id.CellTag() != CellTag(7) {
		t.Fatalf("CellTag() = %v, want 7", id.CellTag())
	}
}

func TestMarshalTextRoundTrip(t *testing.T) {
	gen := NewUUIDGenerator()
	id := gen.Generate(KindNestedTransaction, CellTag(9))

	text, err := id.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var got Id
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if got != id {
		t.Fatalf("round trip mismatch: got %v, want %v", got, id)
	}
}

func TestLessTotalOrder(t *testing.T) {
	a := newId(KindTransaction, 1, 0, 1)
	b := newId(KindTransaction, 1, 0, 2)
	if !Less(a, b) || Less(b, a) {
		t.Fatalf("Less() not a strict total order for %v, %v", a, b)
	}
}
