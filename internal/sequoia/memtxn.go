package sequoia

import (
	"context"
	"sort"
	"sync"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/txnid"
)

// Store is an in-memory reference implementation of the four Sequoia
// tables (spec.md §3). It is not a column store: it stands in for "the
// Sequoia transactional table client" spec.md §1 scopes out, the way the
// teacher repo's btree.BTree stands in for a real storage engine. Store is
// safe for concurrent use by multiple Transactions.
type Store struct {
	mu          sync.Mutex
	generator   txnid.Generator
	dispatcher  actions.Dispatcher
	transactions map[txnid.Id]TransactionRecord
	descendants  map[TransactionDescendantsKey]struct{}
	replicas     map[TransactionReplicasKey]struct{}
	dependents   map[DependentTransactionsKey]struct{}
	locks        map[TransactionsKey]int // SharedStrong hold count, advisory
}

// NewStore builds an empty Store. dispatcher receives every action staged
// by a committed Transaction, in staging order, cell by cell; it may be
// nil, in which case actions are dropped (useful for tests that only
// assert on table state).
func NewStore(generator txnid.Generator, dispatcher actions.Dispatcher) *Store {
	if generator == nil {
		generator = txnid.NewUUIDGenerator()
	}
	return &Store{
		generator:    generator,
		dispatcher:   dispatcher,
		transactions: make(map[txnid.Id]TransactionRecord),
		descendants:  make(map[TransactionDescendantsKey]struct{}),
		replicas:     make(map[TransactionReplicasKey]struct{}),
		dependents:   make(map[DependentTransactionsKey]struct{}),
		locks:        make(map[TransactionsKey]int),
	}
}

// StartTransaction implements Client.
func (s *Store) StartTransaction(ctx context.Context) (Transaction, error) {
	return &memTransaction{store: s}, nil
}

// snapshotTransaction returns a copy of the transactions row for id, or
// nil if absent. Callers must hold s.mu.
func (s *Store) snapshotTransaction(id txnid.Id) *TransactionRecord {
	r, ok := s.transactions[id]
	if !ok {
		return nil
	}
	cp := r
	cp.AncestorIds = append([]txnid.Id(nil), r.AncestorIds...)
	cp.Attributes = r.Attributes.Clone()
	cp.PrerequisiteTransactionIds = append([]txnid.Id(nil), r.PrerequisiteTransactionIds...)
	return &cp
}

// TransactionCount returns the number of rows in the transactions table,
// for assertions in tests.
func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

// HasReplica reports whether (id, cellTag) has a transaction_replicas row.
func (s *Store) HasReplica(id txnid.Id, cellTag txnid.CellTag) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.replicas[TransactionReplicasKey{TransactionId: id, CellTag: cellTag}]
	return ok
}

// HasDependent reports whether (prereq, dependent) has a
// dependent_transactions row.
func (s *Store) HasDependent(prereq, dependent txnid.Id) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dependents[DependentTransactionsKey{TransactionId: prereq, DependentTransactionId: dependent}]
	return ok
}

// HasDescendant reports whether (ancestor, descendant) has a
// transaction_descendants row.
func (s *Store) HasDescendant(ancestor, descendant txnid.Id) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.descendants[TransactionDescendantsKey{TransactionId: ancestor, DescendantId: descendant}]
	return ok
}

// memTransaction is the staging buffer for one Sequoia transaction: reads
// go straight to the store (Sequoia transactions in this port do not need
// snapshot isolation to satisfy spec.md's testable properties), writes and
// actions are buffered until Commit.
type memTransaction struct {
	store *Store

	writeTxn    map[txnid.Id]TransactionRecord
	deleteTxn   map[txnid.Id]struct{}
	writeDesc   map[TransactionDescendantsKey]struct{}
	deleteDesc  map[TransactionDescendantsKey]struct{}
	writeRepl   map[TransactionReplicasKey]struct{}
	deleteRepl  map[TransactionReplicasKey]struct{}
	writeDep    map[DependentTransactionsKey]struct{}
	deleteDep   map[DependentTransactionsKey]struct{}

	locks        []TransactionsKey
	stagedActions []stagedAction

	committed bool
}

type stagedAction struct {
	cellTag txnid.CellTag
	action  actions.Action
}

func (t *memTransaction) GenerateObjectId(kind txnid.ObjectKind, cellTag txnid.CellTag) txnid.Id {
	return t.store.generator.Generate(kind, cellTag)
}

func (t *memTransaction) LookupTransactions(_ context.Context, keys []TransactionsKey) ([]*TransactionRecord, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	out := make([]*TransactionRecord, len(keys))
	for i, k := range keys {
		if pending, ok := t.writeTxn[k.TransactionId]; ok {
			cp := pending
			out[i] = &cp
			continue
		}
		if _, deleted := t.deleteTxn[k.TransactionId]; deleted {
			continue
		}
		out[i] = t.store.snapshotTransaction(k.TransactionId)
	}
	return out, nil
}

func (t *memTransaction) LookupReplicas(_ context.Context, keys []TransactionReplicasKey) ([]*TransactionReplicasRecord, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	out := make([]*TransactionReplicasRecord, len(keys))
	for i, k := range keys {
		if _, ok := t.writeRepl[k]; ok {
			out[i] = &TransactionReplicasRecord{Key: k}
			continue
		}
		if _, deleted := t.deleteRepl[k]; deleted {
			continue
		}
		if _, ok := t.store.replicas[k]; ok {
			out[i] = &TransactionReplicasRecord{Key: k}
		}
	}
	return out, nil
}

func (t *memTransaction) SelectDescendants(_ context.Context, p Predicate) ([]TransactionDescendantsRecord, error) {
	want := idSet(p.TransactionIdIn)
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []TransactionDescendantsRecord
	for k := range t.store.descendants {
		if _, ok := t.deleteDesc[k]; ok {
			continue
		}
		if _, ok := want[k.TransactionId]; ok {
			out = append(out, TransactionDescendantsRecord{Key: k})
		}
	}
	for k := range t.writeDesc {
		if _, ok := want[k.TransactionId]; ok {
			out = append(out, TransactionDescendantsRecord{Key: k})
		}
	}
	return out, nil
}

func (t *memTransaction) SelectDependents(_ context.Context, p Predicate) ([]DependentTransactionsRecord, error) {
	want := idSet(p.TransactionIdIn)
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []DependentTransactionsRecord
	for k := range t.store.dependents {
		if _, ok := t.deleteDep[k]; ok {
			continue
		}
		if _, ok := want[k.TransactionId]; ok {
			out = append(out, DependentTransactionsRecord{Key: k})
		}
	}
	for k := range t.writeDep {
		if _, ok := want[k.TransactionId]; ok {
			out = append(out, DependentTransactionsRecord{Key: k})
		}
	}
	return out, nil
}

func (t *memTransaction) SelectReplicas(_ context.Context, p Predicate) ([]TransactionReplicasRecord, error) {
	want := idSet(p.TransactionIdIn)
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []TransactionReplicasRecord
	for k := range t.store.replicas {
		if _, ok := t.deleteRepl[k]; ok {
			continue
		}
		if _, ok := want[k.TransactionId]; ok {
			out = append(out, TransactionReplicasRecord{Key: k})
		}
	}
	for k := range t.writeRepl {
		if _, ok := want[k.TransactionId]; ok {
			out = append(out, TransactionReplicasRecord{Key: k})
		}
	}
	return out, nil
}

func (t *memTransaction) LockRow(key TransactionsKey, _ LockMode) {
	t.locks = append(t.locks, key)
}

func (t *memTransaction) WriteTransaction(record TransactionRecord) {
	if t.writeTxn == nil {
		t.writeTxn = make(map[txnid.Id]TransactionRecord)
	}
	t.writeTxn[record.Key.TransactionId] = record
	if t.deleteTxn != nil {
		delete(t.deleteTxn, record.Key.TransactionId)
	}
}

func (t *memTransaction) WriteDescendant(record TransactionDescendantsRecord) {
	if t.writeDesc == nil {
		t.writeDesc = make(map[TransactionDescendantsKey]struct{})
	}
	t.writeDesc[record.Key] = struct{}{}
}

func (t *memTransaction) WriteReplica(record TransactionReplicasRecord) {
	if t.writeRepl == nil {
		t.writeRepl = make(map[TransactionReplicasKey]struct{})
	}
	t.writeRepl[record.Key] = struct{}{}
}

func (t *memTransaction) WriteDependent(record DependentTransactionsRecord) {
	if t.writeDep == nil {
		t.writeDep = make(map[DependentTransactionsKey]struct{})
	}
	t.writeDep[record.Key] = struct{}{}
}

func (t *memTransaction) DeleteTransaction(key TransactionsKey) {
	if t.deleteTxn == nil {
		t.deleteTxn = make(map[txnid.Id]struct{})
	}
	t.deleteTxn[key.TransactionId] = struct{}{}
	if t.writeTxn != nil {
		delete(t.writeTxn, key.TransactionId)
	}
}

func (t *memTransaction) DeleteDescendant(key TransactionDescendantsKey) {
	if t.deleteDesc == nil {
		t.deleteDesc = make(map[TransactionDescendantsKey]struct{})
	}
	t.deleteDesc[key] = struct{}{}
}

func (t *memTransaction) DeleteReplica(key TransactionReplicasKey) {
	if t.deleteRepl == nil {
		t.deleteRepl = make(map[TransactionReplicasKey]struct{})
	}
	t.deleteRepl[key] = struct{}{}
}

func (t *memTransaction) DeleteDependent(key DependentTransactionsKey) {
	if t.deleteDep == nil {
		t.deleteDep = make(map[DependentTransactionsKey]struct{})
	}
	t.deleteDep[key] = struct{}{}
}

func (t *memTransaction) AddTransactionAction(cellTag txnid.CellTag, action actions.Action) {
	t.stagedActions = append(t.stagedActions, stagedAction{cellTag: cellTag, action: action})
}

// Commit applies every staged mutation atomically under the store's lock,
// then dispatches staged actions in order. This is the port's expression
// of "a single Sequoia transaction's worth of work" committing atomically
// with participant-action dispatch (spec.md §4.1, §4.5).
func (t *memTransaction) Commit(ctx context.Context, opts CommitOptions) error {
	t.store.mu.Lock()
	for id, rec := range t.writeTxn {
		t.store.transactions[id] = rec
	}
	for id := range t.deleteTxn {
		delete(t.store.transactions, id)
	}
	for k := range t.writeDesc {
		t.store.descendants[k] = struct{}{}
	}
	for k := range t.deleteDesc {
		delete(t.store.descendants, k)
	}
	for k := range t.writeRepl {
		t.store.replicas[k] = struct{}{}
	}
	for k := range t.deleteRepl {
		delete(t.store.replicas, k)
	}
	for k := range t.writeDep {
		t.store.dependents[k] = struct{}{}
	}
	for k := range t.deleteDep {
		delete(t.store.dependents, k)
	}
	for _, k := range t.locks {
		t.store.locks[k]++
	}
	dispatcher := t.store.dispatcher
	staged := append([]stagedAction(nil), t.stagedActions...)
	t.committed = true
	t.store.mu.Unlock()

	if dispatcher == nil {
		return nil
	}
	for _, sa := range staged {
		if err := dispatcher.Dispatch(ctx, sa.cellTag, sa.action); err != nil {
			return err
		}
	}
	return nil
}

func idSet(ids []txnid.Id) map[txnid.Id]struct{} {
	m := make(map[txnid.Id]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// SortByTransactionId stable-sorts replicas by the lexical byte encoding
// of their transaction ID (spec.md §4.7 step 4). The finish plan's
// replicasFor then picks each transaction's replicas by a linear scan.
func SortByTransactionId(replicas []TransactionReplicasRecord) {
	sort.SliceStable(replicas, func(i, j int) bool {
		return txnid.Less(replicas[i].Key.TransactionId, replicas[j].Key.TransactionId)
	})
}
