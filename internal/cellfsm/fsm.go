// Package cellfsm implements a raft-backed master-cell state machine: a
// reference "master state machine on each cell" (spec.md §1 scopes the
// real one out of the core's responsibility) that applies dispatched
// participant actions to an in-memory ledger and lets a plan wait until a
// follower has caught up with the leader before replying to its caller.
package cellfsm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/txnid"
)

// Record is the ledger entry a Cell keeps per transaction it has seen an
// action for, used only for inspection/debugging (through Cell.Record),
// never by the coordination logic itself.
type Record struct {
	LastAction actions.Kind
	Committed  bool
	Aborted    bool
}

// Cell is a raft.FSM that applies dispatched actions to a replicated,
// per-cell ledger. It implements actions.Dispatcher by proposing each
// action as a raft log entry and waiting for it to be applied.
type Cell struct {
	mu      sync.RWMutex
	ledger  map[txnid.Id]Record
	applied uint64

	raft *raft.Raft
}

// New constructs a Cell with an empty ledger. Call Attach once the raft
// node that will drive this FSM is available (raft.NewRaft needs the FSM
// passed in before it can be constructed, so the two are wired in two
// steps, matching the teacher's NewFSM-then-NewRaft ordering in
// cmd/gojodb_server/main.go).
func New() *Cell {
	return &Cell{ledger: make(map[txnid.Id]Record)}
}

// Attach records the raft handle this Cell is backed by, enabling
// SyncWithLeader and Dispatch. Not safe to call concurrently with use.
func (c *Cell) Attach(r *raft.Raft) {
	c.raft = r
}

// logEntry is the JSON payload replicated through raft for one dispatched
// action.
type logEntry struct {
	CellTag txnid.CellTag   `json:"cell_tag"`
	Kind    actions.Kind    `json:"kind"`
	Action  actions.Action  `json:"action"`
}

// Dispatch implements actions.Dispatcher by proposing action as a raft
// log entry and blocking until the local FSM has applied it (i.e. until
// it has gone through Raft.Apply's normal commit-then-apply sequence).
func (c *Cell) Dispatch(ctx context.Context, cellTag txnid.CellTag, action actions.Action) error {
	if c.raft == nil {
		return fmt.Errorf("cellfsm: Dispatch called before Attach")
	}
	payload, err := json.Marshal(logEntry{CellTag: cellTag, Kind: action.Kind, Action: action})
	if err != nil {
		return fmt.Errorf("cellfsm: marshal action: %w", err)
	}

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	future := c.raft.Apply(payload, timeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("cellfsm: raft apply: %w", err)
	}
	if res := future.Response(); res != nil {
		if err, ok := res.(error); ok && err != nil {
			return fmt.Errorf("cellfsm: fsm apply: %w", err)
		}
	}
	return nil
}

// SyncWithLeader implements plans.LeaderSyncer: it issues a raft barrier,
// which only completes once this node has applied every entry the
// leader had committed at the time the barrier was issued — the raft
// idiom for "wait until caught up with the leader" (spec.md §4.8's
// "sync with leader" step).
func (c *Cell) SyncWithLeader(ctx context.Context) error {
	if c.raft == nil {
		return fmt.Errorf("cellfsm: SyncWithLeader called before Attach")
	}
	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	future := c.raft.Barrier(timeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("cellfsm: raft barrier: %w", err)
	}
	return nil
}

// Apply implements raft.FSM.
func (c *Cell) Apply(l *raft.Log) interface{} {
	var entry logEntry
	if err := json.Unmarshal(l.Data, &entry); err != nil {
		return fmt.Errorf("cellfsm: unmarshal log entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = l.Index

	target := targetId(entry.Action)
	if target.IsNull() {
		return nil
	}
	rec := c.ledger[target]
	rec.LastAction = entry.Kind
	switch entry.Kind {
	case actions.KindCommitCypressTransaction, actions.KindCommitTransaction:
		rec.Committed = true
	case actions.KindAbortCypressTransaction, actions.KindAbortTransaction:
		rec.Aborted = true
	}
	c.ledger[target] = rec
	return nil
}

// targetId extracts the transaction an action pertains to, for ledger
// bookkeeping; actions with no single natural target (replica markers)
// are skipped.
func targetId(a actions.Action) txnid.Id {
	switch a.Kind {
	case actions.KindStartCypressTransaction:
		return a.Start.HintId
	case actions.KindCommitCypressTransaction:
		return a.Commit.TransactionId
	case actions.KindAbortCypressTransaction:
		return a.Abort.TransactionId
	case actions.KindCommitTransaction:
		return a.CommitParticipant.TransactionId
	case actions.KindAbortTransaction:
		return a.AbortParticipant.TransactionId
	default:
		return txnid.Null
	}
}

// Record returns a snapshot of the ledger entry for id, for inspection.
// No command of cmd/cypressctl or cmd/coordinatord calls it.
func (c *Cell) Record(id txnid.Id) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.ledger[id]
	return rec, ok
}

// Snapshot implements raft.FSM.
func (c *Cell) Snapshot() (raft.FSMSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ledgerCopy := make(map[txnid.Id]Record, len(c.ledger))
	for k, v := range c.ledger {
		ledgerCopy[k] = v
	}
	return &snapshot{ledger: ledgerCopy}, nil
}

// Restore implements raft.FSM.
func (c *Cell) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var data struct {
		Ledger map[txnid.Id]Record `json:"ledger"`
	}
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return fmt.Errorf("cellfsm: decode snapshot: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ledger = data.Ledger
	return nil
}

type snapshot struct {
	ledger map[txnid.Id]Record
}

func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	defer sink.Close()
	bytes, err := json.Marshal(struct {
		Ledger map[txnid.Id]Record `json:"ledger"`
	}{Ledger: s.ledger})
	if err != nil {
		return fmt.Errorf("cellfsm: marshal snapshot: %w", err)
	}
	_, err = sink.Write(bytes)
	return err
}

func (s *snapshot) Release() {}
