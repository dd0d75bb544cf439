package actions

import (
	"context"

	"github.com/cypressdb/coordinator/internal/txnid"
)

// Dispatcher delivers a participant action to the master state machine of
// a cell. Implementations are the "master state machine on each cell"
// spec.md §1 scopes out of the core's own responsibility; internal/cellfsm
// and internal/transport/quictransport supply concrete ones.
type Dispatcher interface {
	Dispatch(ctx context.Context, cellTag txnid.CellTag, action Action) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, cellTag txnid.CellTag, action Action) error

func (f DispatcherFunc) Dispatch(ctx context.Context, cellTag txnid.CellTag, action Action) error {
	return f(ctx, cellTag, action)
}

// Router dispatches by looking up a per-cell Dispatcher. Cells with no
// registered dispatcher are simply not delivered to (used in tests that
// only care about the rows staged, not the transport).
type Router struct {
	byCell map[txnid.CellTag]Dispatcher
}

// NewRouter builds a Router with no registered cells.
func NewRouter() *Router {
	return &Router{byCell: make(map[txnid.CellTag]Dispatcher)}
}

// Register associates cellTag with d. Re-registering replaces the entry.
func (r *Router) Register(cellTag txnid.CellTag, d Dispatcher) {
	r.byCell[cellTag] = d
}

// Dispatch implements Dispatcher.
func (r *Router) Dispatch(ctx context.Context, cellTag txnid.CellTag, action Action) error {
	d, ok := r.byCell[cellTag]
	if !ok {
		return nil
	}
	return d.Dispatch(ctx, cellTag, action)
}
