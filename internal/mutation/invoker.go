package mutation

import (
	"context"
	"errors"
)

// errInvokerClosed is returned by Run when the invoker has been shut down.
var errInvokerClosed = errors.New("mutation: invoker closed")

// Invoker is a small fixed-size worker pool: the Go analogue of the "heavy
// invoker" thread pool the original runs Sequoia mutations on (spec.md
// §5, "invoker affinity"). Every task submitted to Run executes on
// exactly one of the pool's goroutines, start to finish.
type Invoker struct {
	tasks chan func()
	done  chan struct{}
}

// NewInvoker starts a pool of workers goroutines. workers <= 0 is treated
// as 1.
func NewInvoker(workers int) *Invoker {
	if workers <= 0 {
		workers = 1
	}
	inv := &Invoker{
		tasks: make(chan func()),
		done:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go inv.loop()
	}
	return inv
}

func (inv *Invoker) loop() {
	for {
		select {
		case f, ok := <-inv.tasks:
			if !ok {
				return
			}
			f()
		case <-inv.done:
			return
		}
	}
}

// Run submits f to the pool and blocks until f returns or ctx is
// canceled. If ctx is canceled before f completes, Run returns ctx.Err()
// immediately without waiting for f — the plan's continuation is
// discarded, matching spec.md §5's cancellation semantics; f itself keeps
// running to completion on its worker goroutine since it owns no shared
// state once orphaned.
func (inv *Invoker) Run(ctx context.Context, f func(ctx context.Context)) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		f(ctx)
	}

	select {
	case inv.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-inv.done:
		return errInvokerClosed
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new work. Workers mid-task finish their current
// task before exiting.
func (inv *Invoker) Close() {
	close(inv.done)
}
