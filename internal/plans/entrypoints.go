package plans

import (
	"context"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/mutation"
	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
	"go.uber.org/zap"
)

// LeaderSyncer blocks until the local peer has applied everything its
// Raft leader has committed, matching the "Hydra handle" spec.md §4.8's
// public wrapper syncs with. internal/cellfsm.Cell implements this via
// raft.Raft.Barrier.
type LeaderSyncer interface {
	SyncWithLeader(ctx context.Context) error
}

// Coordinator wires the four operation plans to the Sequoia-mutation
// skeleton, playing the role of the free functions at the bottom of
// sequoia_integration.cpp (StartCypressTransactionInSequoiaAndReply and
// friends).
type Coordinator struct {
	Client       sequoia.Client
	Invoker      *mutation.Invoker
	Logger       *zap.Logger
	Metrics      *mutation.Metrics
	LocalCellTag txnid.CellTag
	LeaderSync   LeaderSyncer // nil disables the sync-with-leader step
}

// NewCoordinator builds a Coordinator. logger, metrics, and leaderSync may
// be nil.
func NewCoordinator(
	client sequoia.Client,
	invoker *mutation.Invoker,
	logger *zap.Logger,
	metrics *mutation.Metrics,
	localCellTag txnid.CellTag,
	leaderSync LeaderSyncer,
) *Coordinator {
	return &Coordinator{
		Client:       client,
		Invoker:      invoker,
		Logger:       logger,
		Metrics:      metrics,
		LocalCellTag: localCellTag,
		LeaderSync:   leaderSync,
	}
}

func (c *Coordinator) commitOptions() sequoia.CommitOptions {
	return sequoia.CommitOptions{CoordinatorCellTag: c.LocalCellTag}
}

// StartCypressTransactionInSequoiaAndReply runs the start plan.
func (c *Coordinator) StartCypressTransactionInSequoiaAndReply(ctx context.Context, req StartRequest) (StartResult, error) {
	m := mutation.New[StartResult]("StartCypressTransaction", c.Client, c.Invoker, c.Logger, c.Metrics)
	return m.Run(ctx, c.commitOptions(), func(ctx context.Context, txn sequoia.Transaction) (StartResult, error) {
		return Start(ctx, txn, c.LocalCellTag, req)
	})
}

// CommitCypressTransactionInSequoia runs the commit variant of the finish
// plan.
func (c *Coordinator) CommitCypressTransactionInSequoia(
	ctx context.Context,
	targetId txnid.Id,
	commitTimestamp uint64,
	identity actions.AuthenticationIdentity,
) (FinishResult, error) {
	plan, err := NewFinishPlan(FinishRequest{
		Kind:         KindCommit,
		TargetId:     targetId,
		LocalCellTag: c.LocalCellTag,
		Identity:     identity,
		Commit:       &CommitData{CommitTimestamp: commitTimestamp},
	})
	if err != nil {
		return FinishResult{}, err
	}
	m := mutation.New[FinishResult]("CommitCypressTransaction", c.Client, c.Invoker, c.Logger, c.Metrics)
	return m.Run(ctx, c.commitOptions(), func(ctx context.Context, txn sequoia.Transaction) (FinishResult, error) {
		return plan.Run(ctx, txn)
	})
}

// AbortCypressTransactionInSequoiaAndReply runs the abort variant of the
// finish plan.
func (c *Coordinator) AbortCypressTransactionInSequoiaAndReply(
	ctx context.Context,
	targetId txnid.Id,
	force bool,
	identity actions.AuthenticationIdentity,
) (FinishResult, error) {
	plan, err := NewFinishPlan(FinishRequest{
		Kind:         KindAbort,
		TargetId:     targetId,
		LocalCellTag: c.LocalCellTag,
		Identity:     identity,
		Abort:        &AbortData{Force: force},
	})
	if err != nil {
		return FinishResult{}, err
	}
	m := mutation.New[FinishResult]("AbortCypressTransaction", c.Client, c.Invoker, c.Logger, c.Metrics)
	return m.Run(ctx, c.commitOptions(), func(ctx context.Context, txn sequoia.Transaction) (FinishResult, error) {
		return plan.Run(ctx, txn)
	})
}

// AbortExpiredCypressTransactionInSequoia force-aborts a transaction whose
// lease deadline has elapsed, the way a lease-expiry sweep would call in
// rather than a client RPC.
func (c *Coordinator) AbortExpiredCypressTransactionInSequoia(ctx context.Context, targetId txnid.Id) (FinishResult, error) {
	return c.AbortCypressTransactionInSequoiaAndReply(ctx, targetId, true, actions.AuthenticationIdentity{})
}

// ReplicateCypressTransactionsInSequoia runs the replicate plan.
func (c *Coordinator) ReplicateCypressTransactionsInSequoia(ctx context.Context, ids []txnid.Id) error {
	plan := NewReplicatePlan(ReplicateRequest{TransactionIds: ids, LocalCellTag: c.LocalCellTag})
	m := mutation.New[struct{}]("ReplicateCypressTransactions", c.Client, c.Invoker, c.Logger, c.Metrics)
	_, err := m.Run(ctx, c.commitOptions(), func(ctx context.Context, txn sequoia.Transaction) (struct{}, error) {
		return struct{}{}, plan.Run(ctx, txn)
	})
	return err
}

// ReplicateCypressTransactionsInSequoiaAndSyncWithLeader runs the
// replicate plan then blocks on LeaderSync so the caller observes the
// replicated state on the local peer, matching spec.md §4.8's public
// wrapper ("Sequoia commit guarantees leader+quorum, not this peer").
func (c *Coordinator) ReplicateCypressTransactionsInSequoiaAndSyncWithLeader(ctx context.Context, ids []txnid.Id) error {
	if err := c.ReplicateCypressTransactionsInSequoia(ctx, ids); err != nil {
		return err
	}
	if c.LeaderSync == nil {
		return nil
	}
	return c.LeaderSync.SyncWithLeader(ctx)
}
