// Package mutation implements the Sequoia-mutation skeleton: the generic
// start-transaction / run-plan / commit / classify-error lifecycle every
// operation plan runs through (spec.md §4.5). It is the port of the
// source's TSequoiaMutation<TResult> template.
package mutation

import (
	"context"
	"time"

	"github.com/cypressdb/coordinator/internal/obslog"
	"github.com/cypressdb/coordinator/internal/sequoia"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Apply is the body of a Sequoia mutation: given a fresh Transaction, do
// the plan's work and return a result. It must not call Commit itself —
// Mutation.Run does that once Apply returns successfully.
type Apply[T any] func(ctx context.Context, txn sequoia.Transaction) (T, error)

// Mutation runs an Apply[T] to completion against a fresh Sequoia
// transaction, on a dedicated Invoker goroutine, wrapping the attempt in
// an OpenTelemetry span, a Prometheus latency/outcome recording, and a
// zap log line.
type Mutation[T any] struct {
	Name    string
	Client  sequoia.Client
	Invoker *Invoker
	Logger  *zap.Logger
	Metrics *Metrics
	Tracer  trace.Tracer
}

// New builds a Mutation named name. logger and metrics may be nil to
// disable logging/metrics respectively.
func New[T any](name string, client sequoia.Client, invoker *Invoker, logger *zap.Logger, metrics *Metrics) *Mutation[T] {
	return &Mutation[T]{
		Name:    name,
		Client:  client,
		Invoker: invoker,
		Logger:  logger,
		Metrics: metrics,
		Tracer:  otel.Tracer("github.com/cypressdb/coordinator/internal/mutation"),
	}
}

// Run executes apply against a new Sequoia transaction and commits it
// with opts, on the mutation's Invoker. The returned error is apply's or
// Commit's error, classified (logged and metriced) as corrupted,
// retriable or fatal per spec.md §4.5/§7 before being returned unwrapped.
func (m *Mutation[T]) Run(ctx context.Context, opts sequoia.CommitOptions, apply Apply[T]) (T, error) {
	var zero T
	var result T
	var attemptErr error

	runErr := m.Invoker.Run(ctx, func(ctx context.Context) {
		ctx, span := m.Tracer.Start(ctx, m.Name)
		defer span.End()

		start := time.Now()
		result, attemptErr = m.attempt(ctx, opts, apply)
		elapsed := time.Since(start)

		outcome := outcomeOf(attemptErr)
		m.record(ctx, outcome, elapsed, attemptErr)

		if attemptErr != nil {
			span.RecordError(attemptErr)
			span.SetStatus(codes.Error, attemptErr.Error())
		}
	})
	if runErr != nil {
		return zero, runErr
	}
	if attemptErr != nil {
		return zero, attemptErr
	}
	return result, nil
}

func (m *Mutation[T]) attempt(ctx context.Context, opts sequoia.CommitOptions, apply Apply[T]) (T, error) {
	var zero T
	txn, err := m.Client.StartTransaction(ctx)
	if err != nil {
		return zero, err
	}
	result, err := apply(ctx, txn)
	if err != nil {
		return zero, err
	}
	if err := txn.Commit(ctx, opts); err != nil {
		return zero, err
	}
	return result, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if _, ok := sequoia.IsTableCorrupted(err); ok {
		return "corrupted"
	}
	if sequoia.IsRetriable(err) {
		return "retriable"
	}
	return "fatal"
}

func (m *Mutation[T]) record(ctx context.Context, outcome string, elapsed time.Duration, err error) {
	if m.Metrics != nil {
		m.Metrics.AttemptLatency.WithLabelValues(m.Name).Observe(elapsed.Seconds())
		m.Metrics.Outcomes.WithLabelValues(m.Name, outcome).Inc()
		if outcome == "corrupted" {
			m.Metrics.TableCorrupted.Inc()
		}
	}
	if m.Logger == nil {
		return
	}
	logger := obslog.WithTraceFields(m.Logger, ctx)
	fields := []zap.Field{zap.String("operation", m.Name), zap.Duration("elapsed", elapsed)}
	switch outcome {
	case "success":
		logger.Debug("sequoia mutation succeeded", fields...)
	case "corrupted":
		tc, _ := sequoia.IsTableCorrupted(err)
		logger.Error("sequoia table corrupted", append(fields, zap.String("table", string(tc.Table)), zap.Error(err))...)
	case "retriable":
		logger.Warn("sequoia mutation hit a retriable error", append(fields, zap.Error(err))...)
	default:
		logger.Error("sequoia mutation failed", append(fields, zap.Error(err))...)
	}
}
