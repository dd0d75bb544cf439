package sequoia

import (
	"errors"
	"fmt"

	"github.com/cypressdb/coordinator/internal/txnid"
)

// NoSuchTransactionError is raised when a plan's target, parent, or
// prerequisite lookup finds no row in the transactions table (spec.md §7).
type NoSuchTransactionError struct {
	Id txnid.Id
}

func (e *NoSuchTransactionError) Error() string {
	return fmt.Sprintf("no such transaction %s", e.Id)
}

// NewNoSuchTransactionError constructs a NoSuchTransactionError.
func NewNoSuchTransactionError(id txnid.Id) error {
	return &NoSuchTransactionError{Id: id}
}

// PrerequisiteCheckFailedError wraps a NoSuchTransactionError discovered
// while validating prerequisite transactions (spec.md §7: "Raised as
// PrerequisiteCheckFailed ⟶ NoSuchTransaction(id)").
type PrerequisiteCheckFailedError struct {
	Id txnid.Id
}

func (e *PrerequisiteCheckFailedError) Error() string {
	return fmt.Sprintf("prerequisite check failed: %s", (&NoSuchTransactionError{Id: e.Id}).Error())
}

func (e *PrerequisiteCheckFailedError) Unwrap() error {
	return &NoSuchTransactionError{Id: e.Id}
}

// NewPrerequisiteCheckFailedError constructs a PrerequisiteCheckFailedError.
func NewPrerequisiteCheckFailedError(id txnid.Id) error {
	return &PrerequisiteCheckFailedError{Id: id}
}

// TableCorruptedError reports that an invariant from spec.md §3 was
// violated on read. The core logs an operator-actionable alert naming the
// operation and this table, then re-raises the error as-is.
type TableCorruptedError struct {
	Table Table
	Cause string
}

func (e *TableCorruptedError) Error() string {
	return fmt.Sprintf("Sequoia table %q is corrupted: %s", e.Table, e.Cause)
}

// NewTableCorruptedError constructs a TableCorruptedError.
func NewTableCorruptedError(table Table, cause string) error {
	return &TableCorruptedError{Table: table, Cause: cause}
}

// RetriableError wraps any error the ambient Sequoia client classifies as
// retriable, so the RPC layer can schedule a retry (spec.md §7).
type RetriableError struct {
	Cause error
}

func (e *RetriableError) Error() string {
	return fmt.Sprintf("Sequoia retriable error: %v", e.Cause)
}

func (e *RetriableError) Unwrap() error { return e.Cause }

// NewRetriableError wraps cause as a RetriableError.
func NewRetriableError(cause error) error {
	return &RetriableError{Cause: cause}
}

// UnsupportedFeatureError is raised at plan-construction time for requests
// the core deliberately refuses to support (e.g. commit with
// prerequisites, spec.md §9 Open Question (a)).
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("unsupported feature: %s", e.Feature)
}

// NewUnsupportedFeatureError constructs an UnsupportedFeatureError.
func NewUnsupportedFeatureError(feature string) error {
	return &UnsupportedFeatureError{Feature: feature}
}

// IsTableCorrupted reports whether err's chain contains a TableCorruptedError.
func IsTableCorrupted(err error) (*TableCorruptedError, bool) {
	var tc *TableCorruptedError
	if errors.As(err, &tc) {
		return tc, true
	}
	return nil, false
}

// IsRetriable reports whether the ambient client classifies err as a
// retriable Sequoia error. The in-memory reference client never produces
// retriable errors on its own; callers (tests) can wrap a sentinel using
// NewRetriableError directly to exercise the classification path.
func IsRetriable(err error) bool {
	var re *RetriableError
	return errors.As(err, &re)
}
