package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookups that target a row which does not exist
var ErrNotFound = errors.New("not found")

// ValidationError marks malformed or precision-violating input. It is raised before any write
// and is never retried
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConnectionError means no database connection could be obtained. Nothing was committed
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("database connection failed: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// TransactionError wraps a failure during commit. The transaction was rolled back
type TransactionError struct {
	Err error
}

func (e *TransactionError) Error() string { return fmt.Sprintf("transaction failed: %v", e.Err) }
func (e *TransactionError) Unwrap() error { return e.Err }

// RollbackError means the rollback itself failed. Connection state is unknown and an operator
// must look at it
type RollbackError struct {
	Cause error
	Err   error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback failed: %v (cause: %v)", e.Err, e.Cause)
}
func (e *RollbackError) Unwrap() error { return e.Err }

// AlreadyExistsError is a true uniqueness violation on a non-idempotent code path. It signals a
// caller bug, not a transient condition
type AlreadyExistsError struct {
	Entity string
	Key    string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.Key)
}

// SyncDeliveryError is a sink write failure inside a job handler. It goes back to the job engine
// unchanged so that its retry policy applies
type SyncDeliveryError struct {
	Table string
	Err   error
}

func (e *SyncDeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.Table, e.Err)
}
func (e *SyncDeliveryError) Unwrap() error { return e.Err }

// IsFatal reports whether retrying err can never succeed
func IsFatal(err error) bool {
	var ve *ValidationError
	var ae *AlreadyExistsError
	var ue *UnknownJobError
	return errors.As(err, &ve) || errors.As(err, &ae) || errors.As(err, &ue) || errors.Is(err, ErrNotFound)
}

// UnknownJobError is returned when a job record carries a kind this build cannot handle
type UnknownJobError struct {
	Kind string
}

func (e *UnknownJobError) Error() string { return fmt.Sprintf("unknown job kind %q", e.Kind) }

// RequireSecondPrecision rejects timestamps carrying sub-second components
func RequireSecondPrecision(field string, t time.Time) error {
	if t.IsZero() {
		return NewValidationError(field, "timestamp is required")
	}
	if t.Nanosecond() != 0 {
		return NewValidationError(field, "timestamp %s has sub-second precision", t.Format(time.RFC3339Nano))
	}
	return nil
}
