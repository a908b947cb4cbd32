// Package errors provides the taxonomy of named error kinds used across
// the orchestration engine (spec §7): errors are tagged values, not bare
// strings, so callers can branch on kind with errors.Is/errors.As instead
// of parsing messages.
package errors

import (
	"errors"
	"fmt"
)

// OperationError carries structured context about a failed operation.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("failed to %s", e.Operation)
	if e.Component != "" {
		msg += fmt.Sprintf(", component: %s", e.Component)
	}
	if e.Resource != "" {
		msg += fmt.Sprintf(", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(", cause: %s", e.Cause.Error())
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a minimal OperationError for the common case of a
// single action plus an optional cause.
func FailedTo(action string, cause error) error {
	return &OperationError{Operation: action, Cause: cause}
}

// FailedToWithDetails builds a fully-populated OperationError.
func FailedToWithDetails(action, component, resource string, cause error) error {
	return &OperationError{Operation: action, Component: component, Resource: resource, Cause: cause}
}

// Wrapf wraps err with an additional formatted message, fmt.Errorf style.
// A nil err returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, err)
}

// Sentinel kinds from spec §7. Components convert internal failures into
// one of these before surfacing them to the orchestrator.
var (
	// ErrSafetyViolation: forbidden path, scope overflow, or secret leak. Non-retriable.
	ErrSafetyViolation = errors.New("safety violation")
	// ErrDispatchError: adapter unable to accept the task. Retriable with backoff.
	ErrDispatchError = errors.New("dispatch error")
	// ErrTimeout: wait-for-completion exceeded. Terminal, no retry.
	ErrTimeout = errors.New("wait-for-completion timeout")
	// ErrVerificationFailure: Verifier returned failed. Retriable depends on the failing check.
	ErrVerificationFailure = errors.New("verification failure")
	// ErrPartialCompletion: Verifier returned partial.
	ErrPartialCompletion = errors.New("partial completion")
	// ErrCannotVerify: exception within verification. Terminal, manual_review.
	ErrCannotVerify = errors.New("cannot verify")
	// ErrMaxRetriesExceeded: retry counter overflowed. Terminal.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// Kind wraps one of the sentinel errors above with operation context,
// preserving errors.Is(err, errors.ErrDispatchError) semantics.
func Kind(sentinel error, action string, cause error) error {
	wrapped := FailedTo(action, cause)
	return fmt.Errorf("%w: %s", sentinel, wrapped.Error())
}
