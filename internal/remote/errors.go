// ABOUTME: Classified remote store errors
// ABOUTME: Separates expected absence from transient and irrecoverable failures
package remote

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound marks the expected absence of a remote row
var ErrNotFound = errors.New("remote row not found")

// ErrOffline is returned by the Offline store
var ErrOffline = errors.New("remote store offline")

// Class tells the caller whether retrying can help
type Class int

const (
	// Transient failures (network, timeouts, 5xx) may succeed on retry
	Transient Class = iota
	// Irrecoverable failures (bad request, auth, schema) will not
	Irrecoverable
)

func (c Class) String() string {
	if c == Irrecoverable {
		return "irrecoverable"
	}
	return "transient"
}

// Error wraps a remote failure with its operation, table and class
type Error struct {
	Op    string
	Table string
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote %s %s (%s): %v", e.Op, e.Table, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Irrecoverable lets retry loops fail fast
func (e *Error) Irrecoverable() bool { return e.Class == Irrecoverable }

// Wrap classifies err as transient unless it already carries a class.
// ErrNotFound and nil pass through unchanged.
func Wrap(op, table string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Op: op, Table: table, Class: Transient, Err: err}
}

// Irrecoverablef builds an irrecoverable error
func Irrecoverablef(op, table, format string, args ...any) error {
	return &Error{Op: op, Table: table, Class: Irrecoverable, Err: fmt.Errorf(format, args...)}
}

// IsNotFound reports whether err marks an absent row
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsIrrecoverable reports whether err should not be retried
func IsIrrecoverable(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Class == Irrecoverable
}

// IsTransient reports whether err is a failure that may succeed on retry.
// Context deadlines count as transient; cancellation does not.
func IsTransient(err error) bool {
	if err == nil || IsNotFound(err) || errors.Is(err, context.Canceled) {
		return false
	}
	return !IsIrrecoverable(err)
}
