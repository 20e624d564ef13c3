// Package errors provides structured error types used across the registry.
// Callers check kinds with errors.As or the Is helper instead of matching strings.
package errors

import (
	"errors"
	"fmt"
)

// NormalizationError reports that a raw identifier could not be canonicalized.
// It is a field-level failure: the caller drops that field and keeps matching.
type NormalizationError struct {
	Op     string // package.Function
	Kind   string // identifier kind, e.g. PHONE
	Reason string // never contains the raw value
}

func (e *NormalizationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Kind != "" {
		return fmt.Sprintf("normalization: %s: %s: %s", e.Op, e.Kind, e.Reason)
	}
	return fmt.Sprintf("normalization: %s: %s", e.Op, e.Reason)
}

func (e *NormalizationError) Operation() string { return e.Op }
func (e *NormalizationError) Message() string   { return e.Reason }
func (e *NormalizationError) Context() map[string]any {
	return map[string]any{"op": e.Op, "kind": e.Kind, "reason": e.Reason}
}

func NewNormalization(op, kind, reason string) error {
	return &NormalizationError{Op: op, Kind: kind, Reason: reason}
}

// ValidationError indicates invalid config or policy.
type ValidationError struct {
	Op  string
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("validation: %s: %s", e.Op, e.Msg)
}

func (e *ValidationError) Unwrap() error           { return e.Err }
func (e *ValidationError) Operation() string       { return e.Op }
func (e *ValidationError) Message() string         { return e.Msg }
func (e *ValidationError) Context() map[string]any { return map[string]any{"op": e.Op, "msg": e.Msg} }

func NewValidation(op, msg string, err error) error {
	return &ValidationError{Op: op, Msg: msg, Err: err}
}

// DBError represents storage failures.
type DBError struct {
	Op  string
	Msg string
	Err error
}

func (e *DBError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("db: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("db: %s: %s", e.Op, e.Msg)
}

func (e *DBError) Unwrap() error           { return e.Err }
func (e *DBError) Operation() string       { return e.Op }
func (e *DBError) Message() string         { return e.Msg }
func (e *DBError) Context() map[string]any { return map[string]any{"op": e.Op, "msg": e.Msg} }

func NewDB(op, msg string, err error) error { return &DBError{Op: op, Msg: msg, Err: err} }

var (
	// ErrNotFound is wrapped by stores when a profile does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is wrapped by stores on a unique key collision.
	ErrAlreadyExists = errors.New("already exists")
)

// Kind sentinels for use with Is.
var (
	ErrNormalization = &NormalizationError{}
	ErrValidation    = &ValidationError{}
	ErrDB            = &DBError{}
)

// Is reports whether err carries the kind of target. Typed targets match by
// type through errors.As; anything else falls back to errors.Is.
func Is(err, target error) bool {
	if err == nil || target == nil {
		return errors.Is(err, target)
	}
	switch target.(type) {
	case *NormalizationError:
		var n *NormalizationError
		return errors.As(err, &n)
	case *ValidationError:
		var v *ValidationError
		return errors.As(err, &v)
	case *DBError:
		var d *DBError
		return errors.As(err, &d)
	default:
		return errors.Is(err, target)
	}
}
