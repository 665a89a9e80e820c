// Package coreerr defines the fixed set of ErrorKinds the core fails with
// (spec.md §7), wrapping underlying causes via github.com/pkg/errors so
// callers can still unwrap to the original failure for diagnostics.
package coreerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the fixed categories the core's public API ever returns.
type Kind int

const (
	// NotFound: identifier lookup failed; non-fatal for callers that probe.
	NotFound Kind = iota
	// Corrupt: checksum mismatch, broken delta chain, roster fails check_sane.
	Corrupt
	// Conflict: merge produced unresolved conflicts; carries the result.
	Conflict
	// UserError: invalid path, bad date, duplicate name on attach, etc.
	UserError
	// Invalid: API contract violated (e.g. null id passed where disallowed).
	Invalid
	// Internal: an invariant the code controls was broken — always a bug.
	Internal
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case Corrupt:
		return "Corrupt"
	case Conflict:
		return "Conflict"
	case UserError:
		return "UserError"
	case Invalid:
		return "Invalid"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// CoreError is the error type every core operation returns.
type CoreError struct {
	Kind    Kind
	Message string
	cause   error
	// Detail carries kind-specific payload, e.g. *merge.RosterMergeResult
	// for Conflict, or the failing table name for Corrupt.
	Detail interface{}
}

func (e *CoreError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is/As see through to the cause.
func (e *CoreError) Unwrap() error { return e.cause }

// New builds a CoreError with no underlying cause.
func New(kind Kind, format string, args ...interface{}) *CoreError {
	return &CoreError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a CoreError around an existing cause, preserving its stack
// via pkg/errors.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *CoreError {
	return &CoreError{Kind: kind, Message: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}

// WithDetail attaches kind-specific payload and returns e for chaining.
func (e *CoreError) WithDetail(d interface{}) *CoreError {
	e.Detail = d
	return e
}

// KindOf extracts the Kind from err if it is (or wraps) a *CoreError,
// defaulting to Internal for unrecognized errors — an invariant the core
// itself controls was broken if a raw error reaches the boundary.
func KindOf(err error) Kind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Internal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
