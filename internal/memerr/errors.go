// Package memerr defines the typed error kinds shared by every component of
// the memory engine, so the orchestrator and any HTTP collaborator can map
// them to transport-level behavior without inspecting error strings.
package memerr

import (
	"errors"
	"fmt"
)

// Kind is a coarse classification of a failure, stable across components.
type Kind int

const (
	Internal Kind = iota
	NotFound
	Unauthorized
	Forbidden
	Validation
	DuplicateMemory
	DependencyUnavailable
	Timeout
	ExtractionParseError
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case Validation:
		return "validation"
	case DuplicateMemory:
		return "duplicate_memory"
	case DependencyUnavailable:
		return "dependency_unavailable"
	case Timeout:
		return "timeout"
	case ExtractionParseError:
		return "extraction_parse_error"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, memerr.ErrNotFound) style checks work by comparing Kind
// against a sentinel Error carrying only a Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs an *Error for the given kind, op and cause.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf reports the Kind of err, or Internal if err does not carry one.
// Dependency timeouts are normalized to DependencyUnavailable per the
// error-handling design: a Timeout is treated as a dependency being down.
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == Timeout {
			return DependencyUnavailable
		}
		return e.Kind
	}
	return Internal
}

// sentinel helpers so callers can do errors.Is(err, memerr.ErrNotFound).
var (
	ErrNotFound              = &Error{Kind: NotFound}
	ErrUnauthorized          = &Error{Kind: Unauthorized}
	ErrForbidden             = &Error{Kind: Forbidden}
	ErrValidation            = &Error{Kind: Validation}
	ErrDuplicateMemory       = &Error{Kind: DuplicateMemory}
	ErrDependencyUnavailable = &Error{Kind: DependencyUnavailable}
	ErrTimeout               = &Error{Kind: Timeout}
	ErrExtractionParse       = &Error{Kind: ExtractionParseError}
)
