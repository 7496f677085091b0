// Package errs defines the error kinds the recommendation core
// distinguishes between when deciding how a failure is logged, retried,
// or isolated.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// InvalidRequest is a malformed input, rejected at the boundary with no
	// partial work performed.
	InvalidRequest Kind = iota
	// ModelNotReady means inference was requested before any model trained;
	// the orchestrator downgrades to the popularity fallback.
	ModelNotReady
	// ComponentFailure means a single algorithm failed internally; it
	// contributes an empty candidate list while the others proceed.
	ComponentFailure
	// Transient is a persistence or stream I/O failure, retried with
	// bounded backoff; on permanent failure the triggering event is
	// dropped and counted, never blocking unrelated work.
	Transient
	// Fatal is a corrupt model snapshot; the snapshot is rejected and the
	// previously loaded snapshot, if any, keeps serving.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case InvalidRequest:
		return "invalid_request"
	case ModelNotReady:
		return "model_not_ready"
	case ComponentFailure:
		return "component_failure"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and optional context used for
// structured logging (algorithm name, event id, ...).
type Error struct {
	Kind      Kind
	Algorithm string
	EventID   string
	Err       error
}

func (e *Error) Error() string {
	if e.Algorithm != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Algorithm, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func NewForAlgorithm(kind Kind, algorithm string, err error) *Error {
	return &Error{Kind: kind, Algorithm: algorithm, Err: err}
}

// Is reports whether err is, or wraps, an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
