package core

// errors.go defines the pipeline's error taxonomy, ordered from least to most
// disruptive:
//
//   FieldTransformError  one field; becomes a note, never fatal
//   ValidationError      one row; blocks readiness, surfaced pre-submission
//   ResolutionError      one batch call; retried, degrades to proceed-unresolved
//   RowWriteError        one row during submission; recorded, never aborts
//   ErrWaitTimeout       client wait ceiling exceeded; distinct kind
//   TransportError       progress-stream disconnect; bounded reconnect
//
// Per-row errors always retain a human-identifiable fragment of the original
// row so operators can find the offending line in the source export.

import (
	"errors"
	"fmt"
)

// ErrWaitTimeout is returned when the client-side wall-clock ceiling expires
// before the import finishes. It aborts only the wait; the server-side job
// keeps running.
var ErrWaitTimeout = errors.New("import still running: wait ceiling exceeded")

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("import session not found")

// ErrSessionExists is returned when a session ID is reused within a run.
// Session IDs are client-generated and must be unique per run.
var ErrSessionExists = errors.New("import session already exists")

// FieldTransformError describes a single field a transformation module could
// not convert. Modules record it as a note and omit the field.
type FieldTransformError struct {
	Field  string
	Value  string
	Reason string
}

func (e FieldTransformError) Error() string {
	return fmt.Sprintf("%s: could not transform %q: %s", e.Field, e.Value, e.Reason)
}

// ValidationError marks a row that is not ready for submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ResolutionError wraps a failed directory batch call after retries were
// exhausted. Callers proceed with empty maps rather than aborting.
type ResolutionError struct {
	Stage string // "users", "locations", "office-locations"
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Stage, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// RowWriteError wraps a storage failure for one row during submission.
// The executor records it and moves on; the batch never aborts on it.
type RowWriteError struct {
	Index int
	Err   error
}

func (e *RowWriteError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e *RowWriteError) Unwrap() error { return e.Err }

// TransportError signals a progress-stream disconnect. Before completion it
// permits a bounded reconnect; after completion it is ignored.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("progress transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
