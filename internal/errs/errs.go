// Package errs holds the sentinel errors shared across Lattice's packages,
// following the wrap-at-the-boundary convention used throughout the
// teacher's storage layer (errors.Is against a small fixed set, wrapped
// with fmt.Errorf("...: %w", err) at each call site).
package errs

import "errors"

var (
	// ErrNotFound means the requested entity does not exist.
	ErrNotFound = errors.New("lattice: not found")

	// ErrConflict means a write collided with concurrent state, e.g. a
	// duplicate collection name or a losing index-table allocation race.
	ErrConflict = errors.New("lattice: conflict")

	// ErrUnsupportedOperation means the caller asked for something the
	// spec explicitly places out of scope (e.g. cross-collection joins,
	// an unsupported SQL-like search clause).
	ErrUnsupportedOperation = errors.New("lattice: unsupported operation")

	// ErrValidation means a document failed constraint validation. The
	// caller should inspect the accompanying *constraints.Error for the
	// accumulated list of individual failures.
	ErrValidation = errors.New("lattice: validation failed")

	// ErrInvalidInput means the caller-supplied input was malformed
	// independent of any collection's constraints, e.g. an ingest body
	// that is not valid JSON (INVALID_JSON, spec §4.8 step 1).
	ErrInvalidInput = errors.New("lattice: invalid input")

	// ErrConnection means the SQL Adapter or blob store could not be
	// reached at all (as opposed to returning a backend-level error).
	ErrConnection = errors.New("lattice: connection error")

	// ErrBackend wraps an underlying backend (SQL or blob store) failure
	// that is not itself a connection failure.
	ErrBackend = errors.New("lattice: backend error")

	// ErrCancelled means the operation's context was cancelled before
	// completion. Per spec this is not surfaced at the REST boundary
	// unless it propagates all the way up.
	ErrCancelled = errors.New("lattice: cancelled")
)
