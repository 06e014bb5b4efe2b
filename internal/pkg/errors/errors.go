package errors

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Row-local ingest errors. These mark one bronze row failed and let the load
// continue with the next row.
var (
	ErrEmptyValue         = errors.New("empty value")
	ErrEmptyNodeRow       = errors.New("row has no node value")
	ErrMultiNodeRow       = errors.New("row populates more than one node column")
	ErrRootLevelMismatch  = errors.New("non-root row has no realized ancestor")
	ErrUnknownColumn      = errors.New("column not declared in layout")
	ErrNaturalKeyConflict = errors.New("natural key conflict with inconsistent payload")
)

// Layout errors are terminal for the whole load; no rows are processed.
var (
	ErrLayoutInvalid           = errors.New("layout invalid")
	ErrProfessionColumnMissing = errors.New("master layout requires a profession column")
	ErrDuplicateLevel          = errors.New("duplicate node level in layout")
)

var (
	// ErrLoadNameInvalid rejects a source filename that does not carry a
	// parseable taxonomy identity.
	ErrLoadNameInvalid = errors.New("load name invalid")
	// ErrLoadInvalid rejects a load request whose identity fields are
	// inconsistent (wrong sentinels, owner mismatch, bad kind).
	ErrLoadInvalid = errors.New("load request invalid")
	// ErrTaxonomyBusy defers a load while an older one holds the taxonomy.
	// Workers treat it as retryable.
	ErrTaxonomyBusy = errors.New("taxonomy has an older load in progress")
)

// ErrVersionLockTimeout fails only the version step; silver writes stay.
var ErrVersionLockTimeout = errors.New("taxonomy version lock not acquired")

// IsRowLocal reports whether err should fail a single row rather than abort
// the load. Everything outside this set is treated as transient
// infrastructure failure and bubbles up to the retry coordinator.
func IsRowLocal(err error) bool {
	switch {
	case errors.Is(err, ErrEmptyValue),
		errors.Is(err, ErrEmptyNodeRow),
		errors.Is(err, ErrMultiNodeRow),
		errors.Is(err, ErrRootLevelMismatch),
		errors.Is(err, ErrUnknownColumn),
		errors.Is(err, ErrNaturalKeyConflict),
		errors.Is(err, ErrInvalidArgument):
		return true
	default:
		return false
	}
}

// IsLayoutError reports whether err terminates the load before any row runs.
func IsLayoutError(err error) bool {
	switch {
	case errors.Is(err, ErrLayoutInvalid),
		errors.Is(err, ErrProfessionColumnMissing),
		errors.Is(err, ErrDuplicateLevel):
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is a temporary failure the job runtime
// should retry: context cancellation, serialization failures, deadlocks,
// lock timeouts, or a taxonomy held by an older load.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrTaxonomyBusy) || errors.Is(err, ErrVersionLockTimeout) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57014":
			return true
		}
	}
	return false
}
