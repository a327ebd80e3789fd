// Package domain holds types shared across modules.
package domain

import "errors"

// Standard application-level errors.
// Repositories and services wrap underlying infrastructure errors with these
// so that handlers can map them to HTTP status codes with errors.Is.
var (
	// ErrValidation marks a malformed or incomplete request. Rejected before
	// any transaction is opened; never retried automatically.
	ErrValidation = errors.New("invalid request parameters or format")

	// ErrUnauthorized marks a missing or mismatched shared secret.
	ErrUnauthorized = errors.New("authorization failed")

	// ErrNotFound marks a reference to an account or trade that does not exist
	// or is not visible to the caller.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict marks a business-rule conflict, e.g. a trash/restore batch
	// spanning more than one account. Nothing is mutated.
	ErrConflict = errors.New("conflicting request")

	// ErrDuplicateEvent marks an event id that is already recorded in the
	// processed-events ledger. Callers treat it as a successful no-op, not a
	// failure: it is the race-closing fallback for two simultaneous deliveries
	// of the same event.
	ErrDuplicateEvent = errors.New("event already processed")

	// ErrStore marks a transient store failure. The enclosing transaction is
	// rolled back and the caller may safely retry the identical request.
	ErrStore = errors.New("store operation failed")
)
