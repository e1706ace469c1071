package models

import "errors"

// Sentinel errors shared across the service. Callers match them with
// errors.Is; layers in between wrap with fmt.Errorf("...: %w", err) so the
// classification survives to the API boundary.
var (
	// ErrInvalidFilter marks a caller-supplied filter populating more than
	// one dimension. Rejected before any storage access.
	ErrInvalidFilter = errors.New("filter must specify at most one dimension")

	// ErrNotFound marks a missing device, alert, or consumer.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyResolved marks a resolve call on an alert that is already
	// resolved. Recoverable: the alert is unchanged.
	ErrAlreadyResolved = errors.New("alert already resolved")

	// ErrStorageUnavailable marks a transient storage failure. The core does
	// not retry; the poll-driven callers re-attempt on their next cycle.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
