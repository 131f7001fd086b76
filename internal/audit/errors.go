package audit

import "errors"

var (
	// ErrActionRequired is returned when an entry has no action.
	ErrActionRequired = errors.New("audit: action is required")

	// ErrOutcomeRequired is returned when an entry has no outcome.
	ErrOutcomeRequired = errors.New("audit: outcome is required")
)
