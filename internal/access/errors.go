package access

import "errors"

// Domain errors for the access package.
var (
	// ErrConfigInvalid is returned when the level table or user list is
	// missing or inconsistent. No registry is produced.
	ErrConfigInvalid = errors.New("access: invalid configuration")

	// ErrUnknownLevel is returned when a level name is not in the table.
	ErrUnknownLevel = errors.New("access: unknown level")
)
