package lights

import "errors"

// Domain errors for the lights package.
var (
	// ErrLightNotFound is returned when a light id has no registry row.
	ErrLightNotFound = errors.New("lights: not found")

	// ErrInvalidLight is returned when a light id is outside the addressable range.
	ErrInvalidLight = errors.New("lights: invalid light id")

	// ErrEntryNotFound is returned when no journal entry matches an update.
	ErrEntryNotFound = errors.New("lights: journal entry not found")

	// ErrInvalidStatus is returned for an unknown journal status.
	ErrInvalidStatus = errors.New("lights: invalid journal status")
)
