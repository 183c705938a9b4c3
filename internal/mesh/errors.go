package mesh

import "errors"

// Domain errors for the mesh package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, mesh.ErrQueueFull) {
//	    // caller decides whether to retry
//	}
var (
	// ErrConfiguration is returned by New when the mesh key, advertising
	// interval bounds, timing or queue capacity are invalid.
	ErrConfiguration = errors.New("mesh: invalid configuration")

	// ErrQueueFull is returned by the action methods when the command queue
	// is at capacity. The rejected command is discarded.
	ErrQueueFull = errors.New("mesh: command queue full")

	// ErrTransportUnavailable wraps a transport failure. The scheduler stays
	// idle and retries the same command on the next poll.
	ErrTransportUnavailable = errors.New("mesh: transport unavailable")

	// ErrInvalidCommand is returned when an action is given parameters that
	// cannot be encoded (light id out of range, unknown colour mode).
	ErrInvalidCommand = errors.New("mesh: invalid command")
)
