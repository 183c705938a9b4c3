package fastcon

import "errors"

// Domain errors for the Fastcon bridge package.
var (
	// ErrInvalidTopic is returned when a command arrives on a topic that
	// does not carry a light id.
	ErrInvalidTopic = errors.New("fastcon: invalid command topic")

	// ErrUnknownCommand is returned for command names the bridge does not
	// handle.
	ErrUnknownCommand = errors.New("fastcon: unknown command")

	// ErrInvalidParameters is returned when command parameters cannot be
	// decoded.
	ErrInvalidParameters = errors.New("fastcon: invalid parameters")
)
