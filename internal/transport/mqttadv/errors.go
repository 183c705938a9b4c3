package mqttadv

import "errors"

var (
	// ErrPayloadTooLarge is returned when an advertisement exceeds 31 bytes.
	ErrPayloadTooLarge = errors.New("mqttadv: advertisement exceeds 31 bytes")

	// ErrNoProxy is returned by New when the proxy name is empty.
	ErrNoProxy = errors.New("mqttadv: proxy name is required")
)
