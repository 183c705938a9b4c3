package hci

import "errors"

var (
	// ErrUnsupported is returned by Open on platforms without raw HCI sockets.
	ErrUnsupported = errors.New("hci: raw HCI sockets are not supported on this platform")

	// ErrPayloadTooLarge is returned when advertising data exceeds 31 bytes.
	ErrPayloadTooLarge = errors.New("hci: advertising data exceeds 31 bytes")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("hci: advertiser closed")
)
