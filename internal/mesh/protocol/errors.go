package protocol

import "errors"

// Domain errors for the Fastcon protocol package.
var (
	// ErrInvalidKey is returned when a mesh key is not exactly 4 bytes.
	ErrInvalidKey = errors.New("protocol: invalid mesh key")

	// ErrInvalidCommand is returned when a command cannot be encoded
	// (unknown opcode or target out of range).
	ErrInvalidCommand = errors.New("protocol: invalid command")

	// ErrMalformedPacket is returned when a packet is too short or its
	// framing does not match the Fastcon layout.
	ErrMalformedPacket = errors.New("protocol: malformed packet")

	// ErrCRCMismatch is returned when the RF frame CRC does not verify.
	ErrCRCMismatch = errors.New("protocol: crc mismatch")

	// ErrChecksumMismatch is returned when the mesh header checksum does not verify.
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")

	// ErrKeyMismatch is returned when a packet was encoded with a different mesh key.
	ErrKeyMismatch = errors.New("protocol: mesh key mismatch")
)
