package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySize is the length of a Fastcon mesh key in bytes.
const KeySize = 4

// MeshKey is the shared secret of one Fastcon mesh.
//
// The vendor app generates keys as four ASCII digits, so a typical key
// written in hex looks like "30323336" ("0236").
type MeshKey [KeySize]byte

// ParseMeshKey parses a mesh key written as 8 hex characters.
// Whitespace between byte pairs is ignored ("30 32 33 36" is accepted).
func ParseMeshKey(s string) (MeshKey, error) {
	var key MeshKey

	clean := strings.Join(strings.Fields(s), "")
	if len(clean) != KeySize*2 {
		return key, fmt.Errorf("%w: want %d hex characters, got %d", ErrInvalidKey, KeySize*2, len(clean))
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return key, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	copy(key[:], raw)
	return key, nil
}

// NewMeshKey builds a MeshKey from raw bytes.
func NewMeshKey(b []byte) (MeshKey, error) {
	var key MeshKey
	if len(b) != KeySize {
		return key, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(b))
	}
	copy(key[:], b)
	return key, nil
}

// String returns the key as lowercase hex.
func (k MeshKey) String() string {
	return hex.EncodeToString(k[:])
}

// Sequence is the rolling 8-bit counter carried in byte 1 of every mesh
// packet header.
//
// The first value is 0. After each advance the counter wraps from 254 back
// to 1, so 0 and 255 never reappear on air. The zero value is ready to use.
type Sequence struct {
	next uint8
}

// Peek returns the value the next packet will carry.
func (s *Sequence) Peek() uint8 {
	return s.next
}

// Advance moves the counter past the value returned by Peek.
func (s *Sequence) Advance() {
	s.next++
	if s.next == 0xFF {
		s.next = 1
	}
}
