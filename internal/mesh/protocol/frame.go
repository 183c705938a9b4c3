package protocol

import (
	"bytes"
	"fmt"
	"math/bits"
)

// RF framing constants.
var (
	// meshAddress is the fixed RF address every Fastcon light listens on.
	meshAddress = []byte{0xC1, 0xC2, 0xC3}

	// headerKey obfuscates the four header bytes of every mesh body.
	headerKey = [KeySize]byte{0x5e, 0x36, 0x7b, 0xc4}

	frameMagic = []byte{0x71, 0x0f, 0x55}
)

const (
	// framePrefix is the number of leading bytes the RF layer whitens but
	// never transmits.
	framePrefix = 0x0f

	// meshHeaderSize is the size of the mesh body header.
	meshHeaderSize = 4

	// controlPayloadSize is the size of a single-light control payload.
	controlPayloadSize = 12

	// kindControl is the mesh body kind used for light commands.
	kindControl = 5

	// resetDataSize is the number of zero bytes in a factory reset body.
	resetDataSize = 7
)

// meshBody builds the obfuscated mesh body for data addressed to target.
//
//	byte 0: forward<<7 | kind<<4 | target>>8 & 0x0f
//	byte 1: sequence
//	byte 2: key[3]
//	byte 3: additive checksum of every other byte
//
// The header is XORed with headerKey and the data with the mesh key.
func meshBody(kind uint8, target uint32, data []byte, key MeshKey, seq uint8, forward bool) []byte {
	body := make([]byte, meshHeaderSize+len(data))

	body[0] = byte(target>>8)&0x0f | (kind&0x07)<<4
	if forward {
		body[0] |= 0x80
	}
	body[1] = seq
	body[2] = key[3]
	copy(body[meshHeaderSize:], data)

	var sum byte
	for i, b := range body {
		if i != 3 {
			sum += b
		}
	}
	body[3] = sum

	for i := range meshHeaderSize {
		body[i] ^= headerKey[i&3]
	}
	for i := range data {
		body[meshHeaderSize+i] ^= key[i&3]
	}
	return body
}

// openMeshBody reverses meshBody.
func openMeshBody(body []byte, key MeshKey) (kind uint8, highTarget uint32, forward bool, seq uint8, data []byte, err error) {
	if len(body) < meshHeaderSize {
		return 0, 0, false, 0, nil, fmt.Errorf("%w: mesh body is %d bytes", ErrMalformedPacket, len(body))
	}

	plain := bytes.Clone(body)
	for i := range meshHeaderSize {
		plain[i] ^= headerKey[i&3]
	}
	for i := range len(plain) - meshHeaderSize {
		plain[meshHeaderSize+i] ^= key[i&3]
	}

	if plain[2] != key[3] {
		return 0, 0, false, 0, nil, ErrKeyMismatch
	}
	var sum byte
	for i, b := range plain {
		if i != 3 {
			sum += b
		}
	}
	if sum != plain[3] {
		return 0, 0, false, 0, nil, ErrChecksumMismatch
	}

	kind = (plain[0] >> 4) & 0x07
	highTarget = uint32(plain[0]&0x0f) << 8
	forward = plain[0]&0x80 != 0
	return kind, highTarget, forward, plain[1], plain[meshHeaderSize:], nil
}

// controlPayload wraps light data into the fixed-size single-light control
// payload. Only the low byte of target fits; the high nibble travels in the
// mesh header.
func controlPayload(target uint32, light []byte) []byte {
	p := make([]byte, controlPayloadSize)
	p[0] = 2 | byte((len(light)+1)<<4)
	p[1] = byte(target)
	copy(p[2:], light)
	return p
}

// frame wraps body in the RF frame (magic, address, CRC) and whitens it.
// The returned slice excludes the untransmitted prefix.
func frame(addr, body []byte) []byte {
	size := 0x12 + len(addr) + len(body)
	buf := make([]byte, size+2)

	copy(buf[framePrefix:], frameMagic)
	for i, b := range addr {
		buf[0x12+len(addr)-1-i] = b
	}
	copy(buf[0x12+len(addr):], body)

	for i := framePrefix; i < framePrefix+len(addr)+len(frameMagic); i++ {
		buf[i] = bits.Reverse8(buf[i])
	}

	crc := crc16(addr, body)
	buf[size] = byte(crc)
	buf[size+1] = byte(crc >> 8)

	newWhitening(whiteningSeed).apply(buf)
	return buf[framePrefix:]
}

// unframe reverses frame, returning the body after checking magic, address
// and CRC.
func unframe(pkt, addr []byte) ([]byte, error) {
	minLen := len(frameMagic) + len(addr) + 2
	if len(pkt) < minLen {
		return nil, fmt.Errorf("%w: frame is %d bytes, want at least %d", ErrMalformedPacket, len(pkt), minLen)
	}

	buf := make([]byte, framePrefix+len(pkt))
	copy(buf[framePrefix:], pkt)
	newWhitening(whiteningSeed).apply(buf)

	for i := framePrefix; i < framePrefix+len(addr)+len(frameMagic); i++ {
		buf[i] = bits.Reverse8(buf[i])
	}
	if !bytes.Equal(buf[framePrefix:0x12], frameMagic) {
		return nil, fmt.Errorf("%w: bad frame magic", ErrMalformedPacket)
	}
	for i, b := range addr {
		if buf[0x12+len(addr)-1-i] != b {
			return nil, fmt.Errorf("%w: address mismatch", ErrMalformedPacket)
		}
	}

	size := len(buf) - 2
	body := buf[0x12+len(addr) : size]
	got := uint16(buf[size]) | uint16(buf[size+1])<<8
	if want := crc16(addr, body); got != want {
		return nil, fmt.Errorf("%w: got %04x, want %04x", ErrCRCMismatch, got, want)
	}
	return body, nil
}
