package protocol

import (
	"bytes"
	"fmt"
)

// CompanyID is the manufacturer id in every Fastcon advertisement.
const CompanyID uint16 = 0xfff0

// MaxAdvertisementSize is the legacy BLE advertising data limit.
const MaxAdvertisementSize = 31

const (
	adTypeFlags        = 0x01
	adTypeManufacturer = 0xff

	// meshFlags is LE General Discoverable | BR/EDR Not Supported.
	meshFlags = 0x06

	// pairingFlags is what the vendor app sends while pairing.
	pairingFlags = 0x1a

	// pairingLength is the manufacturer AD length byte the vendor app uses
	// for pairing advertisements.
	pairingLength = 0x13

	pairingMagic       = 0x6e
	pairingPayloadSize = 19
	pairingCheckMul    = 0x1234
)

// pairingFiller sits between the light id and the key in every pairing
// payload captured from the vendor app.
var pairingFiller = []byte{0x44, 0x10, 0x33, 0x32, 0x34, 0x0a, '9', '9'}

// Advertisement is the complete advertising data for one command:
// a flags AD structure followed by a manufacturer AD structure.
type Advertisement struct {
	// Op is the opcode that produced this advertisement.
	Op Opcode

	// Sequence is the counter value encoded into it.
	Sequence uint8

	buf [MaxAdvertisementSize]byte
	n   int
}

// Bytes returns the raw advertising data, at most 31 bytes.
func (a Advertisement) Bytes() []byte {
	return bytes.Clone(a.buf[:a.n])
}

// Len returns the size of the advertising data.
func (a Advertisement) Len() int {
	return a.n
}

// Payload returns the manufacturer data after the company id.
func (a Advertisement) Payload() []byte {
	p, err := ManufacturerPayload(a.buf[:a.n])
	if err != nil {
		return nil
	}
	return p
}

// String renders the advertising data as hex for logging.
func (a Advertisement) String() string {
	return fmt.Sprintf("%x", a.buf[:a.n])
}

func (a *Advertisement) append(b ...byte) {
	a.n += copy(a.buf[a.n:], b)
}

// Encode turns cmd into an advertisement using key and the sequence value seq.
//
// Encode is deterministic: the same command, key and sequence always yield
// the same bytes. It never touches a radio.
func Encode(cmd Command, key MeshKey, seq uint8) (Advertisement, error) {
	if err := cmd.Validate(); err != nil {
		return Advertisement{}, err
	}

	adv := Advertisement{Op: cmd.Op, Sequence: seq}
	switch cmd.Op {
	case OpPair:
		adv.append(2, adTypeFlags, pairingFlags)
		adv.append(pairingLength, adTypeManufacturer, byte(CompanyID&0xff), byte(CompanyID>>8))
		adv.append(pairingPayload(cmd.Target, key, seq)...)

	case OpFactoryReset:
		body := meshBody(kindControl, cmd.Target, make([]byte, resetDataSize), key, seq, true)
		adv.appendMesh(frame(meshAddress, body))

	case OpSetState:
		inner := controlPayload(cmd.Target, cmd.State.Bytes())
		body := meshBody(kindControl, cmd.Target, inner, key, seq, true)
		adv.appendMesh(frame(meshAddress, body))
	}
	return adv, nil
}

// appendMesh adds the flags and manufacturer structures for a mesh frame.
// The manufacturer length byte counts the frame plus two, as the lights
// expect.
func (a *Advertisement) appendMesh(pkt []byte) {
	a.append(2, adTypeFlags, meshFlags)
	a.append(byte(len(pkt)+2), adTypeManufacturer, byte(CompanyID&0xff), byte(CompanyID>>8))
	a.append(pkt...)
}

// pairingPayload builds the plain-text pairing payload:
//
//	0x6e, seq, id lo, id hi, filler[8], key[4], check[3]
//
// The check is the byte sum of everything before it times 0x1234,
// truncated to 24 bits and stored big-endian.
func pairingPayload(target uint32, key MeshKey, seq uint8) []byte {
	p := make([]byte, 0, pairingPayloadSize)
	p = append(p, pairingMagic, seq, byte(target), byte(target>>8))
	p = append(p, pairingFiller...)
	p = append(p, key[:]...)

	check := pairingCheck(p)
	return append(p, byte(check>>16), byte(check>>8), byte(check))
}

func pairingCheck(p []byte) uint32 {
	var sum uint32
	for _, b := range p {
		sum += uint32(b)
	}
	return (sum * pairingCheckMul) & 0xffffff
}

// ManufacturerPayload extracts the Fastcon manufacturer data from raw
// advertising data. The manufacturer structure is always last, and its length
// byte is not trusted; the payload runs to the end of the data.
func ManufacturerPayload(adv []byte) ([]byte, error) {
	for i := 0; i+1 < len(adv); {
		l := int(adv[i])
		if l == 0 {
			break
		}
		if adv[i+1] == adTypeManufacturer {
			if i+4 > len(adv) {
				break
			}
			company := uint16(adv[i+2]) | uint16(adv[i+3])<<8
			if company != CompanyID {
				return nil, fmt.Errorf("%w: company id %04x", ErrMalformedPacket, company)
			}
			return bytes.Clone(adv[i+4:]), nil
		}
		i += 1 + l
	}
	return nil, fmt.Errorf("%w: no manufacturer data", ErrMalformedPacket)
}

// Frame is a decoded Fastcon payload.
type Frame struct {
	// Pairing is true for pairing advertisements.
	Pairing bool

	// Forward is the mesh relay flag.
	Forward bool

	// Kind is the mesh body kind (5 for light control).
	Kind uint8

	// Sequence is the counter value on air.
	Sequence uint8

	// Target is the addressed light id. For factory reset frames only bits
	// 8-11 are carried, so the low byte reads as zero.
	Target uint32

	// Data is the decrypted inner payload. Empty for pairing frames.
	Data []byte

	// Key is the mesh key carried by a pairing frame.
	Key MeshKey
}

// Op infers the opcode from the frame contents.
func (f Frame) Op() Opcode {
	switch {
	case f.Pairing:
		return OpPair
	case len(f.Data) == resetDataSize && bytes.Count(f.Data, []byte{0}) == resetDataSize:
		return OpFactoryReset
	case len(f.Data) == controlPayloadSize && f.Data[0]&0x0f == 2:
		return OpSetState
	default:
		return 0
	}
}

// LightData returns the light data block of a state frame.
func (f Frame) LightData() []byte {
	if f.Op() != OpSetState {
		return nil
	}
	n := int(f.Data[0]>>4) - 1
	if n < 0 || 2+n > len(f.Data) {
		return nil
	}
	return f.Data[2 : 2+n]
}

// Decode parses a manufacturer payload (as returned by ManufacturerPayload)
// produced with key. Mesh frames are tried first; a payload that does not
// carry the RF frame magic is parsed as a pairing payload.
func Decode(payload []byte, key MeshKey) (Frame, error) {
	body, err := unframe(payload, meshAddress)
	if err == nil {
		return decodeMesh(body, key)
	}
	if len(payload) == pairingPayloadSize && payload[0] == pairingMagic {
		return decodePairing(payload, key)
	}
	return Frame{}, err
}

func decodeMesh(body []byte, key MeshKey) (Frame, error) {
	kind, high, forward, seq, data, err := openMeshBody(body, key)
	if err != nil {
		return Frame{}, err
	}

	f := Frame{Forward: forward, Kind: kind, Sequence: seq, Target: high, Data: data}
	if f.Op() == OpSetState {
		f.Target |= uint32(data[1])
	}
	return f, nil
}

func decodePairing(p []byte, key MeshKey) (Frame, error) {
	n := len(p)
	check := uint32(p[n-3])<<16 | uint32(p[n-2])<<8 | uint32(p[n-1])
	if want := pairingCheck(p[:n-3]); check != want {
		return Frame{}, fmt.Errorf("%w: pairing check %06x, want %06x", ErrChecksumMismatch, check, want)
	}

	keyOff := 4 + len(pairingFiller)
	var carried MeshKey
	copy(carried[:], p[keyOff:keyOff+KeySize])
	if carried != key {
		return Frame{}, ErrKeyMismatch
	}

	return Frame{
		Pairing:  true,
		Sequence: p[1],
		Target:   uint32(p[2]) | uint32(p[3])<<8,
		Key:      carried,
	}, nil
}
