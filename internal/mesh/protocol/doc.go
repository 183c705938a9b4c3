// Package protocol implements the Fastcon (brMesh) BLE mesh wire format.
//
// Fastcon lights do not hold BLE connections. A controller broadcasts a
// short manufacturer-specific advertisement and every light in range that
// shares the mesh key decodes it. This package turns a logical Command into
// that advertisement and back again.
//
// # Packet Layers
//
//	Command ──► inner payload ──► mesh body ──► RF frame ──► advertisement
//	            (light data)      (header,     (magic, addr,   (flags AD +
//	                               checksum,    CRC-16,         manufacturer AD,
//	                               XOR cipher)  whitening)      company 0xfff0)
//
// The mesh body header is four bytes:
//
//	Byte 0: forward flag (0x80) | command kind << 4 | target bits 8-11
//	Byte 1: sequence counter
//	Byte 2: mesh key byte 3
//	Byte 3: additive checksum over all other body bytes
//
// The header is XORed with a fixed vendor key and the inner payload with the
// mesh key. The RF frame then emulates what the vendor radio chip expects on
// air: a bit-reversed address behind a magic preamble, a CRC-16 and BLE data
// whitening seeded with 0x25.
//
// Pair commands are not mesh packets. They use a separate plain-text pairing
// advertisement (type 0x6e) that carries the new light id and the mesh key.
//
// # Sequence Counter
//
// The counter is 8 bits wide and lives in header byte 1. It starts at 0 and
// wraps from 254 to 1. Sequence tracks it for the controller.
//
// # Usage
//
//	key, err := protocol.ParseMeshKey("30323336")
//	if err != nil {
//	    return err
//	}
//	adv, err := protocol.Encode(protocol.FactoryReset(42), key, 7)
//	if err != nil {
//	    return err
//	}
//	transport.SetPayload(adv.Bytes(), 0x20, 0x40)
//
// All functions in this package are pure and safe for concurrent use.
package protocol
