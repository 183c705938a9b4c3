package protocol

import "math/bits"

// whiteningSeed initialises the whitening register for every frame.
const whiteningSeed = 0x25

// whitening is the 7-bit LFSR used by the lights' RF layer to scramble
// frames. The keystream does not depend on the data, so applying it twice
// with the same seed restores the input.
type whitening struct {
	f0, f4, f8, fc, f10, f14, f18 byte
}

func newWhitening(seed byte) *whitening {
	return &whitening{
		f0:  1,
		f4:  (seed >> 5) & 1,
		f8:  (seed >> 4) & 1,
		fc:  (seed >> 3) & 1,
		f10: (seed >> 2) & 1,
		f14: (seed >> 1) & 1,
		f18: seed & 1,
	}
}

// apply XORs buf in place with the keystream.
func (w *whitening) apply(buf []byte) {
	for i, c := range buf {
		varC := w.fc
		var14 := w.f14
		var18 := w.f18
		var10 := w.f10
		var8 := var14 ^ w.f8
		var4 := var10 ^ w.f4
		v := var18 ^ varC
		var0 := v ^ w.f0

		mask := (var8^var18)<<7 | var0<<6 | var4<<5 | var8<<4 |
			v<<3 | var10<<2 | var14<<1 | var18
		buf[i] = c ^ mask

		w.f8 = var4
		w.fc = var8
		w.f10 = var8 ^ varC
		w.f14 = var0 ^ var10
		w.f18 = var4 ^ var14
		w.f0 = var8 ^ var18
		w.f4 = var0
	}
}

// crc16 computes the frame CRC. The address is consumed last byte first
// and data bytes are bit-reversed before entering the register.
func crc16(addr, data []byte) uint16 {
	crc := uint16(0xffff)
	for i := len(addr) - 1; i >= 0; i-- {
		crc = crc16Step(crc, addr[i])
	}
	for _, b := range data {
		crc = crc16Step(crc, bits.Reverse8(b))
	}
	return ^bits.Reverse16(crc)
}

func crc16Step(crc uint16, b byte) uint16 {
	const poly = 0x1021
	crc ^= uint16(b) << 8
	for range 4 {
		tmp := crc << 1
		if crc&0x8000 != 0 {
			tmp ^= poly
		}
		crc = tmp << 1
		if tmp&0x8000 != 0 {
			crc ^= poly
		}
	}
	return crc
}
