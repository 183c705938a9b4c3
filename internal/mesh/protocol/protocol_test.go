package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = MeshKey{0x30, 0x32, 0x33, 0x36}

func TestParseMeshKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MeshKey
		wantErr bool
	}{
		{name: "plain hex", input: "30323336", want: testKey},
		{name: "upper case", input: "DEADBEEF", want: MeshKey{0xde, 0xad, 0xbe, 0xef}},
		{name: "spaced", input: "30 32 33 36", want: testKey},
		{name: "too short", input: "303233", wantErr: true},
		{name: "too long", input: "3032333637", wantErr: true},
		{name: "not hex", input: "zz323336", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMeshKey(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, hexOf(tt.want), got.String())
		})
	}
}

func hexOf(k MeshKey) string {
	const digits = "0123456789abcdef"
	var b []byte
	for _, c := range k {
		b = append(b, digits[c>>4], digits[c&0x0f])
	}
	return string(b)
}

func TestNewMeshKey(t *testing.T) {
	_, err := NewMeshKey([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidKey)

	key, err := NewMeshKey([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, MeshKey{1, 2, 3, 4}, key)
}

func TestSequence(t *testing.T) {
	var seq Sequence
	assert.Equal(t, uint8(0), seq.Peek())

	seq.Advance()
	assert.Equal(t, uint8(1), seq.Peek())

	// Peek does not advance.
	assert.Equal(t, uint8(1), seq.Peek())

	for seq.Peek() != 254 {
		seq.Advance()
	}
	seq.Advance()
	assert.Equal(t, uint8(1), seq.Peek(), "counter wraps from 254 to 1")

	seen := map[uint8]bool{}
	for range 600 {
		seen[seq.Peek()] = true
		seq.Advance()
	}
	assert.False(t, seen[0], "0 only appears before the first wrap")
	assert.False(t, seen[255], "255 never appears")
	assert.Len(t, seen, 254)
}

func TestParseOpcode(t *testing.T) {
	for _, op := range []Opcode{OpPair, OpFactoryReset, OpSetState} {
		got, err := ParseOpcode(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}

	got, err := ParseOpcode("factory-reset")
	require.NoError(t, err)
	assert.Equal(t, OpFactoryReset, got)

	_, err = ParseOpcode("dim")
	require.ErrorIs(t, err, ErrInvalidCommand)
}

func TestCommandConstructors(t *testing.T) {
	assert.Equal(t, Command{Target: 5, Group: DefaultGroup, Op: OpPair}, Pair(5, 0))
	assert.Equal(t, Command{Target: 5, Group: 3, Op: OpPair}, Pair(5, 3))
	assert.Equal(t, Command{Target: 9, Group: DefaultGroup, Op: OpFactoryReset}, FactoryReset(9))
}

func TestCommandValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr bool
	}{
		{name: "pair", cmd: Pair(1, 1)},
		{name: "highest id", cmd: FactoryReset(MaxLightID)},
		{name: "id out of range", cmd: FactoryReset(MaxLightID + 1), wantErr: true},
		{name: "zero opcode", cmd: Command{Target: 1}, wantErr: true},
		{name: "bad mode", cmd: SetState(1, LightState{On: true, Mode: 42}), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCommand)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLightStateBytes(t *testing.T) {
	tests := []struct {
		name  string
		state LightState
		want  []byte
	}{
		{
			name:  "off",
			state: LightState{On: false, Brightness: 1, Mode: ColorModeRGB, Red: 1},
			want:  []byte{0x00},
		},
		{
			name:  "brightness full",
			state: LightState{On: true, Brightness: 1},
			want:  []byte{127},
		},
		{
			name:  "brightness clamped",
			state: LightState{On: true, Brightness: 3},
			want:  []byte{127},
		},
		{
			name:  "brightness zero",
			state: LightState{On: true, Brightness: 0},
			want:  []byte{0},
		},
		{
			name:  "rgb red",
			state: LightState{On: true, Brightness: 1, Mode: ColorModeRGB, Red: 1},
			want:  []byte{0xff, 0x00, 0xff, 0x00, 0x00, 0x00},
		},
		{
			name:  "rgb order is blue red green",
			state: LightState{On: true, Brightness: 0, Mode: ColorModeRGB, Red: 0, Green: 1, Blue: 1},
			want:  []byte{0x80, 0xff, 0x00, 0xff, 0x00, 0x00},
		},
		{
			name:  "cold warm",
			state: LightState{On: true, Brightness: 1, Mode: ColorModeColdWarm, Warm: 1, Cold: 0},
			want:  []byte{0xff, 0x00, 0x00, 0x00, 0xff, 0x00},
		},
		{
			name:  "temperature below range",
			state: LightState{On: true, Brightness: 1, Mode: ColorModeTemperature, Mireds: 100},
			want:  []byte{0xff, 0x00, 0x00, 0x00, 0xff, 0x00},
		},
		{
			name:  "temperature above range",
			state: LightState{On: true, Brightness: 1, Mode: ColorModeTemperature, Mireds: 600},
			want:  []byte{0xff, 0x00, 0x00, 0x00, 0x00, 0xff},
		},
		{
			name:  "temperature at warm end",
			state: LightState{On: true, Brightness: 1, Mode: ColorModeTemperature, Mireds: MinMireds},
			want:  []byte{0xff, 0x00, 0x00, 0x00, 0xff, 0x00},
		},
		{
			name:  "temperature at cold end",
			state: LightState{On: true, Brightness: 1, Mode: ColorModeTemperature, Mireds: MaxMireds},
			want:  []byte{0xff, 0x00, 0x00, 0x00, 0x00, 0xff},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Bytes())
		})
	}
}

func TestColorModeText(t *testing.T) {
	for _, mode := range []ColorMode{ColorModeBrightness, ColorModeRGB, ColorModeColdWarm, ColorModeTemperature} {
		text, err := mode.MarshalText()
		require.NoError(t, err)

		var got ColorMode
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, mode, got)
	}

	var m ColorMode
	assert.ErrorIs(t, m.UnmarshalText([]byte("ultraviolet")), ErrInvalidCommand)
}

func TestControlPayload(t *testing.T) {
	p := controlPayload(0x105, []byte{0x7f})
	require.Len(t, p, controlPayloadSize)
	assert.Equal(t, byte(0x22), p[0])
	assert.Equal(t, byte(0x05), p[1])
	assert.Equal(t, byte(0x7f), p[2])
	assert.Equal(t, make([]byte, controlPayloadSize-3), p[3:])

	p = controlPayload(7, []byte{1, 2, 3, 4, 5, 6})
	assert.Equal(t, byte(0x72), p[0])
}

func TestWhiteningSelfInverse(t *testing.T) {
	orig := []byte("the quick brown fox jumps over the lazy dog")
	buf := bytes.Clone(orig)

	newWhitening(whiteningSeed).apply(buf)
	assert.NotEqual(t, orig, buf)

	newWhitening(whiteningSeed).apply(buf)
	assert.Equal(t, orig, buf)
}

func TestWhiteningKeystreamIndependentOfData(t *testing.T) {
	a := make([]byte, 32)
	b := bytes.Repeat([]byte{0xff}, 32)
	newWhitening(whiteningSeed).apply(a)
	newWhitening(whiteningSeed).apply(b)

	for i := range a {
		assert.Equal(t, a[i]^0xff, b[i], "byte %d", i)
	}
}

func TestCRC16(t *testing.T) {
	body := []byte{1, 2, 3, 4, 5}
	assert.Equal(t, crc16(meshAddress, body), crc16(meshAddress, body))
	assert.NotEqual(t, crc16(meshAddress, body), crc16(meshAddress, []byte{1, 2, 3, 4, 6}))
	assert.NotEqual(t, crc16(meshAddress, body), crc16([]byte{0xC3, 0xC2, 0xC1}, body))
}

func TestFrameRoundTrip(t *testing.T) {
	body := meshBody(kindControl, 0x123, []byte{9, 8, 7, 6, 5}, testKey, 42, true)
	pkt := frame(meshAddress, body)
	assert.Len(t, pkt, len(frameMagic)+len(meshAddress)+len(body)+2)

	got, err := unframe(pkt, meshAddress)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestUnframeRejectsCorruption(t *testing.T) {
	body := meshBody(kindControl, 1, make([]byte, resetDataSize), testKey, 1, true)
	pkt := frame(meshAddress, body)

	corrupt := bytes.Clone(pkt)
	corrupt[len(corrupt)-4] ^= 0x01
	_, err := unframe(corrupt, meshAddress)
	assert.ErrorIs(t, err, ErrCRCMismatch)

	corrupt = bytes.Clone(pkt)
	corrupt[0] ^= 0x01
	_, err = unframe(corrupt, meshAddress)
	assert.ErrorIs(t, err, ErrMalformedPacket)

	_, err = unframe(pkt[:4], meshAddress)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestMeshBodyHeader(t *testing.T) {
	data := []byte{0x11, 0x22, 0x33}
	body := meshBody(kindControl, 0x3AB, data, testKey, 9, true)

	plain := bytes.Clone(body)
	for i := range meshHeaderSize {
		plain[i] ^= headerKey[i]
	}
	assert.Equal(t, byte(0x80|kindControl<<4|0x03), plain[0])
	assert.Equal(t, byte(9), plain[1])
	assert.Equal(t, testKey[3], plain[2])

	sum := plain[0] + plain[1] + plain[2] + 0x11 + 0x22 + 0x33
	assert.Equal(t, sum, plain[3])

	for i, b := range data {
		assert.Equal(t, b^testKey[i&3], body[meshHeaderSize+i])
	}
}

func TestEncodeSizes(t *testing.T) {
	on := LightState{On: true, Brightness: 1, Mode: ColorModeRGB, Red: 1}

	tests := []struct {
		name       string
		cmd        Command
		wantAdv    int
		wantPacket int
	}{
		{name: "set state", cmd: SetState(3, on), wantAdv: 31, wantPacket: 24},
		{name: "factory reset", cmd: FactoryReset(3), wantAdv: 26, wantPacket: 19},
		{name: "pair", cmd: Pair(3, 1), wantAdv: 26, wantPacket: 19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv, err := Encode(tt.cmd, testKey, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAdv, adv.Len())
			assert.Len(t, adv.Bytes(), tt.wantAdv)
			assert.Len(t, adv.Payload(), tt.wantPacket)
			assert.LessOrEqual(t, adv.Len(), MaxAdvertisementSize)
			assert.Equal(t, tt.cmd.Op, adv.Op)
		})
	}
}

func TestEncodeMeshLayout(t *testing.T) {
	adv, err := Encode(FactoryReset(3), testKey, 1)
	require.NoError(t, err)

	raw := adv.Bytes()
	assert.Equal(t, []byte{0x02, 0x01, 0x06}, raw[:3])
	assert.Equal(t, byte(19+2), raw[3])
	assert.Equal(t, []byte{0xff, 0xf0, 0xff}, raw[4:7])
}

func TestEncodePairingLayout(t *testing.T) {
	adv, err := Encode(Pair(0x0102, 4), testKey, 7)
	require.NoError(t, err)

	raw := adv.Bytes()
	assert.Equal(t, []byte{0x02, 0x01, 0x1a, 0x13, 0xff, 0xf0, 0xff}, raw[:7])

	p := adv.Payload()
	require.Len(t, p, pairingPayloadSize)
	assert.Equal(t, []byte{0x6e, 7, 0x02, 0x01}, p[:4])
	assert.Equal(t, pairingFiller, p[4:12])
	assert.Equal(t, testKey[:], p[12:16])

	var sum uint32
	for _, b := range p[:16] {
		sum += uint32(b)
	}
	check := (sum * 0x1234) & 0xffffff
	assert.Equal(t, []byte{byte(check >> 16), byte(check >> 8), byte(check)}, p[16:])
}

func TestEncodeDeterministic(t *testing.T) {
	cmd := SetState(77, LightState{On: true, Brightness: 0.5, Mode: ColorModeColdWarm, Warm: 0.25, Cold: 0.75})

	a, err := Encode(cmd, testKey, 12)
	require.NoError(t, err)
	b, err := Encode(cmd, testKey, 12)
	require.NoError(t, err)
	assert.Equal(t, a.Bytes(), b.Bytes())

	c, err := Encode(cmd, testKey, 13)
	require.NoError(t, err)
	assert.NotEqual(t, a.Bytes(), c.Bytes(), "sequence must change the ciphertext")

	d, err := Encode(cmd, MeshKey{1, 2, 3, 4}, 12)
	require.NoError(t, err)
	assert.NotEqual(t, a.Bytes(), d.Bytes(), "key must change the ciphertext")
}

func TestEncodeRejectsInvalid(t *testing.T) {
	_, err := Encode(FactoryReset(MaxLightID+1), testKey, 0)
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = Encode(Command{}, testKey, 0)
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestDecodeSetState(t *testing.T) {
	state := LightState{On: true, Brightness: 1, Mode: ColorModeRGB, Red: 1, Blue: 1}
	adv, err := Encode(SetState(0x123, state), testKey, 200)
	require.NoError(t, err)

	payload, err := ManufacturerPayload(adv.Bytes())
	require.NoError(t, err)

	f, err := Decode(payload, testKey)
	require.NoError(t, err)
	assert.False(t, f.Pairing)
	assert.True(t, f.Forward)
	assert.Equal(t, uint8(kindControl), f.Kind)
	assert.Equal(t, uint8(200), f.Sequence)
	assert.Equal(t, uint32(0x123), f.Target)
	assert.Equal(t, OpSetState, f.Op())
	assert.Equal(t, state.Bytes(), f.LightData())
}

func TestDecodeFactoryReset(t *testing.T) {
	adv, err := Encode(FactoryReset(0x2FE), testKey, 3)
	require.NoError(t, err)

	f, err := Decode(adv.Payload(), testKey)
	require.NoError(t, err)
	assert.Equal(t, OpFactoryReset, f.Op())
	assert.Equal(t, uint32(0x200), f.Target, "only the high nibble is carried")
	assert.Equal(t, uint8(3), f.Sequence)
	assert.Nil(t, f.LightData())
}

func TestDecodePairing(t *testing.T) {
	adv, err := Encode(Pair(0x0456, 1), testKey, 9)
	require.NoError(t, err)

	f, err := Decode(adv.Payload(), testKey)
	require.NoError(t, err)
	assert.True(t, f.Pairing)
	assert.Equal(t, OpPair, f.Op())
	assert.Equal(t, uint32(0x0456), f.Target)
	assert.Equal(t, uint8(9), f.Sequence)
	assert.Equal(t, testKey, f.Key)
}

func TestDecodeWrongKey(t *testing.T) {
	other := MeshKey{0x30, 0x32, 0x33, 0x37}

	adv, err := Encode(FactoryReset(5), testKey, 1)
	require.NoError(t, err)
	_, err = Decode(adv.Payload(), other)
	assert.ErrorIs(t, err, ErrKeyMismatch)

	adv, err = Encode(Pair(5, 1), testKey, 1)
	require.NoError(t, err)
	_, err = Decode(adv.Payload(), other)
	assert.ErrorIs(t, err, ErrKeyMismatch)
}

func TestDecodeCorruptPairing(t *testing.T) {
	adv, err := Encode(Pair(5, 1), testKey, 1)
	require.NoError(t, err)

	p := adv.Payload()
	p[len(p)-1] ^= 0xff
	_, err = Decode(p, testKey)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestManufacturerPayload(t *testing.T) {
	_, err := ManufacturerPayload([]byte{0x02, 0x01, 0x06})
	assert.ErrorIs(t, err, ErrMalformedPacket)

	_, err = ManufacturerPayload([]byte{0x02, 0x01, 0x06, 0x05, 0xff, 0x4c, 0x00, 0x01, 0x02})
	assert.ErrorIs(t, err, ErrMalformedPacket)

	p, err := ManufacturerPayload([]byte{0x02, 0x01, 0x06, 0x03, 0xff, 0xf0, 0xff, 0xaa, 0xbb})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb}, p)
}
