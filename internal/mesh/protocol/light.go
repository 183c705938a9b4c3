package protocol

import (
	"fmt"
	"math"
)

// ColorMode selects which channels of a LightState are sent.
type ColorMode uint8

// Colour modes supported by Fastcon lights.
const (
	// ColorModeBrightness sends brightness only (white mode).
	ColorModeBrightness ColorMode = iota

	// ColorModeRGB sends red, green and blue channels.
	ColorModeRGB

	// ColorModeColdWarm sends the warm and cold white channels directly.
	ColorModeColdWarm

	// ColorModeTemperature derives warm and cold channels from a colour
	// temperature in mireds.
	ColorModeTemperature
)

var colorModeNames = map[ColorMode]string{
	ColorModeBrightness:  "brightness",
	ColorModeRGB:         "rgb",
	ColorModeColdWarm:    "cold_warm",
	ColorModeTemperature: "temperature",
}

// String returns the mode name.
func (m ColorMode) String() string {
	if name, ok := colorModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("color_mode(%d)", uint8(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m ColorMode) MarshalText() ([]byte, error) {
	name, ok := colorModeNames[m]
	if !ok {
		return nil, fmt.Errorf("%w: unknown color mode %d", ErrInvalidCommand, uint8(m))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ColorMode) UnmarshalText(text []byte) error {
	for mode, name := range colorModeNames {
		if name == string(text) {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("%w: unknown color mode %q", ErrInvalidCommand, text)
}

// Colour temperature range supported by the lights, in mireds.
const (
	MinMireds = 153
	MaxMireds = 500
)

// LightState is the target state of a light.
// Channel values are fractions in [0, 1].
type LightState struct {
	On         bool      `json:"on" cbor:"1,keyasint"`
	Brightness float64   `json:"brightness" cbor:"2,keyasint"`
	Mode       ColorMode `json:"mode" cbor:"3,keyasint"`
	Red        float64   `json:"red,omitempty" cbor:"4,keyasint,omitempty"`
	Green      float64   `json:"green,omitempty" cbor:"5,keyasint,omitempty"`
	Blue       float64   `json:"blue,omitempty" cbor:"6,keyasint,omitempty"`
	Warm       float64   `json:"warm,omitempty" cbor:"7,keyasint,omitempty"`
	Cold       float64   `json:"cold,omitempty" cbor:"8,keyasint,omitempty"`
	Mireds     float64   `json:"mireds,omitempty" cbor:"9,keyasint,omitempty"`
}

// Validate rejects NaN channels and unknown modes.
func (s LightState) Validate() error {
	if _, ok := colorModeNames[s.Mode]; !ok {
		return fmt.Errorf("%w: unknown color mode %d", ErrInvalidCommand, uint8(s.Mode))
	}
	for _, v := range []float64{s.Brightness, s.Red, s.Green, s.Blue, s.Warm, s.Cold, s.Mireds} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: light state contains a non-finite value", ErrInvalidCommand)
		}
	}
	return nil
}

// Bytes returns the light data block carried in a state command.
//
// Off is a single zero byte and brightness-only is a single 7-bit brightness
// byte. Every other mode is six bytes:
//
//	[0x80 | brightness, blue, red, green, warm, cold]
func (s LightState) Bytes() []byte {
	if !s.On {
		return []byte{0x00}
	}

	brightness := byte(math.Min(clamp01(s.Brightness)*127, 127))
	if s.Mode == ColorModeBrightness {
		return []byte{brightness}
	}

	data := []byte{0x80 + brightness, 0, 0, 0, 0, 0}
	switch s.Mode {
	case ColorModeRGB:
		data[1] = channel(s.Blue)
		data[2] = channel(s.Red)
		data[3] = channel(s.Green)
	case ColorModeColdWarm:
		data[4] = channel(s.Warm)
		data[5] = channel(s.Cold)
	case ColorModeTemperature:
		data[4], data[5] = temperatureChannels(s.Mireds)
	}
	return data
}

// temperatureChannels maps mireds onto the warm/cold channel pair, linearly
// between MinMireds (warm=0xff) and MaxMireds (cold=0xff).
func temperatureChannels(mireds float64) (warm, cold byte) {
	switch {
	case mireds < MinMireds:
		return 0xff, 0x00
	case mireds > MaxMireds:
		return 0x00, 0xff
	}
	span := float64(MaxMireds - MinMireds)
	warm = byte((MaxMireds - mireds) * 255 / span)
	cold = byte((mireds - MinMireds) * 255 / span)
	return warm, cold
}

func channel(v float64) byte {
	return byte(clamp01(v) * 255)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
