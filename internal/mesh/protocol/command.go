package protocol

import (
	"fmt"
	"strings"
)

// Opcode identifies what a Command asks a light to do.
//
// The set is closed: every opcode has a fixed on-air layout that existing
// lights understand, so new opcodes need matching firmware support.
type Opcode uint8

// Supported opcodes.
const (
	// OpPair assigns a light id to a light in pairing mode and hands it the mesh key.
	OpPair Opcode = iota + 1

	// OpFactoryReset returns a light to its unpaired state.
	OpFactoryReset

	// OpSetState changes on/off, brightness and colour.
	OpSetState
)

// String returns the opcode name used in MQTT and REST messages.
func (o Opcode) String() string {
	switch o {
	case OpPair:
		return "pair"
	case OpFactoryReset:
		return "factory_reset"
	case OpSetState:
		return "set_state"
	default:
		return fmt.Sprintf("opcode(%d)", uint8(o))
	}
}

// Valid reports whether o is one of the supported opcodes.
func (o Opcode) Valid() bool {
	return o >= OpPair && o <= OpSetState
}

// ParseOpcode parses an opcode name as produced by Opcode.String.
// Dashes are accepted in place of underscores ("factory-reset").
func ParseOpcode(s string) (Opcode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "pair":
		return OpPair, nil
	case "factory_reset", "reset":
		return OpFactoryReset, nil
	case "set_state", "state":
		return OpSetState, nil
	default:
		return 0, fmt.Errorf("%w: unknown opcode %q", ErrInvalidCommand, s)
	}
}

// DefaultGroup is the group a light joins when no group is given.
const DefaultGroup uint32 = 1

// MaxLightID is the highest light id addressable in a mesh packet header
// (a 4-bit high nibble plus a low byte).
const MaxLightID uint32 = 0x0FFF

// Command is a logical instruction for one light, before encoding.
// Commands are values; once queued they are never modified.
type Command struct {
	// Target is the light id.
	Target uint32

	// Group is the group id. Only meaningful for OpPair.
	Group uint32

	// Op selects the packet layout.
	Op Opcode

	// State is the requested light state. Only meaningful for OpSetState.
	State LightState
}

// Pair builds a pairing command. A zero group selects DefaultGroup.
func Pair(target, group uint32) Command {
	if group == 0 {
		group = DefaultGroup
	}
	return Command{Target: target, Group: group, Op: OpPair}
}

// FactoryReset builds a factory reset command.
func FactoryReset(target uint32) Command {
	return Command{Target: target, Group: DefaultGroup, Op: OpFactoryReset}
}

// SetState builds a state change command.
func SetState(target uint32, state LightState) Command {
	return Command{Target: target, Group: DefaultGroup, Op: OpSetState, State: state}
}

// Validate checks that the command can be encoded.
func (c Command) Validate() error {
	if !c.Op.Valid() {
		return fmt.Errorf("%w: unknown opcode %d", ErrInvalidCommand, uint8(c.Op))
	}
	if c.Target > MaxLightID {
		return fmt.Errorf("%w: light id %d exceeds %d", ErrInvalidCommand, c.Target, MaxLightID)
	}
	if c.Op == OpSetState {
		if err := c.State.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// String returns a short human-readable form for logs.
func (c Command) String() string {
	return fmt.Sprintf("%s light=%d group=%d", c.Op, c.Target, c.Group)
}
