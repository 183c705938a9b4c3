package lights

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
)

// Light is a registry row for one light id.
type Light struct {
	ID         uint32               `json:"id"`
	Name       string               `json:"name"`
	GroupID    uint32               `json:"group_id"`
	PairedAt   *time.Time           `json:"paired_at,omitempty"`
	LastState  *protocol.LightState `json:"last_state,omitempty"`
	LastSeenAt *time.Time           `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Paired reports whether the light has been paired and not reset since.
func (l Light) Paired() bool {
	return l.PairedAt != nil
}

// Status is the lifecycle of a journalled command.
type Status string

// Journal statuses.
const (
	// StatusQueued means the command was accepted into the command queue.
	StatusQueued Status = "queued"

	// StatusTransmitted means an advertising session for the command started.
	StatusTransmitted Status = "transmitted"

	// StatusDropped means the command was rejected by a full queue or cleared from it.
	StatusDropped Status = "dropped"

	// StatusFailed means the command could not be encoded and was discarded.
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusTransmitted, StatusDropped, StatusFailed:
		return true
	}
	return false
}

// Entry is one command journal row.
type Entry struct {
	ID            string               `json:"id"`
	LightID       uint32               `json:"light_id"`
	GroupID       uint32               `json:"group_id,omitempty"`
	Opcode        string               `json:"opcode"`
	State         *protocol.LightState `json:"state,omitempty"`
	Status        Status               `json:"status"`
	Sequence      *uint8               `json:"sequence,omitempty"`
	Error         string               `json:"error,omitempty"`
	Source        string               `json:"source,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	TransmittedAt *time.Time           `json:"transmitted_at,omitempty"`
}

// EntryFor builds a journal entry for cmd with the given initial status.
// The id is assigned by Journal.Append.
func EntryFor(cmd protocol.Command, status Status, source string) Entry {
	e := Entry{
		LightID: cmd.Target,
		Opcode:  cmd.Op.String(),
		Status:  status,
		Source:  source,
	}
	switch cmd.Op {
	case protocol.OpPair:
		e.GroupID = cmd.Group
	case protocol.OpSetState:
		state := cmd.State
		e.State = &state
	}
	return e
}

// encodeState marshals a light state to CBOR. A nil state encodes to nil.
func encodeState(s *protocol.LightState) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	data, err := cbor.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding light state: %w", err)
	}
	return data, nil
}

// decodeState is the inverse of encodeState.
func decodeState(data []byte) (*protocol.LightState, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var s protocol.LightState
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding light state: %w", err)
	}
	return &s, nil
}
