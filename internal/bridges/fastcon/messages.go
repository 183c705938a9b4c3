package fastcon

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-fastcon/internal/mesh"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
)

// ProtocolName is the protocol identifier used in topics and messages.
const ProtocolName = "fastcon"

// Command names accepted on graylogic/command/fastcon/{light_id}.
const (
	CommandPair         = "pair"
	CommandFactoryReset = "factory_reset"
	CommandSetState     = "set_state"
	CommandClearQueue   = "clear_queue"
)

// Event names published on graylogic/event/fastcon/{event}.
const (
	EventSessionStarted     = "session_started"
	EventSessionFinished    = "session_finished"
	EventTransportError     = "transport_error"
	EventTransportRecovered = "transport_recovered"
	EventCommandDropped     = "command_dropped"
)

// WebSocket channels the bridge broadcasts on.
const (
	ChannelSession        = "mesh.session"
	ChannelDropped        = "mesh.dropped"
	ChannelTransportError = "mesh.transport_error"
)

// CommandMessage is sent from Core to the bridge to act on a light.
// Topic: graylogic/command/fastcon/{light_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	// Timestamp is when the command was issued.
	Timestamp time.Time `json:"timestamp"`

	// Command is one of pair, factory_reset, set_state or clear_queue.
	Command string `json:"command"`

	// Parameters holds PairParameters for pair and a protocol.LightState
	// for set_state.
	Parameters json.RawMessage `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	Source string `json:"source,omitempty"`
}

// PairParameters are the parameters of a pair command.
type PairParameters struct {
	GroupID uint32 `json:"group_id"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckQueued indicates the command was accepted into the mesh queue.
	AckQueued AckStatus = "queued"

	// AckCleared indicates a clear_queue command was applied.
	AckCleared AckStatus = "cleared"

	// AckFailed indicates the command was rejected.
	AckFailed AckStatus = "failed"
)

// Error codes for rejected commands.
const (
	ErrCodeQueueFull         = "QUEUE_FULL"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// AckMessage is sent from the bridge to Core after a command is handled.
// Topic: graylogic/ack/fastcon/{light_id}
type AckMessage struct {
	CommandID  string    `json:"command_id"`
	Timestamp  time.Time `json:"timestamp"`
	LightID    uint32    `json:"light_id"`
	Status     AckStatus `json:"status"`
	Protocol   string    `json:"protocol"`
	JournalID  string    `json:"journal_id,omitempty"`
	QueueDepth int       `json:"queue_depth"`
	Cleared    int       `json:"cleared,omitempty"`
	Error      *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage is published after a set_state command goes on air.
// Topic: graylogic/state/fastcon/{light_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	LightID   uint32              `json:"light_id"`
	Timestamp time.Time           `json:"timestamp"`
	State     protocol.LightState `json:"state"`
	Sequence  uint8               `json:"sequence"`
	Protocol  string              `json:"protocol"`
}

// EventMessage reports scheduler activity on the event topics and the
// websocket hub.
type EventMessage struct {
	Event      string    `json:"event"`
	Timestamp  time.Time `json:"timestamp"`
	LightID    uint32    `json:"light_id"`
	Opcode     string    `json:"opcode"`
	Sequence   *uint8    `json:"sequence,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	QueueDepth int       `json:"queue_depth"`
	Error      string    `json:"error,omitempty"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published periodically to report bridge status.
// Topic: graylogic/health/fastcon
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string           `json:"bridge"`
	Timestamp     time.Time        `json:"timestamp"`
	Status        HealthStatus     `json:"status"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Transport     *TransportStatus `json:"transport,omitempty"`
	Statistics    *MeshStatistics  `json:"statistics,omitempty"`
	Reason        string           `json:"reason,omitempty"`
}

// TransportStatus describes the advertiser the scheduler drives.
type TransportStatus struct {
	Kind        string     `json:"kind"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
}

// MeshStatistics mirrors the controller counters.
type MeshStatistics struct {
	State           string `json:"state"`
	QueueDepth      int    `json:"queue_depth"`
	QueueCapacity   int    `json:"queue_capacity"`
	Enqueued        uint64 `json:"enqueued"`
	Dropped         uint64 `json:"dropped"`
	Sessions        uint64 `json:"sessions"`
	TransportErrors uint64 `json:"transport_errors"`
	TransportDown   bool   `json:"transport_down"`
	EventsLost      uint64 `json:"events_lost"`
}

// NewAckMessage creates a queued acknowledgement.
func NewAckMessage(cmd CommandMessage, lightID uint32, journalID string, depth int) AckMessage {
	return AckMessage{
		CommandID:  cmd.ID,
		Timestamp:  time.Now().UTC(),
		LightID:    lightID,
		Status:     AckQueued,
		Protocol:   ProtocolName,
		JournalID:  journalID,
		QueueDepth: depth,
	}
}

// NewAckError creates a failed acknowledgement.
func NewAckError(cmd CommandMessage, lightID uint32, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		LightID:   lightID,
		Status:    AckFailed,
		Protocol:  ProtocolName,
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// NewStateMessage creates the retained state message for a transmitted
// set_state session.
func NewStateMessage(s mesh.Session) StateMessage {
	return StateMessage{
		LightID:   s.Command.Target,
		Timestamp: s.StartedAt.UTC(),
		State:     s.Command.State,
		Sequence:  s.Sequence,
		Protocol:  ProtocolName,
	}
}

// NewSessionEvent creates an event message for a session transition.
func NewSessionEvent(event string, s mesh.Session, depth int) EventMessage {
	seq := s.Sequence
	msg := EventMessage{
		Event:      event,
		Timestamp:  s.StartedAt.UTC(),
		LightID:    s.Command.Target,
		Opcode:     s.Command.Op.String(),
		Sequence:   &seq,
		QueueDepth: depth,
	}
	if !s.EndedAt.IsZero() {
		msg.Timestamp = s.EndedAt.UTC()
		msg.DurationMs = s.Duration().Milliseconds()
	}
	return msg
}

// NewCommandEvent creates an event message for a command that never went on
// air or whose transport call failed.
func NewCommandEvent(event string, cmd protocol.Command, err error, at time.Time, depth int) EventMessage {
	msg := EventMessage{
		Event:      event,
		Timestamp:  at.UTC(),
		LightID:    cmd.Target,
		Opcode:     cmd.Op.String(),
		QueueDepth: depth,
	}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// NewLWTMessage creates the Last Will and Testament payload the broker
// publishes if the bridge disconnects unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}
