package fastcon

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-fastcon/internal/lights"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
)

type eventKind uint8

const (
	kindEnqueued eventKind = iota + 1
	kindDropped
	kindSessionStarted
	kindSessionFinished
	kindTransportError
	kindTransportRecovered
)

func (k eventKind) String() string {
	switch k {
	case kindEnqueued:
		return "enqueued"
	case kindDropped:
		return "dropped"
	case kindSessionStarted:
		return EventSessionStarted
	case kindSessionFinished:
		return EventSessionFinished
	case kindTransportError:
		return EventTransportError
	case kindTransportRecovered:
		return EventTransportRecovered
	default:
		return "unknown"
	}
}

// meshEvent is a controller callback captured for the event loop.
type meshEvent struct {
	kind    eventKind
	cmd     protocol.Command
	session mesh.Session
	depth   int
	err     error
	at      time.Time
}

// The mesh.Observer methods run on the caller's goroutine (the poll ticker
// or an action handler) and only hand the event to the loop.

// OnEnqueued implements mesh.Observer.
func (b *Bridge) OnEnqueued(cmd protocol.Command, depth int) {
	b.emit(meshEvent{kind: kindEnqueued, cmd: cmd, depth: depth, at: time.Now()})
}

// OnDropped implements mesh.Observer.
func (b *Bridge) OnDropped(cmd protocol.Command, err error) {
	b.emit(meshEvent{kind: kindDropped, cmd: cmd, err: err, at: time.Now()})
}

// OnSessionStarted implements mesh.Observer.
func (b *Bridge) OnSessionStarted(s mesh.Session) {
	b.emit(meshEvent{kind: kindSessionStarted, cmd: s.Command, session: s, at: s.StartedAt})
}

// OnSessionFinished implements mesh.Observer.
func (b *Bridge) OnSessionFinished(s mesh.Session) {
	b.emit(meshEvent{kind: kindSessionFinished, cmd: s.Command, session: s, at: s.EndedAt})
}

// OnTransportError implements mesh.Observer.
func (b *Bridge) OnTransportError(cmd protocol.Command, err error) {
	b.emit(meshEvent{kind: kindTransportError, cmd: cmd, err: err, at: time.Now()})
}

// OnTransportRecovered implements mesh.Observer.
func (b *Bridge) OnTransportRecovered() {
	b.emit(meshEvent{kind: kindTransportRecovered, at: time.Now()})
}

// emit queues e for the event loop without blocking.
func (b *Bridge) emit(e meshEvent) {
	select {
	case b.eventCh <- e:
	default:
		b.eventsLost.Add(1)
		b.logWarn("event buffer full, discarding mesh event",
			"event", e.kind.String(),
			"light_id", e.cmd.Target)
	}
}

// eventLoop processes mesh events until Stop, then drains what is buffered.
func (b *Bridge) eventLoop() {
	defer b.wg.Done()

	for {
		select {
		case e := <-b.eventCh:
			b.handleEvent(e)
		case <-b.done:
			for {
				select {
				case e := <-b.eventCh:
					b.handleEvent(e)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) handleEvent(e meshEvent) {
	ctx, cancel := b.storeContext(b.ctx)
	defer cancel()

	switch e.kind {
	case kindEnqueued:
		if b.metrics != nil {
			b.metrics.WriteQueueDepth(e.depth, b.mesh.Stats().QueueCapacity, e.at)
		}

	case kindDropped:
		b.handleDropped(ctx, e)

	case kindSessionStarted:
		b.handleSessionStarted(ctx, e.session)

	case kindSessionFinished:
		if b.metrics != nil {
			b.metrics.WriteSession(influxdb.Session{
				LightID:  e.session.Command.Target,
				Opcode:   e.session.Command.Op.String(),
				Sequence: e.session.Sequence,
				Started:  e.session.StartedAt,
				Duration: e.session.Duration(),
			})
		}
		b.broadcast(ChannelSession, EventSessionFinished,
			NewSessionEvent(EventSessionFinished, e.session, b.mesh.QueueSize()))

	case kindTransportError:
		b.health.RecordTransportError(e.err, e.at)
		if b.metrics != nil {
			b.metrics.WriteTransportError(e.cmd.Op.String(), e.at)
		}
		b.broadcast(ChannelTransportError, EventTransportError,
			NewCommandEvent(EventTransportError, e.cmd, e.err, e.at, b.mesh.QueueSize()))

	case kindTransportRecovered:
		b.broadcast(ChannelTransportError, EventTransportRecovered, EventMessage{
			Event:      EventTransportRecovered,
			Timestamp:  e.at.UTC(),
			QueueDepth: b.mesh.QueueSize(),
		})
	}
}

// handleDropped records a discarded command. Queue-full rejections were
// journaled by Submit; anything else was dropped by the scheduler after it
// left the queue.
func (b *Bridge) handleDropped(ctx context.Context, e meshEvent) {
	reason := influxdb.DropReasonEncode
	if errors.Is(e.err, mesh.ErrQueueFull) {
		reason = influxdb.DropReasonQueueFull
	} else if b.journal != nil {
		_, err := b.journal.Resolve(ctx, e.cmd.Target, e.cmd.Op.String(), lights.StatusFailed, nil, e.err.Error(), e.at)
		if err != nil && !errors.Is(err, lights.ErrEntryNotFound) {
			b.logError("failed to journal dropped command", err)
		}
	}

	if b.metrics != nil {
		b.metrics.WriteDrop(e.cmd.Target, e.cmd.Op.String(), reason, e.at)
	}
	b.broadcast(ChannelDropped, EventCommandDropped,
		NewCommandEvent(EventCommandDropped, e.cmd, e.err, e.at, b.mesh.QueueSize()))
}

// handleSessionStarted journals the transmission and applies its effect to
// the light registry.
func (b *Bridge) handleSessionStarted(ctx context.Context, s mesh.Session) {
	cmd := s.Command

	if b.journal != nil {
		seq := s.Sequence
		_, err := b.journal.Resolve(ctx, cmd.Target, cmd.Op.String(), lights.StatusTransmitted, &seq, "", s.StartedAt)
		if errors.Is(err, lights.ErrEntryNotFound) {
			b.logWarn("no queued journal entry for session",
				"light_id", cmd.Target,
				"opcode", cmd.Op.String())
		} else if err != nil {
			b.logError("failed to journal session", err)
		}
	}

	if b.lights != nil {
		var err error
		switch cmd.Op {
		case protocol.OpPair:
			err = b.lights.MarkPaired(ctx, cmd.Target, cmd.Group, s.StartedAt)
		case protocol.OpFactoryReset:
			err = b.lights.MarkReset(ctx, cmd.Target, s.StartedAt)
		case protocol.OpSetState:
			err = b.lights.RecordState(ctx, cmd.Target, cmd.State, s.StartedAt)
		}
		if err != nil {
			b.logError("failed to update light registry", err)
		}
	}

	if cmd.Op == protocol.OpSetState {
		b.publishState(s)
	}

	b.broadcast(ChannelSession, EventSessionStarted,
		NewSessionEvent(EventSessionStarted, s, b.mesh.QueueSize()))
}

// publishState publishes the retained state of a light after a set_state
// goes on air.
func (b *Bridge) publishState(s mesh.Session) {
	payload, err := json.Marshal(NewStateMessage(s))
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	topic := b.topics.BridgeState(ProtocolName, strconv.FormatUint(uint64(s.Command.Target), 10))
	if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

// broadcast sends msg to websocket clients on channel and to the MQTT event
// topic.
func (b *Bridge) broadcast(channel, event string, msg EventMessage) {
	if b.events != nil {
		b.events.Broadcast(channel, msg)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal event", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.BridgeEvent(ProtocolName, event), payload, 0, false); err != nil {
		b.logDebug("failed to publish event", "event", event, "error", err)
	}
}
