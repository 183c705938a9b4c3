package fastcon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fastcon/internal/lights"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
)

// Bridge operation constants.
const (
	// commandTopicParts is the number of parts in graylogic/command/fastcon/{light_id}.
	commandTopicParts = 4

	// storeTimeout bounds each registry or journal write.
	storeTimeout = 5 * time.Second

	// defaultPollInterval is the scheduler tick when none is configured.
	defaultPollInterval = 5 * time.Millisecond

	// defaultEventBuffer is the event channel size when none is configured.
	defaultEventBuffer = 256
)

// Bridge connects a mesh controller to the rest of Gray Logic. It handles:
//   - Commands from Core via MQTT, translated to controller actions
//   - Driving the scheduler from a poll ticker
//   - Fanning scheduler events out to the journal, light registry,
//     metrics, websocket hub and MQTT
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mesh    *mesh.Controller
	mqtt    MQTTClient
	health  *HealthReporter
	lights  lights.Repository // Optional
	journal lights.Journal    // Optional
	metrics MetricsWriter     // Optional
	events  EventSink         // Optional
	topics  mqtt.Topics

	pollInterval time.Duration

	// submitMu keeps journal order and queue order identical.
	submitMu sync.Mutex

	eventCh    chan meshEvent
	eventsLost atomic.Uint64

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations. *mqtt.Client satisfies it.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// MetricsWriter records transmission metrics. *influxdb.Client satisfies it.
type MetricsWriter interface {
	WriteSession(s influxdb.Session)
	WriteDrop(lightID uint32, opcode, reason string, at time.Time)
	WriteQueueDepth(depth, capacity int, at time.Time)
	WriteTransportError(opcode string, at time.Time)
}

// EventSink receives events for websocket clients. *api.Hub satisfies it.
type EventSink interface {
	Broadcast(channel string, payload any)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Controller is the mesh controller the bridge drives.
	Controller *mesh.Controller

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Lights is the optional light registry updated when sessions start.
	Lights lights.Repository

	// Journal is the optional command journal.
	Journal lights.Journal

	// Metrics is the optional metrics writer.
	Metrics MetricsWriter

	// Events is the optional websocket event sink.
	Events EventSink

	// Logger is optional structured logger.
	Logger Logger

	// Version is reported in health messages.
	Version string

	// TransportKind names the advertiser in health messages.
	TransportKind string

	// PollInterval is the scheduler tick. Default: 5ms.
	PollInterval time.Duration

	// HealthInterval is the health report period. Default: 30s.
	HealthInterval time.Duration

	// EventBuffer is the event channel size. Default: 256.
	EventBuffer int
}

// Receipt describes an accepted or rejected action.
type Receipt struct {
	// JournalID identifies the journal row for the command.
	JournalID string `json:"journal_id"`

	// Command is the queued command.
	Command protocol.Command `json:"-"`

	// QueueDepth is the queue length after the action.
	QueueDepth int `json:"queue_depth"`
}

// NewBridge creates a new bridge instance. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Controller == nil {
		return nil, fmt.Errorf("mesh controller is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		mesh:         opts.Controller,
		mqtt:         opts.MQTTClient,
		lights:       opts.Lights,
		journal:      opts.Journal,
		metrics:      opts.Metrics,
		events:       opts.Events,
		pollInterval: pollInterval,
		eventCh:      make(chan meshEvent, buffer),
		done:         make(chan struct{}),
		ctx:          ctx,
		ctxCancel:    ctxCancel,
		logger:       opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:      ProtocolName,
		Version:       opts.Version,
		Interval:      opts.HealthInterval,
		Publisher:     opts.MQTTClient,
		Mesh:          opts.Controller,
		TransportKind: opts.TransportKind,
	})
	b.health.setEventsLost(b.eventsLost.Load)
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Health returns the bridge's health reporter, for LWT registration.
func (b *Bridge) Health() *HealthReporter {
	return b.health
}

// Start subscribes to commands, starts the event loop, the poll ticker and
// health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Journal rows left queued by a previous process can never resolve.
	if b.journal != nil {
		storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		n, err := b.journal.DropQueued(storeCtx, 0, "bridge restarted")
		cancel()
		if err != nil {
			b.logError("failed to drop stale journal entries", err)
		} else if n > 0 {
			b.logInfo("dropped stale journal entries", "count", n)
		}
	}

	b.mesh.SetObserver(b)

	b.wg.Add(2)
	go b.eventLoop()
	go b.pollLoop()

	commandTopic := b.topics.BridgeCommands(ProtocolName)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		b.Stop()
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("bridge started",
		"poll_interval", b.pollInterval.String(),
		"queue_capacity", b.mesh.Stats().QueueCapacity)

	return nil
}

// Stop gracefully shuts down the bridge. Events already buffered are
// processed before Stop returns.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		b.mesh.SetObserver(nil)

		b.logInfo("bridge stopped", "events_lost", b.eventsLost.Load())
	})
}

// pollLoop advances the scheduler on every tick.
func (b *Bridge) pollLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case now := <-ticker.C:
			b.mesh.Poll(now)
		}
	}
}

// PairDevice queues a pairing command for lightID.
func (b *Bridge) PairDevice(ctx context.Context, lightID, groupID uint32, source string) (Receipt, error) {
	return b.Submit(ctx, protocol.Pair(lightID, groupID), source)
}

// FactoryReset queues a factory reset for lightID.
func (b *Bridge) FactoryReset(ctx context.Context, lightID uint32, source string) (Receipt, error) {
	return b.Submit(ctx, protocol.FactoryReset(lightID), source)
}

// SetState queues a state change for lightID.
func (b *Bridge) SetState(ctx context.Context, lightID uint32, state protocol.LightState, source string) (Receipt, error) {
	return b.Submit(ctx, protocol.SetState(lightID, state), source)
}

// Submit journals cmd and hands it to the controller. Invalid commands are
// journaled as failed and never reach the queue; commands rejected by a
// full queue are journaled as dropped.
func (b *Bridge) Submit(ctx context.Context, cmd protocol.Command, source string) (Receipt, error) {
	entry := lights.EntryFor(cmd, lights.StatusQueued, source)
	entry.ID = uuid.NewString()
	receipt := Receipt{JournalID: entry.ID, Command: cmd}

	if err := cmd.Validate(); err != nil {
		entry.Status = lights.StatusFailed
		entry.Error = err.Error()
		b.appendJournal(ctx, entry)
		receipt.QueueDepth = b.mesh.QueueSize()
		return receipt, fmt.Errorf("%w: %w", mesh.ErrInvalidCommand, err)
	}

	b.submitMu.Lock()
	defer b.submitMu.Unlock()

	journaled := b.appendJournal(ctx, entry)
	err := b.mesh.Submit(cmd)
	receipt.QueueDepth = b.mesh.QueueSize()
	if err == nil {
		return receipt, nil
	}

	status := lights.StatusFailed
	if errors.Is(err, mesh.ErrQueueFull) {
		status = lights.StatusDropped
	}
	if journaled {
		storeCtx, cancel := b.storeContext(ctx)
		defer cancel()
		if jerr := b.journal.SetStatus(storeCtx, entry.ID, status, err.Error()); jerr != nil {
			b.logError("failed to update journal entry", jerr)
		}
	}
	return receipt, err
}

// ClearQueue discards all pending commands and marks their journal rows
// dropped. Returns how many commands were discarded.
func (b *Bridge) ClearQueue(ctx context.Context) int {
	b.submitMu.Lock()
	defer b.submitMu.Unlock()

	n := b.mesh.ClearQueue()
	if n == 0 {
		return 0
	}

	if b.journal != nil {
		storeCtx, cancel := b.storeContext(ctx)
		defer cancel()
		if _, err := b.journal.DropQueued(storeCtx, n, "queue cleared"); err != nil {
			b.logError("failed to drop cleared journal entries", err)
		}
	}
	if b.metrics != nil {
		b.metrics.WriteQueueDepth(0, b.mesh.Stats().QueueCapacity, time.Now())
	}
	return n
}

// Stats returns the controller counters.
func (b *Bridge) Stats() mesh.Stats {
	return b.mesh.Stats()
}

// Pending returns the queued commands in transmission order.
func (b *Bridge) Pending() []protocol.Command {
	return b.mesh.Pending()
}

// Current returns the session on air, if any.
func (b *Bridge) Current() (mesh.Session, bool) {
	return b.mesh.Current()
}

// appendJournal stores entry and reports whether it was stored.
func (b *Bridge) appendJournal(ctx context.Context, entry lights.Entry) bool {
	if b.journal == nil {
		return false
	}
	storeCtx, cancel := b.storeContext(ctx)
	defer cancel()
	if _, err := b.journal.Append(storeCtx, entry); err != nil {
		b.logError("failed to append journal entry", err)
		return false
	}
	return true
}

// storeContext bounds a store call made on behalf of a caller.
func (b *Bridge) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

// handleMQTTMessage handles a command published on
// graylogic/command/fastcon/{light_id}. Errors are reported through acks,
// so the handler itself never fails.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return nil
	}

	lightID, err := parseLightTopic(topic)
	if err != nil {
		b.logError("invalid command topic", err)
		return nil
	}

	b.logDebug("received command",
		"command_id", cmd.ID,
		"light_id", lightID,
		"command", cmd.Command)

	source := cmd.Source
	if source == "" {
		source = "mqtt"
	}

	var receipt Receipt
	switch cmd.Command {
	case CommandPair:
		var params PairParameters
		if err := decodeParameters(cmd.Parameters, &params); err != nil {
			b.publishAckError(cmd, lightID, ErrCodeInvalidParameters, err.Error())
			return nil
		}
		receipt, err = b.PairDevice(b.ctx, lightID, params.GroupID, source)

	case CommandFactoryReset:
		receipt, err = b.FactoryReset(b.ctx, lightID, source)

	case CommandSetState:
		var state protocol.LightState
		if len(cmd.Parameters) == 0 {
			b.publishAckError(cmd, lightID, ErrCodeInvalidParameters, "set_state requires a light state")
			return nil
		}
		if err := decodeParameters(cmd.Parameters, &state); err != nil {
			b.publishAckError(cmd, lightID, ErrCodeInvalidParameters, err.Error())
			return nil
		}
		receipt, err = b.SetState(b.ctx, lightID, state, source)

	case CommandClearQueue:
		n := b.ClearQueue(b.ctx)
		ack := NewAckMessage(cmd, lightID, "", 0)
		ack.Status = AckCleared
		ack.Cleared = n
		b.publishAck(ack)
		return nil

	default:
		b.publishAckError(cmd, lightID, ErrCodeInvalidCommand,
			fmt.Sprintf("%v: %s", ErrUnknownCommand, cmd.Command))
		return nil
	}

	switch {
	case err == nil:
		b.publishAck(NewAckMessage(cmd, lightID, receipt.JournalID, receipt.QueueDepth))
	case errors.Is(err, mesh.ErrQueueFull):
		b.publishAckError(cmd, lightID, ErrCodeQueueFull, err.Error())
	case errors.Is(err, mesh.ErrInvalidCommand):
		b.publishAckError(cmd, lightID, ErrCodeInvalidParameters, err.Error())
	default:
		b.publishAckError(cmd, lightID, ErrCodeBridgeError, err.Error())
	}
	return nil
}

// parseLightTopic extracts the light id from a command topic.
func parseLightTopic(topic string) (uint32, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != commandTopicParts || parts[1] != "command" || parts[2] != ProtocolName {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
	id, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: light id %q", ErrInvalidTopic, parts[3])
	}
	return uint32(id), nil
}

// decodeParameters unmarshals command parameters. Empty parameters leave v
// at its zero value.
func decodeParameters(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	return nil
}

// publishAck publishes a command acknowledgement.
func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	topic := b.topics.BridgeAck(ProtocolName, strconv.FormatUint(uint64(ack.LightID), 10))
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// publishAckError publishes a failed command acknowledgement.
func (b *Bridge) publishAckError(cmd CommandMessage, lightID uint32, code, message string) {
	b.publishAck(NewAckError(cmd, lightID, code, message))
	b.logWarn("command rejected",
		"command_id", cmd.ID,
		"light_id", lightID,
		"code", code,
		"message", message)
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// BridgeMetrics contains metrics data for the API health endpoint.
type BridgeMetrics struct {
	Connected  bool       `json:"mqtt_connected"`
	Stats      mesh.Stats `json:"mesh"`
	EventsLost uint64     `json:"events_lost"`
}

// GetMetrics returns current bridge metrics.
func (b *Bridge) GetMetrics() BridgeMetrics {
	return BridgeMetrics{
		Connected:  b.mqtt.IsConnected(),
		Stats:      b.mesh.Stats(),
		EventsLost: b.eventsLost.Load(),
	}
}
