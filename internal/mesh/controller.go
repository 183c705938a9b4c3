package mesh

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
)

// Default controller settings.
const (
	// DefaultIntervalMin is the minimum advertising interval (0x20 × 0.625 ms = 20 ms).
	DefaultIntervalMin uint16 = 0x20

	// DefaultIntervalMax is the maximum advertising interval (0x40 × 0.625 ms = 40 ms).
	DefaultIntervalMax uint16 = 0x40

	// DefaultDuration is how long each command stays on air.
	DefaultDuration = 50 * time.Millisecond

	// DefaultGap is the quiet period between two commands.
	DefaultGap = 10 * time.Millisecond

	// DefaultMaxQueueSize is the default command queue capacity.
	DefaultMaxQueueSize = 100
)

// Config holds the controller parameters.
type Config struct {
	// Key is the 4-byte mesh key.
	Key []byte

	// IntervalMin and IntervalMax bound the radio advertising interval in
	// units of 0.625 ms.
	IntervalMin uint16
	IntervalMax uint16

	// Duration is how long each command's payload stays installed.
	Duration time.Duration

	// Gap is the quiet period after each command.
	Gap time.Duration

	// MaxQueueSize bounds the number of pending commands.
	MaxQueueSize int
}

// DefaultConfig returns a Config with default timing for key.
func DefaultConfig(key []byte) Config {
	return Config{
		Key:          key,
		IntervalMin:  DefaultIntervalMin,
		IntervalMax:  DefaultIntervalMax,
		Duration:     DefaultDuration,
		Gap:          DefaultGap,
		MaxQueueSize: DefaultMaxQueueSize,
	}
}

// Validate checks the configuration and reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if _, err := protocol.NewMeshKey(c.Key); err != nil {
		errs = append(errs, err)
	}
	if c.IntervalMax < c.IntervalMin {
		errs = append(errs, fmt.Errorf("interval max 0x%02x is below interval min 0x%02x", c.IntervalMax, c.IntervalMin))
	}
	if c.Duration <= 0 {
		errs = append(errs, fmt.Errorf("advertising duration must be positive, got %s", c.Duration))
	}
	if c.Gap < 0 {
		errs = append(errs, fmt.Errorf("advertising gap must not be negative, got %s", c.Gap))
	}
	if c.MaxQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("max queue size must be positive, got %d", c.MaxQueueSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// Observer receives controller events. Callbacks run after the controller
// lock is released, on the goroutine that triggered them, and must not block.
type Observer interface {
	// OnEnqueued is called after a command is accepted. depth is the queue
	// length including the new command.
	OnEnqueued(cmd protocol.Command, depth int)

	// OnDropped is called when a command is rejected or discarded.
	OnDropped(cmd protocol.Command, err error)

	// OnSessionStarted is called when a command's payload is installed.
	OnSessionStarted(s Session)

	// OnSessionFinished is called when a command's payload is cleared.
	OnSessionFinished(s Session)

	// OnTransportError is called when the transport rejects a call after
	// having worked. Retries against a transport that is still failing are
	// counted in Stats but not reported again.
	OnTransportError(cmd protocol.Command, err error)

	// OnTransportRecovered is called on the first successful transport call
	// after OnTransportError.
	OnTransportRecovered()
}

// Logger is the logging interface used by the controller.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Stats is a snapshot of controller counters.
type Stats struct {
	State           State  `json:"state"`
	QueueDepth      int    `json:"queue_depth"`
	QueueCapacity   int    `json:"queue_capacity"`
	NextSequence    uint8  `json:"next_sequence"`
	Enqueued        uint64 `json:"enqueued"`
	Dropped         uint64 `json:"dropped"`
	Sessions        uint64 `json:"sessions"`
	TransportErrors uint64 `json:"transport_errors"`
	TransportDown   bool   `json:"transport_down"`
}

// Controller owns the command queue, the sequence counter and the
// advertisement scheduler for one mesh.
//
// Thread Safety: All methods are safe for concurrent use. Action methods may
// be called from MQTT or HTTP goroutines while Poll runs on a ticker.
type Controller struct {
	mu    sync.Mutex
	queue *Queue[protocol.Command]
	sched *scheduler
	stats Stats

	observer   Observer
	observerMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// New validates cfg and creates a controller driving transport.
// The mesh key cannot be changed afterwards; re-keying means a new Controller.
func New(cfg Config, transport Transport) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrConfiguration)
	}

	key, _ := protocol.NewMeshKey(cfg.Key) //nolint:errcheck // validated above
	queue := NewQueue[protocol.Command](cfg.MaxQueueSize)

	return &Controller{
		queue: queue,
		sched: newScheduler(queue, transport, key, timing{
			intervalMin: cfg.IntervalMin,
			intervalMax: cfg.IntervalMax,
			duration:    cfg.Duration,
			gap:         cfg.Gap,
		}),
	}, nil
}

// SetObserver sets the event observer. Pass nil to remove it.
func (c *Controller) SetObserver(o Observer) {
	c.observerMu.Lock()
	c.observer = o
	c.observerMu.Unlock()
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// PairDevice queues a pairing advertisement assigning lightID to a light in
// pairing mode. A zero groupID selects protocol.DefaultGroup.
func (c *Controller) PairDevice(lightID, groupID uint32) error {
	return c.Submit(protocol.Pair(lightID, groupID))
}

// FactoryReset queues a factory reset for lightID. Repeated calls queue
// independent commands.
func (c *Controller) FactoryReset(lightID uint32) error {
	return c.Submit(protocol.FactoryReset(lightID))
}

// SetState queues a state change for lightID.
func (c *Controller) SetState(lightID uint32, state protocol.LightState) error {
	return c.Submit(protocol.SetState(lightID, state))
}

// Submit validates cmd and appends it to the queue. It never waits for
// transmission.
func (c *Controller) Submit(cmd protocol.Command) error {
	if err := cmd.Validate(); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		c.notifyDropped(cmd, err)
		return err
	}

	c.mu.Lock()
	accepted := c.queue.Enqueue(cmd)
	depth := c.queue.Len()
	if accepted {
		c.stats.Enqueued++
	} else {
		c.stats.Dropped++
	}
	c.mu.Unlock()

	if !accepted {
		err := fmt.Errorf("%w: %s dropped at depth %d", ErrQueueFull, cmd, depth)
		c.logWarn("command queue full, dropping command",
			"light_id", cmd.Target,
			"opcode", cmd.Op.String(),
			"queue_size", depth)
		c.notifyDropped(cmd, err)
		return err
	}

	c.logDebug("command queued",
		"light_id", cmd.Target,
		"opcode", cmd.Op.String(),
		"queue_size", depth)
	if o := c.getObserver(); o != nil {
		o.OnEnqueued(cmd, depth)
	}
	return nil
}

// ClearQueue discards all pending commands and returns how many were
// removed. An active session is not interrupted.
func (c *Controller) ClearQueue() int {
	c.mu.Lock()
	n := c.queue.Clear()
	c.mu.Unlock()

	if n > 0 {
		c.logInfo("command queue cleared", "discarded", n)
	}
	return n
}

// QueueSize returns the number of pending commands.
func (c *Controller) QueueSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Pending returns the pending commands in transmission order.
func (c *Controller) Pending() []protocol.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Snapshot()
}

// State returns the scheduler state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sched.state
}

// Current returns the session on air, if any.
func (c *Controller) Current() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sched.current()
}

// Stats returns a snapshot of the controller counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.State = c.sched.state
	s.QueueDepth = c.queue.Len()
	s.QueueCapacity = c.queue.Cap()
	s.NextSequence = c.sched.seq.Peek()
	s.TransportErrors = c.sched.failures
	s.TransportDown = c.sched.transportDown
	return s
}

// Poll advances the scheduler to now. It is non-blocking and intended to be
// called every few milliseconds.
func (c *Controller) Poll(now time.Time) {
	c.mu.Lock()
	out := c.sched.poll(now)
	for i := range out.n {
		switch out.events[i].kind {
		case eventSessionStarted:
			c.stats.Sessions++
		case eventDropped:
			c.stats.Dropped++
		}
	}
	c.mu.Unlock()

	for i := range out.n {
		c.dispatch(out.events[i])
	}
}

func (c *Controller) dispatch(e event) {
	switch e.kind {
	case eventSessionStarted:
		c.logDebug("advertising started",
			"light_id", e.session.Command.Target,
			"opcode", e.session.Command.Op.String(),
			"sequence", e.session.Sequence)
		if o := c.getObserver(); o != nil {
			o.OnSessionStarted(e.session)
		}

	case eventSessionFinished:
		c.logDebug("advertising finished, entering gap",
			"light_id", e.session.Command.Target,
			"duration", e.session.Duration())
		if o := c.getObserver(); o != nil {
			o.OnSessionFinished(e.session)
		}

	case eventTransportError:
		c.logError("transport unavailable, retrying on every poll", e.err)
		if o := c.getObserver(); o != nil {
			o.OnTransportError(e.cmd, e.err)
		}

	case eventTransportRecovered:
		c.logInfo("transport recovered", "failed_calls", c.Stats().TransportErrors)
		if o := c.getObserver(); o != nil {
			o.OnTransportRecovered()
		}

	case eventDropped:
		c.logError("discarding unencodable command", e.err)
		if o := c.getObserver(); o != nil {
			o.OnDropped(e.cmd, e.err)
		}
	}
}

func (c *Controller) notifyDropped(cmd protocol.Command, err error) {
	if o := c.getObserver(); o != nil {
		o.OnDropped(cmd, err)
	}
}

func (c *Controller) getObserver() Observer {
	c.observerMu.RLock()
	defer c.observerMu.RUnlock()
	return c.observer
}

func (c *Controller) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Controller) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Controller) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Controller) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (c *Controller) logError(msg string, err error) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
