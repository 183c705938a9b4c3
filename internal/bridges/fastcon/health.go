package fastcon

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh"
)

// defaultHealthInterval is used when HealthReporterConfig.Interval is zero.
const defaultHealthInterval = 30 * time.Second

// StatsProvider exposes controller counters to the health reporter.
// *mesh.Controller satisfies it.
type StatsProvider interface {
	Stats() mesh.Stats
}

// HealthPublisher is the interface for publishing health messages.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// BridgeID is the bridge identifier for health messages.
	BridgeID string

	// Version is the bridge software version.
	Version string

	// Interval is how often to publish health status. Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Mesh provides queue and session counters.
	Mesh StatsProvider

	// TransportKind names the advertiser ("hci" or "mqtt").
	TransportKind string
}

// HealthReporter publishes bridge health at a fixed interval.
type HealthReporter struct {
	bridgeID      string
	version       string
	startTime     time.Time
	interval      time.Duration
	publisher     HealthPublisher
	mesh          StatsProvider
	transportKind string

	// Transport error tracking (updated from the bridge event loop)
	lastErr   string
	lastErrAt time.Time
	lostFn    func() uint64
	errMu     sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a health reporter. Call Start to begin
// reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		bridgeID:      cfg.BridgeID,
		version:       cfg.Version,
		startTime:     time.Now(),
		interval:      interval,
		publisher:     cfg.Publisher,
		mesh:          cfg.Mesh,
		transportKind: cfg.TransportKind,
		done:          make(chan struct{}),
	}
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop stops reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// RecordTransportError remembers the most recent transport failure. The
// bridge reports degraded while the controller says the transport is down
// and for a full interval after it recovers.
func (h *HealthReporter) RecordTransportError(err error, at time.Time) {
	h.errMu.Lock()
	h.lastErr = err.Error()
	h.lastErrAt = at
	h.errMu.Unlock()
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus(time.Now())
	return h.publishStatus(status, reason)
}

// GetLWTPayload returns the Last Will and Testament message payload.
func (h *HealthReporter) GetLWTPayload() ([]byte, error) {
	return json.Marshal(NewLWTMessage(h.bridgeID))
}

// GetLWTTopic returns the topic for the Last Will and Testament.
func (h *HealthReporter) GetLWTTopic() string {
	return mqtt.Topics{}.BridgeHealth(ProtocolName)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus(now time.Time) (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	var stats mesh.Stats
	if h.mesh != nil {
		stats = h.mesh.Stats()
	}
	if stats.TransportDown {
		return HealthDegraded, "transport unavailable"
	}

	h.errMu.RLock()
	lastErrAt := h.lastErrAt
	h.errMu.RUnlock()
	if !lastErrAt.IsZero() && now.Sub(lastErrAt) < h.interval {
		return HealthDegraded, "transport errors"
	}

	if stats.QueueCapacity > 0 && stats.QueueDepth >= stats.QueueCapacity {
		return HealthDegraded, "command queue full"
	}

	return HealthHealthy, ""
}

// buildMessage assembles a health message for status.
func (h *HealthReporter) buildMessage(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Bridge:        h.bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
		Transport:     &TransportStatus{Kind: h.transportKind},
	}

	h.errMu.RLock()
	if h.lastErr != "" {
		at := h.lastErrAt.UTC()
		msg.Transport.LastError = h.lastErr
		msg.Transport.LastErrorAt = &at
	}
	lostFn := h.lostFn
	h.errMu.RUnlock()

	if h.mesh != nil {
		stats := h.mesh.Stats()
		msg.Statistics = &MeshStatistics{
			State:           stats.State.String(),
			QueueDepth:      stats.QueueDepth,
			QueueCapacity:   stats.QueueCapacity,
			Enqueued:        stats.Enqueued,
			Dropped:         stats.Dropped,
			Sessions:        stats.Sessions,
			TransportErrors: stats.TransportErrors,
			TransportDown:   stats.TransportDown,
		}
		if lostFn != nil {
			msg.Statistics.EventsLost = lostFn()
		}
	}

	return msg
}

// publishStatus publishes a health status message.
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(h.buildMessage(status, reason))
	if err != nil {
		return err
	}

	return h.publisher.Publish(h.GetLWTTopic(), payload, 1, true)
}

// setEventsLost registers the bridge's lost-event counter.
func (h *HealthReporter) setEventsLost(fn func() uint64) {
	h.errMu.Lock()
	h.lostFn = fn
	h.errMu.Unlock()
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
