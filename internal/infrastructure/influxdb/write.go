package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementSession   = "mesh_session"
	measurementDrop      = "mesh_drop"
	measurementQueue     = "mesh_queue"
	measurementTransport = "mesh_transport_error"
)

// Drop reasons recorded on mesh_drop points.
const (
	DropReasonQueueFull = "queue_full"
	DropReasonEncode    = "encode_failed"
	DropReasonCleared   = "cleared"
)

// Session describes one finished advertising session.
type Session struct {
	LightID  uint32
	Opcode   string
	Sequence uint8
	Started  time.Time
	Duration time.Duration
}

// WriteSession records a finished advertising session, timestamped at its start.
//
//	client.WriteSession(influxdb.Session{LightID: 5, Opcode: "set_state", ...})
func (c *Client) WriteSession(s Session) {
	c.write(sessionPoint(s, c.tags))
}

// WriteDrop records a command that never reached the air.
func (c *Client) WriteDrop(lightID uint32, opcode, reason string, at time.Time) {
	c.write(dropPoint(lightID, opcode, reason, at, c.tags))
}

// WriteQueueDepth records the command queue occupancy.
func (c *Client) WriteQueueDepth(depth, capacity int, at time.Time) {
	c.write(queuePoint(depth, capacity, at, c.tags))
}

// WriteTransportError records a failed advertiser call.
func (c *Client) WriteTransportError(opcode string, at time.Time) {
	c.write(transportErrorPoint(opcode, at, c.tags))
}

// WritePoint writes a custom point with full control over tags and fields.
//
//	client.WritePoint("bridge_stats",
//	    map[string]string{"bridge": "fastcon"},
//	    map[string]interface{}{"uptime_s": 3600})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	c.write(write.NewPoint(measurement, mergeTags(c.tags, tags), fields, timestamp))
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func sessionPoint(s Session, base map[string]string) *write.Point {
	return write.NewPoint(
		measurementSession,
		mergeTags(base, map[string]string{"opcode": s.Opcode}),
		map[string]interface{}{
			"light_id":    int64(s.LightID),
			"sequence":    int64(s.Sequence),
			"duration_ms": float64(s.Duration) / float64(time.Millisecond),
		},
		s.Started,
	)
}

func dropPoint(lightID uint32, opcode, reason string, at time.Time, base map[string]string) *write.Point {
	return write.NewPoint(
		measurementDrop,
		mergeTags(base, map[string]string{"opcode": opcode, "reason": reason}),
		map[string]interface{}{"light_id": int64(lightID)},
		at,
	)
}

func queuePoint(depth, capacity int, at time.Time, base map[string]string) *write.Point {
	return write.NewPoint(
		measurementQueue,
		mergeTags(base, nil),
		map[string]interface{}{
			"depth":    int64(depth),
			"capacity": int64(capacity),
		},
		at,
	)
}

func transportErrorPoint(opcode string, at time.Time, base map[string]string) *write.Point {
	return write.NewPoint(
		measurementTransport,
		mergeTags(base, map[string]string{"opcode": opcode}),
		map[string]interface{}{"count": int64(1)},
		at,
	)
}

// mergeTags returns base overlaid with extra. Neither map is modified.
func mergeTags(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
