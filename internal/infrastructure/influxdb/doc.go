// Package influxdb records Fastcon mesh transmission metrics in InfluxDB v2.
//
// Points written:
//   - mesh_session: one per finished advertising session (light_id,
//     sequence, duration_ms; tagged by opcode)
//   - mesh_drop: commands rejected by a full queue, cleared from it, or
//     discarded because they could not be encoded (tagged by reason)
//   - mesh_queue: queue depth and capacity after each change
//   - mesh_transport_error: failed advertiser calls
//
// Every point carries the site tag from the site section of the config.
// Writes are non-blocking; the client library batches them and reports
// failures through SetOnError.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics off
//	}
//	defer client.Close()
package influxdb
