// Package fastcon implements the Fastcon BLE mesh bridge for Gray Logic.
//
// The bridge owns a mesh.Controller and connects it to the rest of the
// system:
//
//	┌─────────────────┐   MQTT   ┌─────────────────┐   advertiser   ┌──────────┐
//	│   Gray Logic    │◄────────►│  Fastcon Bridge │───────────────►│  Lights  │
//	│      Core       │          │   (this pkg)    │  (hci / mqtt)  │  (BLE)   │
//	└─────────────────┘          └─────────────────┘                └──────────┘
//
// # Commands
//
// Core publishes CommandMessage JSON on graylogic/command/fastcon/{light_id}
// with one of pair, factory_reset, set_state or clear_queue. Each command is
// answered on graylogic/ack/fastcon/{light_id}: "queued" once the command is
// in the mesh queue, or "failed" with QUEUE_FULL, INVALID_COMMAND or
// INVALID_PARAMETERS. An ack never means the light received the command;
// Fastcon has no return channel.
//
// # Events
//
// The bridge is the controller's mesh.Observer. Callbacks are buffered and
// handled on a single event loop, which
//   - resolves command journal rows (queued → transmitted, dropped or failed)
//   - updates the light registry when pair, reset or state commands go on air
//   - writes session, drop and queue-depth points to InfluxDB
//   - broadcasts mesh.session, mesh.dropped and mesh.transport_error to
//     websocket clients and graylogic/event/fastcon/{event}
//
// A retained StateMessage is published on graylogic/state/fastcon/{light_id}
// when a set_state command starts advertising.
//
// # Health
//
// HealthReporter publishes a retained HealthMessage on
// graylogic/health/fastcon every 30 seconds. Register GetLWTTopic and
// GetLWTPayload as the MQTT will so the broker reports "offline" if the
// bridge disappears.
package fastcon
