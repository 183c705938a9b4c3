// Package api implements the HTTP REST API and WebSocket server for the
// Fastcon mesh bridge.
//
// This package provides:
//   - REST endpoints for the light registry, mesh actions and the command queue
//   - A read-only view of the command journal
//   - A WebSocket hub that relays mesh session events
//   - JWT client-credential authentication with ticket-based WebSocket auth
//
// # Architecture
//
// Actions submitted here go through the same bridge as MQTT commands, so both
// surfaces share one queue and one journal. A 202 response means the command
// is queued; it reaches the light when the scheduler puts it on air.
//
// # Security
//
// Clients exchange a client id and secret from the security config for a
// short-lived bearer token. Browsers that cannot set headers on a WebSocket
// upgrade request a single-use ticket first.
package api
