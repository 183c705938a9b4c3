// Package lights persists what the bridge knows about its Fastcon lights.
//
// Fastcon lights never answer, so the bridge is the only record of which
// ids have been paired, into which group, and what state was last sent.
// Two stores live here, both on the bridge's SQLite database:
//
//   - Repository: the light registry (lights table). Pairing creates or
//     refreshes a row, a factory reset clears its pairing, a transmitted
//     set_state records the state.
//   - Journal: the command journal (command_journal table). Every command
//     submitted through MQTT or REST is appended as queued (or dropped if
//     the queue was full) and later marked transmitted, dropped or failed
//     as the scheduler reports sessions.
//
// Light states are stored as CBOR blobs using the integer keys declared on
// protocol.LightState.
package lights
