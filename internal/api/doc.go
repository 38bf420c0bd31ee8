// Package api provides the hub's local HTTP API and WebSocket event stream.
//
// Endpoints:
//
//	GET  /health         liveness
//	GET  /api/status     BLE link, MQTT and relay counters
//	POST /api/commands   submit a command, optionally waiting for its response
//	GET  /api/exchanges  journaled exchanges (when the journal is enabled)
//	GET  /ws             live hub events
//	GET  /               browser status page
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
