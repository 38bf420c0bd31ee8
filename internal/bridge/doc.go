// Package bridge connects the hub's MQTT topics to the command relay.
//
// It owns three flows:
//
//   - Command ingress: every message on <ns>/+/commands is submitted to the
//     relay with the sender taken from the second topic segment.
//   - Telemetry: <ns>/<device>/rssi carries a dBm reading which is turned
//     into a 0-100 quality figure and a traffic-light colour.
//   - Heartbeat: the wall-clock time is published to <ns>/heartbeat on a
//     fixed interval so clients can tell the hub is alive.
//
// Responses flow the other way through Responder, which the relay uses to
// publish on <ns>/<sender>/responses.
package bridge
