package mqtt

import (
	"fmt"
	"strings"
)

// DefaultNamespace is the first topic segment used when none is configured.
const DefaultNamespace = "shsf"

// SenderUnknown is returned by SenderFromTopic when the topic has no
// sender segment.
const SenderUnknown = "unknown"

// Topics provides builders for the hub's MQTT topics.
//
// All topics live under a single namespace segment:
//
//	<ns>/<sender>/commands    inbound commands from a remote client
//	<ns>/<sender>/responses   peripheral responses routed back to it
//	<ns>/heartbeat            wall-clock liveness beacon
//	<ns>/<device>/rssi        signal strength telemetry in dBm
//	<ns>/hub/status           retained online/offline status (LWT)
//
// The zero value uses DefaultNamespace.
type Topics struct {
	Namespace string
}

func (t Topics) ns() string {
	if t.Namespace == "" {
		return DefaultNamespace
	}
	return t.Namespace
}

// Commands returns the command topic for a sender.
//
// Example: shsf/alice/commands
func (t Topics) Commands(sender string) string {
	return fmt.Sprintf("%s/%s/commands", t.ns(), sender)
}

// AllCommands returns a pattern matching commands from every sender.
//
// Pattern: shsf/+/commands
func (t Topics) AllCommands() string {
	return t.Commands("+")
}

// Responses returns the topic responses for a sender are published on.
//
// Example: shsf/alice/responses
func (t Topics) Responses(sender string) string {
	return fmt.Sprintf("%s/%s/responses", t.ns(), sender)
}

// Heartbeat returns the heartbeat topic.
//
// Example: shsf/heartbeat
func (t Topics) Heartbeat() string {
	return t.ns() + "/heartbeat"
}

// RSSI returns the signal strength topic for a device.
//
// Example: shsf/r4/rssi
func (t Topics) RSSI(device string) string {
	return fmt.Sprintf("%s/%s/rssi", t.ns(), device)
}

// Status returns the retained hub status topic.
//
// Example: shsf/hub/status
func (t Topics) Status() string {
	return t.ns() + "/hub/status"
}

// SenderFromTopic extracts the sender segment from a command topic.
// The sender is always the second segment regardless of namespace.
//
//	SenderFromTopic("shsf/alice/commands") == "alice"
//	SenderFromTopic("shsf") == "unknown"
func SenderFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[1] == "" {
		return SenderUnknown
	}
	return parts[1]
}
