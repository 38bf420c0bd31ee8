package events

import "time"

// Kind identifies what happened.
type Kind string

// Event kinds.
const (
	// KindConnection reports a BLE connection state change (State, Text).
	KindConnection Kind = "connection"

	// KindSubmitted reports a command accepted into the queue.
	KindSubmitted Kind = "submitted"

	// KindDispatched reports a command written to the peripheral.
	KindDispatched Kind = "dispatched"

	// KindResponse reports a peripheral response and who it was routed to.
	KindResponse Kind = "response"

	// KindWriteFailed reports a BLE write error for a dispatched command.
	KindWriteFailed Kind = "write_failed"

	// KindTimeout reports a command that got no response within the ack window.
	KindTimeout Kind = "timeout"

	// KindSignal reports a signal quality sample (Quality, Color).
	KindSignal Kind = "signal"
)

// Connection states carried in Event.State for KindConnection.
const (
	StateSearching = "searching"
	StateConnected = "connected"
	StateFailed    = "failed"
)

// Indicator colours.
const (
	ColorGreen  = "green"
	ColorOrange = "orange"
	ColorRed    = "red"
	ColorBlue   = "blue"
)

// Event is one unit of hub activity. Fields not relevant to Kind are empty.
type Event struct {
	Kind      Kind      `json:"kind"`
	Time      time.Time `json:"time"`
	CommandID string    `json:"command_id,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Command   string    `json:"command,omitempty"`
	Text      string    `json:"text,omitempty"`
	State     string    `json:"state,omitempty"`
	Device    string    `json:"device,omitempty"`
	RSSI      int       `json:"rssi,omitempty"`
	Quality   int       `json:"quality,omitempty"`
	Color     string    `json:"color,omitempty"`
	Local     bool      `json:"local,omitempty"`
}
