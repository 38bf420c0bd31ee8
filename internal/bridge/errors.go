package bridge

import "errors"

// Domain-specific errors for the bridge.
var (
	// ErrMissingMQTT is returned when no MQTT client is supplied.
	ErrMissingMQTT = errors.New("bridge: MQTT client is required")

	// ErrMissingRelay is returned when no command submitter is supplied.
	ErrMissingRelay = errors.New("bridge: relay is required")

	// ErrRateLimited is reported to a sender that exceeds its command rate.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidSignal is returned for RSSI payloads that are not an integer.
	ErrInvalidSignal = errors.New("invalid signal reading")
)
