package relay

import "errors"

var (
	// ErrQueueFull is returned by Submit when the queue stayed full for the
	// whole submit timeout.
	ErrQueueFull = errors.New("relay: command queue full")

	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("relay: stopped")

	// ErrEmptyCommand is returned by Submit for an empty payload.
	ErrEmptyCommand = errors.New("relay: empty command")

	// ErrNoTransport is returned by New when no transport is given.
	ErrNoTransport = errors.New("relay: transport is required")

	// ErrAlreadyRunning is returned by Run when another Run is active.
	ErrAlreadyRunning = errors.New("relay: already running")
)
