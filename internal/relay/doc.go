// Package relay serializes commands onto the single BLE characteristic and
// routes each peripheral response back to the origin of the command that
// triggered it.
//
// Commands come from the local shell (sender "hub" by default) or from
// MQTT clients (sender taken from the topic). Submit enqueues onto a
// bounded FIFO; one consumer goroutine (Run) dispatches them one at a
// time. After each write the consumer waits for the first response or
// the ack window before taking the next command, so at most one command
// is ever in flight.
//
// Correlation is an explicit state machine guarded by a mutex:
//
//	Idle ──dispatch──▶ Awaiting(cmd) ──response/ack window/write error──▶ Settled(cmd)
//	                        ▲                                                  │
//	                        └────────────────────dispatch──────────────────────┘
//
// Responses arriving in Idle (nothing ever sent) go to the local display
// and are logged as unsolicited. Responses arriving in Settled are late
// and keep routing to the last sender.
package relay
