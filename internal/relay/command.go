package relay

import (
	"time"

	"github.com/google/uuid"
)

// SenderUnknown is used when a command arrives without a sender.
const SenderUnknown = "unknown"

// Command is one opaque text command and the origin that issued it.
type Command struct {
	ID          uuid.UUID
	Payload     string
	Sender      string
	SubmittedAt time.Time
}

// Phase is the correlation state of the relay.
type Phase int

// Correlation phases.
const (
	// PhaseIdle means nothing has been dispatched yet.
	PhaseIdle Phase = iota

	// PhaseAwaiting means a command was written and no response has arrived.
	PhaseAwaiting

	// PhaseSettled means the last command got its response, timed out or
	// failed to write.
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaiting:
		return "awaiting"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Outcome describes how an exchange settled.
type Outcome string

// Exchange outcomes.
const (
	OutcomeAnswered    Outcome = "answered"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeWriteFailed Outcome = "write_failed"
)

// Exchange is the record of one dispatched command.
type Exchange struct {
	Command      Command
	Outcome      Outcome
	Response     string
	Err          string
	DispatchedAt time.Time
	SettledAt    time.Time
}

// Latency is the time from dispatch to the first response. Zero unless answered.
func (e Exchange) Latency() time.Duration {
	if e.Outcome != OutcomeAnswered {
		return 0
	}
	return e.SettledAt.Sub(e.DispatchedAt)
}

// Snapshot is a point-in-time view of the relay for status reporting.
type Snapshot struct {
	Phase      Phase
	Current    *Command
	QueueDepth int
	Dispatched uint64
	Answered   uint64
	TimedOut   uint64
	Failed     uint64
}
