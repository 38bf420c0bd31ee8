package relay

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shsf-rail/shsf-hub/internal/events"
)

// Defaults applied by New when an option is zero.
const (
	DefaultLocalSender   = "hub"
	DefaultQueueSize     = 64
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultAckWindow     = 100 * time.Millisecond
	DefaultSubmitTimeout = time.Second

	// recordTimeout bounds journal writes so a slow disk cannot stall dispatch.
	recordTimeout = 2 * time.Second

	// errorResponsePrefix prefixes write failures reported to remote senders.
	errorResponsePrefix = "ERR "
)

// Transport writes one command to the peripheral.
type Transport interface {
	Write(ctx context.Context, command string) error
}

// ResponsePublisher delivers a response to a remote sender.
type ResponsePublisher interface {
	PublishResponse(sender, text string) error
}

// Journal persists settled exchanges.
type Journal interface {
	RecordExchange(ctx context.Context, ex Exchange) error
}

// Metrics records settled exchanges as time series.
type Metrics interface {
	WriteExchange(sender, outcome string, latency time.Duration, at time.Time)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Relay. Only Transport is required.
type Options struct {
	Transport Transport

	// Publisher delivers responses for remote senders. If nil, remote
	// responses are logged and dropped.
	Publisher ResponsePublisher

	// Events receives submit, dispatch, response and failure events.
	Events events.Sink

	Journal Journal
	Metrics Metrics
	Logger  Logger

	// LocalSender is the reserved sender tag for the shell.
	LocalSender string

	QueueSize     int
	PollInterval  time.Duration
	AckWindow     time.Duration
	SubmitTimeout time.Duration
}

// Relay is the single-consumer command queue with response routing.
//
// Thread Safety:
//   - Submit, HandleResponse, Snapshot and Stop are safe for concurrent use.
//   - Run must be called from exactly one goroutine.
type Relay struct {
	transport Transport
	publisher ResponsePublisher
	events    events.Sink
	journal   Journal
	metrics   Metrics
	logger    Logger

	localSender   string
	pollInterval  time.Duration
	ackWindow     time.Duration
	submitTimeout time.Duration

	queue chan Command

	// Correlation state, guarded by mu.
	mu           sync.Mutex
	phase        Phase
	current      *Command
	dispatchedAt time.Time
	response     string
	respondedAt  time.Time
	answered     chan struct{}
	dispatched   uint64
	answeredN    uint64
	timedOut     uint64
	failed       uint64

	running  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

// New creates a relay. Call Run to start dispatching.
func New(opts Options) (*Relay, error) {
	if opts.Transport == nil {
		return nil, ErrNoTransport
	}

	r := &Relay{
		transport:     opts.Transport,
		publisher:     opts.Publisher,
		events:        opts.Events,
		journal:       opts.Journal,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		localSender:   opts.LocalSender,
		pollInterval:  opts.PollInterval,
		ackWindow:     opts.AckWindow,
		submitTimeout: opts.SubmitTimeout,
		phase:         PhaseIdle,
		done:          make(chan struct{}),
		now:           time.Now,
	}

	if r.localSender == "" {
		r.localSender = DefaultLocalSender
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	r.queue = make(chan Command, queueSize)
	if r.pollInterval <= 0 {
		r.pollInterval = DefaultPollInterval
	}
	if r.ackWindow <= 0 {
		r.ackWindow = DefaultAckWindow
	}
	if r.submitTimeout <= 0 {
		r.submitTimeout = DefaultSubmitTimeout
	}

	return r, nil
}

// LocalSender returns the sender tag reserved for the shell.
func (r *Relay) LocalSender() string {
	return r.localSender
}

// Submit enqueues a command from sender. An empty sender becomes
// SenderUnknown. When the queue is full Submit waits up to the submit
// timeout before returning ErrQueueFull.
func (r *Relay) Submit(ctx context.Context, payload, sender string) (Command, error) {
	if strings.TrimSpace(payload) == "" {
		return Command{}, ErrEmptyCommand
	}
	if sender == "" {
		sender = SenderUnknown
	}
	if r.Stopped() {
		return Command{}, ErrStopped
	}

	cmd := Command{
		ID:          uuid.New(),
		Payload:     payload,
		Sender:      sender,
		SubmittedAt: r.now(),
	}

	select {
	case r.queue <- cmd:
	default:
		timer := time.NewTimer(r.submitTimeout)
		defer timer.Stop()

		select {
		case r.queue <- cmd:
		case <-timer.C:
			r.logWarn("command queue full, dropping command", "sender", sender, "command", payload)
			return Command{}, ErrQueueFull
		case <-ctx.Done():
			return Command{}, ctx.Err()
		case <-r.done:
			return Command{}, ErrStopped
		}
	}

	r.emit(events.Event{
		Kind:      events.KindSubmitted,
		Time:      cmd.SubmittedAt,
		CommandID: cmd.ID.String(),
		Sender:    sender,
		Command:   payload,
		Local:     sender == r.localSender,
	})
	r.logDebug("command queued", "id", cmd.ID, "sender", sender, "command", payload)

	return cmd, nil
}

// Run dispatches queued commands until ctx is cancelled or Stop is
// called. It returns nil on either; ErrAlreadyRunning if called twice.
func (r *Relay) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	r.logInfo("relay started",
		"local_sender", r.localSender,
		"queue_size", cap(r.queue),
		"poll_interval", r.pollInterval,
		"ack_window", r.ackWindow)

	poll := time.NewTimer(r.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logStopped()
			return nil
		case <-r.done:
			r.logStopped()
			return nil
		default:
		}

		poll.Reset(r.pollInterval)

		select {
		case <-ctx.Done():
		case <-r.done:
		case cmd := <-r.queue:
			r.dispatch(ctx, cmd)
		case <-poll.C:
		}
	}
}

// Stop ends Run and rejects further submits. Safe to call multiple times.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

// Stopped reports whether Stop has been called.
func (r *Relay) Stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Snapshot returns the current correlation state and counters.
func (r *Relay) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Phase:      r.phase,
		QueueDepth: len(r.queue),
		Dispatched: r.dispatched,
		Answered:   r.answeredN,
		TimedOut:   r.timedOut,
		Failed:     r.failed,
	}
	if r.current != nil {
		cmd := *r.current
		s.Current = &cmd
	}
	return s
}

// dispatch writes one command and waits for its response or the ack window.
func (r *Relay) dispatch(ctx context.Context, cmd Command) {
	answered := make(chan struct{})

	r.mu.Lock()
	r.phase = PhaseAwaiting
	r.current = &cmd
	r.dispatchedAt = r.now()
	r.response = ""
	r.answered = answered
	r.dispatched++
	dispatchedAt := r.dispatchedAt
	r.mu.Unlock()

	r.emit(events.Event{
		Kind:      events.KindDispatched,
		Time:      dispatchedAt,
		CommandID: cmd.ID.String(),
		Sender:    cmd.Sender,
		Command:   cmd.Payload,
		Local:     cmd.Sender == r.localSender,
	})

	writeErr := r.transport.Write(ctx, cmd.Payload)
	if writeErr == nil {
		ack := time.NewTimer(r.ackWindow)
		select {
		case <-answered:
		case <-ack.C:
		case <-ctx.Done():
		case <-r.done:
		}
		ack.Stop()
	}

	ex := r.settle(cmd, writeErr)

	switch ex.Outcome {
	case OutcomeWriteFailed:
		r.reportWriteFailure(cmd, writeErr)
	case OutcomeTimeout:
		r.logDebug("no response within ack window", "id", cmd.ID, "sender", cmd.Sender, "command", cmd.Payload)
		r.emit(events.Event{
			Kind:      events.KindTimeout,
			CommandID: cmd.ID.String(),
			Sender:    cmd.Sender,
			Command:   cmd.Payload,
			Local:     cmd.Sender == r.localSender,
		})
	}

	r.record(ex)
}

// settle moves Awaiting to Settled if no response arrived and builds the
// exchange record.
func (r *Relay) settle(cmd Command, writeErr error) Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()

	ex := Exchange{Command: cmd, DispatchedAt: r.dispatchedAt}

	if r.phase != PhaseAwaiting {
		ex.Outcome = OutcomeAnswered
		ex.Response = r.response
		ex.SettledAt = r.respondedAt
		return ex
	}

	r.phase = PhaseSettled
	ex.SettledAt = r.now()
	if writeErr != nil {
		ex.Outcome = OutcomeWriteFailed
		ex.Err = writeErr.Error()
		r.failed++
	} else {
		ex.Outcome = OutcomeTimeout
		r.timedOut++
	}
	return ex
}

// HandleResponse routes one peripheral response. It is called from the
// transport's notification goroutine.
func (r *Relay) HandleResponse(text string) {
	if text == "" {
		return
	}

	r.mu.Lock()
	phase := r.phase
	var cmd *Command
	sender := r.localSender
	switch phase {
	case PhaseAwaiting:
		cmd = r.current
		sender = cmd.Sender
		r.phase = PhaseSettled
		r.response = text
		r.respondedAt = r.now()
		r.answeredN++
		close(r.answered)
	case PhaseSettled:
		cmd = r.current
		sender = cmd.Sender
	}
	r.mu.Unlock()

	switch phase {
	case PhaseIdle:
		r.logWarn("unsolicited response before any command", "response", text)
	case PhaseSettled:
		r.logDebug("late response routed to last sender", "sender", sender, "response", text)
	}

	r.route(sender, text, cmd)
}

func (r *Relay) route(sender, text string, cmd *Command) {
	local := sender == r.localSender
	ev := events.Event{
		Kind:   events.KindResponse,
		Sender: sender,
		Text:   text,
		Local:  local,
	}
	if cmd != nil {
		ev.CommandID = cmd.ID.String()
		ev.Command = cmd.Payload
	}

	if !local {
		r.publish(sender, text)
	}
	r.emit(ev)
}

func (r *Relay) reportWriteFailure(cmd Command, err error) {
	local := cmd.Sender == r.localSender

	r.logError("BLE write failed", "id", cmd.ID, "sender", cmd.Sender, "command", cmd.Payload, "error", err)
	r.emit(events.Event{
		Kind:      events.KindWriteFailed,
		CommandID: cmd.ID.String(),
		Sender:    cmd.Sender,
		Command:   cmd.Payload,
		Text:      err.Error(),
		Color:     events.ColorRed,
		Local:     local,
	})

	if !local {
		r.publish(cmd.Sender, errorResponsePrefix+err.Error())
	}
}

func (r *Relay) publish(sender, text string) {
	if r.publisher == nil {
		r.logWarn("no publisher for remote response", "sender", sender)
		return
	}
	if err := r.publisher.PublishResponse(sender, text); err != nil {
		r.logError("failed to publish response", "sender", sender, "error", err)
	}
}

func (r *Relay) record(ex Exchange) {
	if r.metrics != nil {
		r.metrics.WriteExchange(ex.Command.Sender, string(ex.Outcome), ex.Latency(), ex.SettledAt)
	}
	if r.journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.journal.RecordExchange(ctx, ex); err != nil {
		r.logError("failed to journal exchange", "id", ex.Command.ID, "error", err)
	}
}

func (r *Relay) emit(e events.Event) {
	if r.events != nil {
		r.events.Publish(e)
	}
}

func (r *Relay) logStopped() {
	if pending := len(r.queue); pending > 0 {
		r.logWarn("relay stopped with queued commands", "pending", pending)
		return
	}
	r.logInfo("relay stopped")
}

func (r *Relay) logDebug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Relay) logInfo(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *Relay) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

func (r *Relay) logError(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Error(msg, args...)
	}
}
