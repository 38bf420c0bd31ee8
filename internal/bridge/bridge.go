package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/shsf-rail/shsf-hub/internal/events"
	"github.com/shsf-rail/shsf-hub/internal/infrastructure/mqtt"
	"github.com/shsf-rail/shsf-hub/internal/relay"
)

// defaultSubmitTimeout bounds how long an MQTT callback waits on a full queue.
const defaultSubmitTimeout = time.Second

// defaultMaxSenders caps the per-sender limiter table.
const defaultMaxSenders = 256

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Submitter accepts commands for the BLE peripheral. *relay.Relay satisfies it.
type Submitter interface {
	Submit(ctx context.Context, payload, sender string) (relay.Command, error)
}

// SignalMetrics records signal quality samples. *influxdb.Client satisfies it.
type SignalMetrics interface {
	WriteSignalQuality(device string, dbm, quality int)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options holds the dependencies of a Bridge.
type Options struct {
	MQTT   MQTTClient
	Topics mqtt.Topics
	Relay  Submitter

	// QoS is used for subscriptions and publishes.
	QoS byte

	// Device is the topic segment whose RSSI readings are tracked.
	Device string

	// RateLimit is remote commands per second per sender; 0 disables.
	RateLimit float64
	RateBurst int

	// MaxSenders caps how many senders hold a token bucket at once. Idle
	// buckets are evicted to make room; a new sender is refused when none
	// are idle. Defaults to 256.
	MaxSenders int

	// LocalSender is the window's tag. MQTT commands claiming it are dropped
	// so a remote client cannot read the window's responses.
	LocalSender string

	// WarnQuality is the quality at or below which a warning is logged.
	WarnQuality int

	// HeartbeatInterval defaults to 10s.
	HeartbeatInterval time.Duration

	SubmitTimeout time.Duration

	// Optional.
	Events  events.Sink
	Metrics SignalMetrics
	Logger  Logger
}

// Bridge routes MQTT commands and telemetry into the hub.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	opts      Options
	heartbeat *Heartbeat
	responder *Responder

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	// Shutdown coordination
	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
}

// New creates a bridge. Call Start to subscribe.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, ErrMissingMQTT
	}
	if opts.Relay == nil {
		return nil, ErrMissingRelay
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultSubmitTimeout
	}
	if opts.RateBurst < 1 {
		opts.RateBurst = 1
	}
	if opts.MaxSenders <= 0 {
		opts.MaxSenders = defaultMaxSenders
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		opts:      opts,
		limiters:  make(map[string]*rate.Limiter),
		ctx:       ctx,
		ctxCancel: cancel,
		responder: NewResponder(opts.MQTT, opts.Topics, opts.QoS),
	}
	b.heartbeat = NewHeartbeat(HeartbeatConfig{
		Publisher: opts.MQTT,
		Topic:     opts.Topics.Heartbeat(),
		QoS:       opts.QoS,
		Interval:  opts.HeartbeatInterval,
		Logger:    opts.Logger,
	})
	return b, nil
}

// Start subscribes to command and RSSI topics and starts the heartbeat.
func (b *Bridge) Start(ctx context.Context) error {
	commandTopic := b.opts.Topics.AllCommands()
	if err := b.opts.MQTT.Subscribe(commandTopic, b.opts.QoS, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	rssiTopic := b.opts.Topics.RSSI(b.opts.Device)
	if err := b.opts.MQTT.Subscribe(rssiTopic, b.opts.QoS, b.handleSignal); err != nil {
		return fmt.Errorf("subscribe to rssi: %w", err)
	}
	b.logInfo("subscribed to signal telemetry", "topic", rssiTopic)

	b.heartbeat.Start(ctx)
	return nil
}

// Stop halts the heartbeat and abandons pending submits. Safe to call
// multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.heartbeat.Stop()

		for _, topic := range []string{b.opts.Topics.AllCommands(), b.opts.Topics.RSSI(b.opts.Device)} {
			if err := b.opts.MQTT.Unsubscribe(topic); err != nil {
				b.logDebug("unsubscribe failed", "topic", topic, "error", err)
			}
		}
		b.logInfo("bridge stopped")
	})
}

// Responder returns the publisher used for routed responses.
func (b *Bridge) Responder() *Responder {
	return b.responder
}

// handleCommand submits an MQTT command to the relay. Errors are reported to
// the sender on its responses topic and never returned to paho.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	sender := mqtt.SenderFromTopic(topic)
	command := strings.TrimSpace(string(payload))

	if b.opts.LocalSender != "" && sender == b.opts.LocalSender {
		b.logWarn("command dropped: sender is reserved for the local window", "topic", topic, "command", command)
		return nil
	}

	if !b.allow(sender) {
		b.logWarn("command rate limited", "sender", sender, "command", command)
		b.reject(sender, ErrRateLimited)
		return nil
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.opts.SubmitTimeout)
	defer cancel()

	cmd, err := b.opts.Relay.Submit(ctx, command, sender)
	if err != nil {
		b.logWarn("command rejected", "sender", sender, "command", command, "error", err)
		if !errors.Is(err, relay.ErrStopped) {
			b.reject(sender, err)
		}
		return nil
	}

	b.logDebug("command received", "sender", sender, "command", command, "id", cmd.ID)
	return nil
}

func (b *Bridge) reject(sender string, err error) {
	if sender == mqtt.SenderUnknown {
		return
	}
	if perr := b.responder.PublishResponse(sender, "ERR "+err.Error()); perr != nil {
		b.logDebug("failed to publish rejection", "sender", sender, "error", perr)
	}
}

// allow applies the per-sender token bucket.
func (b *Bridge) allow(sender string) bool {
	if b.opts.RateLimit <= 0 {
		return true
	}

	b.limiterMu.Lock()
	lim, ok := b.limiters[sender]
	if !ok {
		if len(b.limiters) >= b.opts.MaxSenders {
			b.evictIdleLocked()
		}
		if len(b.limiters) >= b.opts.MaxSenders {
			b.limiterMu.Unlock()
			return false
		}
		lim = rate.NewLimiter(rate.Limit(b.opts.RateLimit), b.opts.RateBurst)
		b.limiters[sender] = lim
	}
	b.limiterMu.Unlock()

	return lim.Allow()
}

// evictIdleLocked drops limiters whose bucket has refilled. A full bucket
// behaves exactly like a fresh one, so nothing is lost. limiterMu must be held.
func (b *Bridge) evictIdleLocked() {
	for sender, lim := range b.limiters {
		if lim.Tokens() >= float64(lim.Burst()) {
			delete(b.limiters, sender)
		}
	}
}

func (b *Bridge) emit(e events.Event) {
	if b.opts.Events != nil {
		b.opts.Events.Publish(e)
	}
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if b.opts.Logger != nil {
		b.opts.Logger.Debug(msg, args...)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if b.opts.Logger != nil {
		b.opts.Logger.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if b.opts.Logger != nil {
		b.opts.Logger.Warn(msg, args...)
	}
}
