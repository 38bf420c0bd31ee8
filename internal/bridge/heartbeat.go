package bridge

import (
	"context"
	"sync"
	"time"
)

const (
	// defaultHeartbeatInterval applies when HeartbeatConfig.Interval is zero.
	defaultHeartbeatInterval = 10 * time.Second

	// heartbeatLayout is the published wall-clock format (HH:MM:SS).
	heartbeatLayout = "15:04:05"
)

// Heartbeat publishes the wall-clock time at a fixed interval.
// Nothing acknowledges it; a failed publish is logged and the next tick
// tries again.
type Heartbeat struct {
	publisher Publisher
	topic     string
	qos       byte
	interval  time.Duration
	now       func() time.Time
	logger    Logger

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// HeartbeatConfig holds configuration for the heartbeat.
type HeartbeatConfig struct {
	Publisher Publisher
	Topic     string
	QoS       byte

	// Interval defaults to 10 seconds.
	Interval time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	Logger Logger
}

// NewHeartbeat creates a heartbeat. Call Start to begin publishing.
func NewHeartbeat(cfg HeartbeatConfig) *Heartbeat {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Heartbeat{
		publisher: cfg.Publisher,
		topic:     cfg.Topic,
		qos:       cfg.QoS,
		interval:  interval,
		now:       now,
		logger:    cfg.Logger,
		done:      make(chan struct{}),
	}
}

// Start begins periodic publishing until ctx is cancelled or Stop is called.
func (h *Heartbeat) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.loop(ctx)
}

// Stop halts publishing and waits for the loop to exit.
// Safe to call multiple times.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
	})
}

// PublishNow publishes the current time immediately.
func (h *Heartbeat) PublishNow() error {
	if h.publisher == nil {
		return nil
	}
	return h.publisher.Publish(h.topic, []byte(h.now().Format(heartbeatLayout)), h.qos, false)
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil && h.logger != nil {
				h.logger.Warn("failed to publish heartbeat", "topic", h.topic, "error", err)
			}
		}
	}
}
