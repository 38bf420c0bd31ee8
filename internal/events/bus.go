package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuffer is the subscription buffer used when none is given.
const DefaultBuffer = 64

// Sink accepts events. *Bus implements it.
type Sink interface {
	Publish(e Event)
}

// Bus fans published events out to every subscriber.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	closed  bool
	dropped atomic.Uint64

	now func() time.Time
}

type subscription struct {
	ch chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[*subscription]struct{}),
		now:  time.Now,
	}
}

// Publish delivers e to every subscriber without blocking. Events for a
// subscriber whose buffer is full are dropped. A zero Time is stamped
// with the current time. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe registers a subscriber with the given buffer (DefaultBuffer
// if buffer < 1). The returned cancel func unregisters it and closes the
// channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	sub := &subscription{ch: make(chan Event, buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			_, ok := b.subs[sub]
			delete(b.subs, sub)
			b.mu.Unlock()
			if ok {
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Close closes every subscription channel. Later Subscribe calls get a
// closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}
