package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_FanOut(t *testing.T) {
	bus := NewBus()
	a, cancelA := bus.Subscribe(4)
	b, cancelB := bus.Subscribe(4)
	defer cancelA()
	defer cancelB()

	bus.Publish(Event{Kind: KindSubmitted, Command: "h", Sender: "alice"})

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		select {
		case e := <-ch:
			if e.Kind != KindSubmitted || e.Command != "h" {
				t.Errorf("%s got %+v", name, e)
			}
			if e.Time.IsZero() {
				t.Errorf("%s event time not stamped", name)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s did not receive event", name)
		}
	}
}

func TestBus_PreservesExplicitTime(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	at := time.Date(2026, 10, 3, 12, 0, 0, 0, time.UTC)
	bus.Publish(Event{Kind: KindSignal, Time: at})

	if e := <-ch; !e.Time.Equal(at) {
		t.Errorf("Time = %v, want %v", e.Time, at)
	}
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(Event{Kind: KindSignal})
	bus.Publish(Event{Kind: KindSignal})
	bus.Publish(Event{Kind: KindSignal})

	if got := bus.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
}

func TestBus_CancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)

	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}

	// Publishing after the only subscriber left must not panic.
	bus.Publish(Event{Kind: KindSignal})
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)

	bus.Close()
	bus.Close()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel still open after Close")
	}

	late, _ := bus.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("Subscribe after Close should return a closed channel")
	}

	bus.Publish(Event{Kind: KindSignal})
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1000)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(Event{Kind: KindResponse})
			}
		}()
	}
	wg.Wait()

	if got := len(ch); got != 500 {
		t.Errorf("received %d events, want 500", got)
	}
}
