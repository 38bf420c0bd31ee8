package bridge

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHeartbeat_PublishNow(t *testing.T) {
	client := NewMockMQTTClient()
	fixed := time.Date(2026, 10, 3, 9, 5, 7, 0, time.Local)
	h := NewHeartbeat(HeartbeatConfig{
		Publisher: client,
		Topic:     testTopics.Heartbeat(),
		Now:       func() time.Time { return fixed },
	})

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	pubs := client.GetPublished()
	if len(pubs) != 1 {
		t.Fatalf("published = %d, want 1", len(pubs))
	}
	if pubs[0].Topic != "shsf/heartbeat" {
		t.Errorf("topic = %q, want shsf/heartbeat", pubs[0].Topic)
	}
	if pubs[0].Payload != "09:05:07" {
		t.Errorf("payload = %q, want 09:05:07", pubs[0].Payload)
	}
	if pubs[0].Retained {
		t.Error("heartbeat published retained")
	}
}

func TestHeartbeat_Ticks(t *testing.T) {
	client := NewMockMQTTClient()
	h := NewHeartbeat(HeartbeatConfig{
		Publisher: client,
		Topic:     testTopics.Heartbeat(),
		Interval:  10 * time.Millisecond,
	})

	h.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	h.Stop()

	n := len(client.GetPublished())
	if n < 2 {
		t.Errorf("published = %d heartbeats, want at least 2", n)
	}

	time.Sleep(30 * time.Millisecond)
	if after := len(client.GetPublished()); after != n {
		t.Errorf("published %d heartbeats after Stop", after-n)
	}
}

func TestHeartbeat_StopsOnContextCancel(t *testing.T) {
	h := NewHeartbeat(HeartbeatConfig{Publisher: NewMockMQTTClient(), Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		h.Stop()
		h.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() did not return after context cancel")
	}
}

func TestHeartbeat_PublishErrorKeepsTicking(t *testing.T) {
	client := NewMockMQTTClient()
	client.publishErr = errors.New("not connected")
	h := NewHeartbeat(HeartbeatConfig{Publisher: client, Interval: 5 * time.Millisecond})

	h.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	client.mu.Lock()
	client.publishErr = nil
	client.mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	h.Stop()

	if len(client.GetPublished()) == 0 {
		t.Error("no heartbeat published after publisher recovered")
	}
}

func TestNewHeartbeat_DefaultInterval(t *testing.T) {
	h := NewHeartbeat(HeartbeatConfig{})
	if h.interval != 10*time.Second {
		t.Errorf("interval = %v, want 10s", h.interval)
	}
	if err := h.PublishNow(); err != nil {
		t.Errorf("PublishNow() without publisher error = %v", err)
	}
}
