package systemd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

type recorder struct {
	mu   sync.Mutex
	sent []string
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, state)
	return true, nil
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func withRecorder(t *testing.T) *recorder {
	t.Helper()
	r := &recorder{}
	orig := notify
	notify = r.notify
	t.Cleanup(func() { notify = orig })
	return r
}

func TestNotifications(t *testing.T) {
	r := withRecorder(t)

	Ready()          //nolint:errcheck // Recorder never fails
	Status("BLE up") //nolint:errcheck // Recorder never fails
	Stopping()       //nolint:errcheck // Recorder never fails

	want := []string{daemon.SdNotifyReady, "STATUS=BLE up", daemon.SdNotifyStopping}
	got := r.get()
	if len(got) != len(want) {
		t.Fatalf("sent = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sent[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunWatchdog(t *testing.T) {
	r := withRecorder(t)

	var mu sync.Mutex
	healthy := true
	check := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return healthy
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runWatchdog(ctx, 5*time.Millisecond, check)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	healthy = false
	mu.Unlock()
	time.Sleep(15 * time.Millisecond)
	pings := len(r.get())

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	if pings == 0 {
		t.Fatal("no watchdog pings while healthy")
	}
	// Allow one tick already past the health check when the flag flipped.
	if after := len(r.get()); after > pings+1 {
		t.Errorf("pings grew from %d to %d while unhealthy", pings, after)
	}
}

func TestWatchdog_DisabledReturns(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	done := make(chan struct{})
	go func() {
		Watchdog(context.Background(), nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watchdog() blocked without WATCHDOG_USEC")
	}
}
