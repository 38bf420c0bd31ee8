// Package systemd reports service state to systemd when the hub runs as a
// Type=notify unit. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notify is replaced in tests.
var notify = daemon.SdNotify

// Ready tells systemd startup is complete.
func Ready() (bool, error) {
	return notify(false, daemon.SdNotifyReady)
}

// Stopping tells systemd shutdown has begun.
func Stopping() (bool, error) {
	return notify(false, daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func Status(text string) (bool, error) {
	return notify(false, "STATUS="+text)
}

// Watchdog pings the systemd watchdog at half the configured interval
// until ctx is cancelled. healthy gates each ping; a nil healthy always
// pings. It returns immediately when no watchdog is configured.
func Watchdog(ctx context.Context, healthy func() bool) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	runWatchdog(ctx, interval/2, healthy)
}

func runWatchdog(ctx context.Context, every time.Duration, healthy func() bool) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if healthy == nil || healthy() {
				notify(false, daemon.SdNotifyWatchdog) //nolint:errcheck // Missed pings surface as a restart
			}
		}
	}
}
