package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shsf-rail/shsf-hub/internal/events"
)

// Signal quality thresholds for the indicator colour.
const (
	goodQuality = 75
	fairQuality = 40
)

// Quality maps an RSSI reading in dBm to 0-100: -100 dBm or worse is 0,
// -50 dBm or better is 100, linear in between.
func Quality(dbm int) int {
	q := 2 * (dbm + 100)
	switch {
	case q < 0:
		return 0
	case q > 100:
		return 100
	default:
		return q
	}
}

// SignalColor returns green above 75, orange above 40, red otherwise.
func SignalColor(quality int) string {
	switch {
	case quality > goodQuality:
		return events.ColorGreen
	case quality > fairQuality:
		return events.ColorOrange
	default:
		return events.ColorRed
	}
}

// ParseRSSI parses an integer dBm payload.
func ParseRSSI(payload []byte) (int, error) {
	s := strings.TrimSpace(string(payload))
	dbm, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSignal, s)
	}
	return dbm, nil
}

// handleSignal turns an RSSI reading into a signal event. Malformed
// payloads are dropped.
func (b *Bridge) handleSignal(topic string, payload []byte) error {
	dbm, err := ParseRSSI(payload)
	if err != nil {
		b.logDebug("ignoring signal reading", "topic", topic, "error", err)
		return nil
	}

	quality := Quality(dbm)
	color := SignalColor(quality)

	if quality <= b.opts.WarnQuality {
		b.logWarn("weak signal", "device", b.opts.Device, "rssi", dbm, "quality", quality)
	}

	b.emit(events.Event{
		Kind:    events.KindSignal,
		Device:  b.opts.Device,
		RSSI:    dbm,
		Quality: quality,
		Color:   color,
	})

	if b.opts.Metrics != nil {
		b.opts.Metrics.WriteSignalQuality(b.opts.Device, dbm, quality)
	}
	return nil
}
