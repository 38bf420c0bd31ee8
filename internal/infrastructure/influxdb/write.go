package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the hub.
const (
	MeasurementSignal   = "ble_signal"
	MeasurementExchange = "relay_exchange"
)

// WriteSignalQuality records one RSSI telemetry sample for a device.
//
//	client.WriteSignalQuality("r4", -62, 76)
func (c *Client) WriteSignalQuality(device string, dbm, quality int) {
	c.writePoint(write.NewPoint(
		MeasurementSignal,
		map[string]string{"device": device},
		map[string]interface{}{
			"rssi_dbm": dbm,
			"quality":  quality,
		},
		time.Now(),
	))
}

// WriteExchange records a settled command exchange.
//
// outcome is one of the relay outcomes ("answered", "timeout",
// "write_failed"). latency is the time from dispatch to the first
// response and is omitted when zero.
func (c *Client) WriteExchange(sender, outcome string, latency time.Duration, at time.Time) {
	fields := map[string]interface{}{
		"count": 1,
	}
	if latency > 0 {
		fields["latency_ms"] = float64(latency) / float64(time.Millisecond)
	}

	c.writePoint(write.NewPoint(
		MeasurementExchange,
		map[string]string{
			"sender":  sender,
			"outcome": outcome,
		},
		fields,
		at,
	))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() || c.writer == nil {
		return
	}
	c.writer.WritePoint(p)
}
