// Package influxdb records hub telemetry in InfluxDB.
//
// Two series are written:
//   - ble_signal: RSSI in dBm and the derived 0-100 quality per device
//   - relay_exchange: one point per settled command with sender, outcome
//     and response latency
//
// Writes are non-blocking and batched per config (batch_size,
// flush_interval). Asynchronous write failures are delivered to the
// callback set with SetOnError. The integration is optional; Connect
// returns ErrDisabled when influxdb.enabled is false.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSignalQuality("r4", -62, 76)
package influxdb
