package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when metrics are switched off;
	// the hub treats it as "run without a recorder".
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps the startup ping failure.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is what HealthCheck reports once Close has run.
	ErrNotConnected = errors.New("influxdb: not connected")
)
