package ble

import "errors"

var (
	// ErrConnectionFailed wraps every Connect failure.
	ErrConnectionFailed = errors.New("ble: connection failed")

	// ErrNotConnected is returned by Write before Connect succeeds or after Close.
	ErrNotConnected = errors.New("ble: not connected")

	// ErrNodeNotFound is returned when the registry has no device with the node number.
	ErrNodeNotFound = errors.New("ble: node not found in registry")

	// ErrCharacteristicNotFound is returned when the configured characteristic
	// index is missing from the registry entry or the peripheral.
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")

	// ErrUnsupportedPlatform is returned by the radio on platforms without BlueZ.
	ErrUnsupportedPlatform = errors.New("ble: radio not supported on this platform")
)
