// Package ble owns the hub's single connection to the HM-10 style serial
// peripheral.
//
// The peripheral is chosen by node number from a btferret style device
// registry (devices.txt). Commands are written as ASCII followed by a
// carriage return to one characteristic; notifications on the same
// characteristic are decoded, trimmed and handed to the response handler
// on the radio stack's goroutine.
//
// Connection failures are terminal for the process lifetime: the
// transport reports StateFailed and never retries.
package ble
