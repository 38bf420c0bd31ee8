//go:build !linux

package ble

import "context"

// Radio is unavailable off Linux; Dial always fails.
type Radio struct{}

// NewRadio returns a Radio that reports ErrUnsupportedPlatform.
func NewRadio() *Radio {
	return &Radio{}
}

// Dial always returns ErrUnsupportedPlatform.
func (r *Radio) Dial(_ context.Context, _ Device, _ string) (Peripheral, error) {
	return nil, ErrUnsupportedPlatform
}
