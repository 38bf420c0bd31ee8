//go:build linux

package ble

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// deviceNameBufferSize is enough for the GAP device name of an HM-10.
const deviceNameBufferSize = 32

// Radio dials peripherals through BlueZ.
type Radio struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error
}

// NewRadio returns a Radio on the default adapter.
func NewRadio() *Radio {
	return &Radio{adapter: bluetooth.DefaultAdapter}
}

func (r *Radio) enable() error {
	r.enableOnce.Do(func() {
		r.enableErr = r.adapter.Enable()
	})
	return r.enableErr
}

// Dial waits for the device to advertise, connects and resolves the
// characteristic.
func (r *Radio) Dial(ctx context.Context, dev Device, characteristicUUID string) (Peripheral, error) {
	if err := r.enable(); err != nil {
		return nil, fmt.Errorf("enabling adapter: %w", err)
	}

	addr, err := parseAddress(dev)
	if err != nil {
		return nil, err
	}
	charUUID, err := parseUUID(characteristicUUID)
	if err != nil {
		return nil, err
	}

	if err := r.waitForAdvertisement(ctx, addr); err != nil {
		return nil, err
	}

	device, err := r.connect(ctx, addr)
	if err != nil {
		return nil, err
	}

	char, err := findCharacteristic(device, charUUID)
	if err != nil {
		device.Disconnect() //nolint:errcheck // Already failing
		return nil, err
	}

	return &radioPeripheral{
		device: device,
		char:   char,
		name:   readDeviceName(device),
	}, nil
}

func (r *Radio) waitForAdvertisement(ctx context.Context, addr bluetooth.Address) error {
	found := make(chan struct{}, 1)
	scanErr := make(chan error, 1)
	want := addr.String()

	go func() {
		scanErr <- r.adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if strings.EqualFold(result.Address.String(), want) {
				a.StopScan() //nolint:errcheck // Scan ends either way
				select {
				case found <- struct{}{}:
				default:
				}
			}
		})
	}()

	select {
	case <-found:
		<-scanErr
		return nil
	case err := <-scanErr:
		if err != nil {
			return fmt.Errorf("scanning: %w", err)
		}
		select {
		case <-found:
			return nil
		default:
			return fmt.Errorf("scan ended without seeing %s", want)
		}
	case <-ctx.Done():
		r.adapter.StopScan() //nolint:errcheck // Best effort on timeout
		return fmt.Errorf("waiting for %s: %w", want, ctx.Err())
	}
}

func (r *Radio) connect(ctx context.Context, addr bluetooth.Address) (bluetooth.Device, error) {
	type result struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan result, 1)

	go func() {
		d, err := r.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- result{device: d, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return bluetooth.Device{}, fmt.Errorf("connecting to %s: %w", addr.String(), res.err)
		}
		return res.device, nil
	case <-ctx.Done():
		// Drop a connection that completes after we gave up.
		go func() {
			if res := <-ch; res.err == nil {
				res.device.Disconnect() //nolint:errcheck // Abandoned connection
			}
		}()
		return bluetooth.Device{}, fmt.Errorf("connecting to %s: %w", addr.String(), ctx.Err())
	}
}

func findCharacteristic(device bluetooth.Device, want bluetooth.UUID) (bluetooth.DeviceCharacteristic, error) {
	services, err := device.DiscoverServices(nil)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("discovering services: %w", err)
	}

	for _, service := range services {
		chars, err := service.DiscoverCharacteristics([]bluetooth.UUID{want})
		if err != nil {
			continue
		}
		for _, c := range chars {
			if c.UUID() == want {
				return c, nil
			}
		}
	}
	return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: %s", ErrCharacteristicNotFound, want.String())
}

// readDeviceName reads the GAP device name, returning "" if unavailable.
func readDeviceName(device bluetooth.Device) string {
	services, err := device.DiscoverServices([]bluetooth.UUID{bluetooth.New16BitUUID(0x1800)})
	if err != nil || len(services) == 0 {
		return ""
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{bluetooth.New16BitUUID(0x2A00)})
	if err != nil || len(chars) == 0 {
		return ""
	}
	buf := make([]byte, deviceNameBufferSize)
	n, err := chars[0].Read(buf)
	if err != nil {
		return ""
	}
	return DecodeResponse(buf[:n])
}

func parseAddress(dev Device) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(dev.Address)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("invalid address %q for node %d: %w", dev.Address, dev.Node, err)
	}
	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}
	addr.SetRandom(dev.Random)
	return addr, nil
}

// parseUUID accepts 16-bit ("FFE1") and full 128-bit UUIDs.
func parseUUID(s string) (bluetooth.UUID, error) {
	if len(s) == 4 {
		v, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return bluetooth.UUID{}, fmt.Errorf("invalid characteristic UUID %q: %w", s, err)
		}
		return bluetooth.New16BitUUID(uint16(v)), nil
	}
	u, err := bluetooth.ParseUUID(strings.ToLower(s))
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("invalid characteristic UUID %q: %w", s, err)
	}
	return u, nil
}

type radioPeripheral struct {
	device bluetooth.Device
	char   bluetooth.DeviceCharacteristic
	name   string
}

func (p *radioPeripheral) Name() string { return p.name }

func (p *radioPeripheral) Write(b []byte) error {
	_, err := p.char.WriteWithoutResponse(b)
	return err
}

func (p *radioPeripheral) EnableNotifications(fn func([]byte)) error {
	return p.char.EnableNotifications(fn)
}

func (p *radioPeripheral) Disconnect() error {
	return p.device.Disconnect()
}
