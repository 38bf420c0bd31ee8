package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/shsf-rail/shsf-hub/internal/events"
)

// commandTerminator is appended to every command written to the peripheral.
const commandTerminator = "\r"

// defaultConnectTimeout applies when Options.ConnectTimeout is zero.
const defaultConnectTimeout = 30 * time.Second

// Peripheral is a connected device exposing the serial characteristic.
type Peripheral interface {
	// Name is the device name read after connecting (may be empty).
	Name() string

	// Write performs one characteristic write.
	Write(p []byte) error

	// EnableNotifications registers fn for notification payloads.
	EnableNotifications(fn func([]byte)) error

	Disconnect() error
}

// Dialer connects to a registry device and resolves its characteristic.
type Dialer interface {
	Dial(ctx context.Context, dev Device, characteristicUUID string) (Peripheral, error)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Transport.
type Options struct {
	// RegistryFile is the path of devices.txt.
	RegistryFile string

	// Node selects the peripheral in the registry.
	Node int

	// CharacteristicIndex selects the LECHAR entry of that device.
	CharacteristicIndex int

	ConnectTimeout time.Duration

	// Dialer defaults to the platform radio.
	Dialer Dialer

	Events events.Sink
	Logger Logger
}

// Transport is the hub's single BLE link.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Notifications are delivered
//     on the radio's goroutine.
type Transport struct {
	opts   Options
	dialer Dialer

	mu     sync.RWMutex
	periph Peripheral
	name   string
	state  string
	closed bool

	handlerMu  sync.RWMutex
	onResponse func(text string)

	// writeMu keeps writes whole on the characteristic.
	writeMu sync.Mutex

	closeOnce sync.Once
}

// New creates an unconnected transport in StateSearching.
func New(opts Options) *Transport {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = NewRadio()
	}
	return &Transport{
		opts:   opts,
		dialer: dialer,
		state:  events.StateSearching,
	}
}

// Connect resolves the configured node in the registry, connects and
// enables notifications. Every failure is wrapped in ErrConnectionFailed
// and leaves the transport in StateFailed.
func (t *Transport) Connect(ctx context.Context) error {
	t.setState(events.StateSearching, "")
	t.logInfo("connecting to peripheral", "node", t.opts.Node, "registry", t.opts.RegistryFile)

	periph, dev, err := t.dial(ctx)
	if err != nil {
		t.setState(events.StateFailed, err.Error())
		t.logError("BLE connection failed", "node", t.opts.Node, "error", err)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	name := DecodeResponse([]byte(periph.Name()))
	if name == "" {
		name = dev.Name
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		periph.Disconnect() //nolint:errcheck // Closed while connecting
		return fmt.Errorf("%w: transport closed", ErrConnectionFailed)
	}
	t.periph = periph
	t.name = name
	t.mu.Unlock()

	t.setState(events.StateConnected, name)
	t.logInfo("BLE connected", "device", name, "address", dev.Address)
	return nil
}

func (t *Transport) dial(ctx context.Context) (Peripheral, Device, error) {
	reg, err := LoadRegistry(t.opts.RegistryFile)
	if err != nil {
		return nil, Device{}, err
	}
	dev, err := reg.Node(t.opts.Node)
	if err != nil {
		return nil, Device{}, err
	}
	charUUID, err := dev.CharacteristicUUID(t.opts.CharacteristicIndex)
	if err != nil {
		return nil, dev, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.opts.ConnectTimeout)
	defer cancel()

	periph, err := t.dialer.Dial(dialCtx, dev, charUUID)
	if err != nil {
		return nil, dev, err
	}

	if err := periph.EnableNotifications(t.handleNotification); err != nil {
		periph.Disconnect() //nolint:errcheck // Already failing
		return nil, dev, fmt.Errorf("enabling notifications: %w", err)
	}
	return periph, dev, nil
}

// Write sends command followed by a carriage return in one write.
func (t *Transport) Write(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.RLock()
	periph := t.periph
	t.mu.RUnlock()
	if periph == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := periph.Write([]byte(command + commandTerminator)); err != nil {
		return fmt.Errorf("ble write: %w", err)
	}
	t.logDebug("BLE write", "command", command)
	return nil
}

// SetOnResponse sets the handler for decoded notifications.
func (t *Transport) SetOnResponse(handler func(text string)) {
	t.handlerMu.Lock()
	t.onResponse = handler
	t.handlerMu.Unlock()
}

func (t *Transport) handleNotification(data []byte) {
	text := DecodeResponse(data)
	if text == "" {
		return
	}
	t.logDebug("BLE notification", "response", text)

	t.handlerMu.RLock()
	handler := t.onResponse
	t.handlerMu.RUnlock()
	if handler != nil {
		handler(text)
	}
}

// DecodeResponse converts a notification payload to text with surrounding
// whitespace and control characters removed.
func DecodeResponse(data []byte) string {
	return strings.TrimFunc(string(data), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
}

// Name returns the connected device name, or "" before Connect succeeds.
func (t *Transport) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

// State returns searching, connected or failed.
func (t *Transport) State() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// IsConnected reports whether a peripheral is attached.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.periph != nil
}

// Close disconnects the peripheral. Safe to call multiple times.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		periph := t.periph
		t.periph = nil
		t.closed = true
		t.mu.Unlock()

		if periph != nil {
			if derr := periph.Disconnect(); derr != nil {
				err = fmt.Errorf("ble disconnect: %w", derr)
			}
			t.logInfo("BLE disconnected")
		}
	})
	return err
}

func (t *Transport) setState(state, text string) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	if t.opts.Events != nil {
		t.opts.Events.Publish(events.Event{
			Kind:   events.KindConnection,
			State:  state,
			Text:   text,
			Device: t.Name(),
		})
	}
}

func (t *Transport) logDebug(msg string, args ...any) {
	if t.opts.Logger != nil {
		t.opts.Logger.Debug(msg, args...)
	}
}

func (t *Transport) logInfo(msg string, args ...any) {
	if t.opts.Logger != nil {
		t.opts.Logger.Info(msg, args...)
	}
}

func (t *Transport) logError(msg string, args ...any) {
	if t.opts.Logger != nil {
		t.opts.Logger.Error(msg, args...)
	}
}
