package shell

import (
	"fmt"
	"sync"
	"time"

	"github.com/shsf-rail/shsf-hub/internal/events"
)

// SearchingText is the status shown until the peripheral connects.
const SearchingText = "Searching for Device..."

// logTimeLayout prefixes each log line.
const logTimeLayout = "15:04:05"

// Status is the status line text and its colour name.
type Status struct {
	Text  string
	Color string
}

// Signal is the last signal quality sample. Known is false until one arrives.
type Signal struct {
	Known   bool
	RSSI    int
	Quality int
	Color   string
}

// Changes reports which parts of the view an Apply touched.
type Changes struct {
	Status bool
	Signal bool
	Log    bool
}

// Model is the state rendered by the window.
type Model struct {
	mu     sync.RWMutex
	device string
	status Status
	signal Signal
	log    *LogBook
}

// NewModel starts in the searching state with an empty log.
func NewModel(logSize int) *Model {
	return &Model{
		status: Status{Text: SearchingText, Color: events.ColorOrange},
		log:    NewLogBook(logSize),
	}
}

// Status returns the current status line.
func (m *Model) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Signal returns the last signal sample.
func (m *Model) Signal() Signal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.signal
}

// Log returns the command log.
func (m *Model) Log() *LogBook {
	return m.log
}

// Device returns the connected device name.
func (m *Model) Device() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device
}

// ClearLog empties the command log.
func (m *Model) ClearLog() {
	m.log.Clear()
}

// Reject shows a local command that never reached the queue.
func (m *Model) Reject(command string, err error) {
	m.mu.Lock()
	m.status = Status{Text: fmt.Sprintf("Cmd %s rejected: %v", command, err), Color: events.ColorRed}
	m.mu.Unlock()
	m.log.Add(fmt.Sprintf("%s rejected %s: %v", time.Now().Format(logTimeLayout), command, err))
}

// Apply folds one event into the model.
func (m *Model) Apply(e events.Event) Changes {
	m.mu.Lock()
	var c Changes

	switch e.Kind {
	case events.KindConnection:
		c.Status = m.applyConnection(e)
	case events.KindSubmitted:
		if e.Local {
			m.status = Status{Text: fmt.Sprintf("Last Cmd: %s (from %s)", e.Command, e.Sender), Color: events.ColorBlue}
			c.Status = true
		}
	case events.KindResponse:
		if e.Local {
			m.status = Status{Text: fmt.Sprintf("%s Status: %s", m.deviceLabel(), e.Text), Color: events.ColorGreen}
			c.Status = true
		}
	case events.KindWriteFailed:
		if e.Local {
			m.status = Status{Text: fmt.Sprintf("Cmd %s failed: %s", e.Command, e.Text), Color: events.ColorRed}
			c.Status = true
		}
	case events.KindSignal:
		m.signal = Signal{Known: true, RSSI: e.RSSI, Quality: e.Quality, Color: e.Color}
		c.Signal = true
	}
	m.mu.Unlock()

	if line, ok := LogLine(e); ok {
		m.log.Add(line)
		c.Log = true
	}
	return c
}

// applyConnection must be called with mu held.
func (m *Model) applyConnection(e events.Event) bool {
	switch e.State {
	case events.StateSearching:
		m.status = Status{Text: SearchingText, Color: events.ColorOrange}
	case events.StateConnected:
		if e.Text != "" {
			m.device = e.Text
		}
		m.status = Status{Text: fmt.Sprintf("%s Status: Connected", m.deviceLabel()), Color: events.ColorGreen}
	case events.StateFailed:
		m.status = Status{Text: "Status: Connection failed", Color: events.ColorRed}
	default:
		return false
	}
	return true
}

func (m *Model) deviceLabel() string {
	if m.device == "" {
		return "Device"
	}
	return m.device
}

// LogLine formats an event for the command log. Events that are not
// logged return false.
func LogLine(e events.Event) (string, bool) {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	prefix := ts.Format(logTimeLayout)

	switch e.Kind {
	case events.KindDispatched:
		return fmt.Sprintf("%s %s > %s", prefix, e.Sender, e.Command), true
	case events.KindResponse:
		return fmt.Sprintf("%s %s < %s", prefix, e.Sender, e.Text), true
	case events.KindTimeout:
		return fmt.Sprintf("%s %s ! no response to %s", prefix, e.Sender, e.Command), true
	case events.KindWriteFailed:
		return fmt.Sprintf("%s %s ! write failed: %s", prefix, e.Sender, e.Text), true
	case events.KindConnection:
		if e.State == events.StateFailed {
			return fmt.Sprintf("%s BLE failed: %s", prefix, e.Text), true
		}
		return fmt.Sprintf("%s BLE %s", prefix, e.State), true
	default:
		return "", false
	}
}
