package shell

import "sync"

// LogBook is a bounded list of log lines, oldest first.
type LogBook struct {
	mu      sync.RWMutex
	max     int
	entries []string
}

// NewLogBook creates a log book keeping at most size lines (minimum 1).
func NewLogBook(size int) *LogBook {
	if size < 1 {
		size = 1
	}
	return &LogBook{max: size}
}

// Add appends line, dropping the oldest line when full.
func (l *LogBook) Add(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == l.max {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.max-1]
	}
	l.entries = append(l.entries, line)
}

// Clear removes every line.
func (l *LogBook) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Len returns the number of lines.
func (l *LogBook) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// At returns line i, or "" when out of range.
func (l *LogBook) At(i int) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.entries) {
		return ""
	}
	return l.entries[i]
}

// Entries returns a copy of all lines.
func (l *LogBook) Entries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.entries...)
}
