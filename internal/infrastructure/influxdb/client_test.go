package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/shsf-rail/shsf-hub/internal/infrastructure/config"
)

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func (f *fakeWriter) written() []*write.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*write.Point(nil), f.points...)
}

func tagValue(p *write.Point, key string) string {
	for _, tag := range p.TagList() {
		if tag.Key == key {
			return tag.Value
		}
	}
	return ""
}

func fieldValue(p *write.Point, key string) (interface{}, bool) {
	for _, field := range p.FieldList() {
		if field.Key == key {
			return field.Value, true
		}
	}
	return nil, false
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Org:     "shsf",
		Bucket:  "hub",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteSignalQuality(t *testing.T) {
	w := &fakeWriter{}
	c := newClient(w, config.InfluxDBConfig{})

	c.WriteSignalQuality("r4", -62, 76)

	points := w.written()
	if len(points) != 1 {
		t.Fatalf("wrote %d points, want 1", len(points))
	}
	p := points[0]
	if p.Name() != MeasurementSignal {
		t.Errorf("measurement = %q, want %q", p.Name(), MeasurementSignal)
	}
	if got := tagValue(p, "device"); got != "r4" {
		t.Errorf("device tag = %q, want r4", got)
	}
	if v, ok := fieldValue(p, "quality"); !ok || v != int64(76) {
		t.Errorf("quality field = %v (%T), want 76", v, v)
	}
}

func TestWriteExchange(t *testing.T) {
	w := &fakeWriter{}
	c := newClient(w, config.InfluxDBConfig{})
	at := time.Date(2026, 10, 3, 9, 0, 0, 0, time.UTC)

	c.WriteExchange("alice", "answered", 40*time.Millisecond, at)
	c.WriteExchange("hub", "timeout", 0, at)

	points := w.written()
	if len(points) != 2 {
		t.Fatalf("wrote %d points, want 2", len(points))
	}

	answered := points[0]
	if got := tagValue(answered, "sender"); got != "alice" {
		t.Errorf("sender tag = %q, want alice", got)
	}
	if v, ok := fieldValue(answered, "latency_ms"); !ok || v != float64(40) {
		t.Errorf("latency_ms = %v, want 40", v)
	}
	if !answered.Time().Equal(at) {
		t.Errorf("time = %v, want %v", answered.Time(), at)
	}

	if _, ok := fieldValue(points[1], "latency_ms"); ok {
		t.Error("timeout exchange should not carry latency_ms")
	}
}

func TestClose_StopsWritesAndFlushesOnce(t *testing.T) {
	w := &fakeWriter{}
	c := newClient(w, config.InfluxDBConfig{})

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}

	c.WriteSignalQuality("r4", -50, 100)
	if len(w.written()) != 0 {
		t.Error("points written after Close")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c := newClient(&fakeWriter{}, config.InfluxDBConfig{})

	var got []error
	c.SetOnError(func(err error) { got = append(got, err) })

	ch := make(chan error, 2)
	ch <- errors.New("bucket not found")
	ch <- errors.New("unauthorized")
	close(ch)

	c.handleWriteErrors(ch)

	if len(got) != 2 {
		t.Errorf("callback invoked %d times, want 2", len(got))
	}
}
