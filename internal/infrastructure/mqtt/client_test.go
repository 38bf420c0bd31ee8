package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/shsf-rail/shsf-hub/internal/infrastructure/config"
)

// fakeToken implements pahomqtt.Token.
type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                       { return !t.timeout }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                     { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type fakePublish struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  string
}

// fakePaho implements pahomqtt.Client without a broker.
type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	published    []fakePublish
	handlers     map[string]pahomqtt.MessageHandler
	subscribeErr error
	publishErr   error
	disconnects  int
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }
func (f *fakePaho) Connect() pahomqtt.Token {
	return &fakeToken{}
}

func (f *fakePaho) Disconnect(_ uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	f.published = append(f.published, fakePublish{Topic: topic, QoS: qos, Retained: retained, Payload: body})
	return &fakeToken{err: f.publishErr}
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return &fakeToken{err: f.subscribeErr}
	}
	f.handlers[topic] = callback
	return &fakeToken{}
}

func (f *fakePaho) SubscribeMultiple(_ map[string]byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.handlers, topic)
	}
	return &fakeToken{}
}

func (f *fakePaho) AddRoute(_ string, _ pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (f *fakePaho) deliver(filter, topic string, payload []byte) {
	f.mu.Lock()
	handler := f.handlers[filter]
	f.mu.Unlock()
	if handler != nil {
		handler(f, &fakeMessage{topic: topic, payload: payload})
	}
}

func (f *fakePaho) getPublished() []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakePublish(nil), f.published...)
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Info(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record(msg) }

func (l *recordingLogger) contains(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if line == msg {
			return true
		}
	}
	return false
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "shsf-hub-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectedClient returns a Client wired to a fake paho client that has
// gone through the connect handler.
func connectedClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fake := newFakePaho()
	c := newClient(fake, testConfig(), Topics{Namespace: "shsf"})
	c.handleConnect()
	return c, fake
}

func TestHandleConnect_PublishesOnlineStatus(t *testing.T) {
	c, fake := connectedClient(t)

	if !c.IsConnected() {
		t.Fatal("IsConnected() = false after connect handler")
	}

	published := fake.getPublished()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want 1", len(published))
	}
	got := published[0]
	if got.Topic != "shsf/hub/status" {
		t.Errorf("status topic = %q, want shsf/hub/status", got.Topic)
	}
	if !got.Retained {
		t.Error("status message not retained")
	}
	if !strings.Contains(got.Payload, `"status":"online"`) {
		t.Errorf("status payload = %s, want online", got.Payload)
	}
}

func TestClose_PublishesOfflineAndIsIdempotent(t *testing.T) {
	c, fake := connectedClient(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if fake.disconnects != 1 {
		t.Errorf("Disconnect called %d times, want 1", fake.disconnects)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}

	published := fake.getPublished()
	last := published[len(published)-1]
	if !strings.Contains(last.Payload, `"reason":"graceful_shutdown"`) {
		t.Errorf("final status payload = %s, want graceful_shutdown", last.Payload)
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c, fake := connectedClient(t)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}

	fake.Disconnect(0)
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "valid", topic: "shsf/alice/responses", payload: []byte("OK"), qos: 0},
		{name: "nil payload", topic: "shsf/alice/responses", payload: nil, qos: 0},
		{name: "empty topic", topic: "", payload: []byte("OK"), wantErr: ErrInvalidTopic},
		{name: "invalid qos", topic: "shsf/alice/responses", payload: []byte("OK"), qos: 3, wantErr: ErrInvalidQoS},
		{name: "oversized payload", topic: "shsf/alice/responses", payload: make([]byte, maxPayloadSize+1), wantErr: ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := connectedClient(t)
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if tt.wantErr == nil && err != nil {
				t.Errorf("Publish() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublish_Disconnected(t *testing.T) {
	c, _ := connectedClient(t)
	c.Close()

	if err := c.PublishString("shsf/heartbeat", "12:00:00", 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_BrokerError(t *testing.T) {
	c, fake := connectedClient(t)
	fake.publishErr = errors.New("broker rejected")

	if err := c.PublishDefault("shsf/heartbeat", []byte("12:00:00")); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishDefault() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_DeliversMessages(t *testing.T) {
	c, fake := connectedClient(t)

	var gotTopic, gotPayload string
	err := c.Subscribe(c.Topics().AllCommands(), 0, func(topic string, payload []byte) error {
		gotTopic = topic
		gotPayload = string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d after Subscribe, want 1", c.SubscriptionCount())
	}

	fake.deliver("shsf/+/commands", "shsf/alice/commands", []byte("h"))

	if gotTopic != "shsf/alice/commands" || gotPayload != "h" {
		t.Errorf("handler got (%q, %q), want (shsf/alice/commands, h)", gotTopic, gotPayload)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c, _ := connectedClient(t)
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 0, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("shsf/+/commands", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("shsf/+/commands", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscribe_FailureIsNotTracked(t *testing.T) {
	c, fake := connectedClient(t)
	fake.subscribeErr = errors.New("not authorised")

	err := c.Subscribe("shsf/+/commands", 0, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestUnsubscribe(t *testing.T) {
	c, _ := connectedClient(t)
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("shsf/+/commands", 0, noop); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := c.Subscribe("shsf/r4/rssi", 0, noop); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := c.Unsubscribe("shsf/r4/rssi"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", c.SubscriptionCount())
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
}

func TestReconnect_RestoresSubscriptions(t *testing.T) {
	c, fake := connectedClient(t)

	calls := 0
	if err := c.Subscribe("shsf/+/commands", 0, func(string, []byte) error {
		calls++
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	var lostErr error
	c.SetOnDisconnect(func(err error) { lostErr = err })
	reconnected := false
	c.SetOnConnect(func() { reconnected = true })

	fake.mu.Lock()
	fake.handlers = make(map[string]pahomqtt.MessageHandler)
	fake.mu.Unlock()
	c.handleDisconnect(errors.New("EOF"))
	if lostErr == nil {
		t.Error("OnDisconnect callback not invoked")
	}

	c.handleConnect()
	if !reconnected {
		t.Error("OnConnect callback not invoked")
	}

	fake.deliver("shsf/+/commands", "shsf/bob/commands", []byte("h"))
	if calls != 1 {
		t.Errorf("handler called %d times after reconnect, want 1", calls)
	}
}

func TestWrapHandler_RecoversPanicAndLogsErrors(t *testing.T) {
	c, _ := connectedClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	panicking := c.wrapHandler(func(string, []byte) error { panic("boom") })
	panicking(nil, &fakeMessage{topic: "shsf/x/commands"})
	if !logger.contains("MQTT handler panic recovered") {
		t.Error("panic not logged")
	}

	failing := c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })
	failing(nil, &fakeMessage{topic: "shsf/x/commands"})
	if !logger.contains("MQTT handler returned error") {
		t.Error("handler error not logged")
	}
}

func TestBuildStatusPayload(t *testing.T) {
	online := buildStatusPayload("hub-1", "online", "")
	if strings.Contains(online, "reason") {
		t.Errorf("online payload %s should omit reason", online)
	}
	offline := buildStatusPayload("hub-1", "offline", "unexpected_disconnect")
	if !strings.Contains(offline, `"reason":"unexpected_disconnect"`) {
		t.Errorf("offline payload %s missing reason", offline)
	}
	if !strings.Contains(offline, `"client_id":"hub-1"`) {
		t.Errorf("offline payload %s missing client id", offline)
	}
}
