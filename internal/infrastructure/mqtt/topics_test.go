package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := Topics{Namespace: "shsf"}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{name: "Commands", got: topics.Commands("alice"), expected: "shsf/alice/commands"},
		{name: "AllCommands", got: topics.AllCommands(), expected: "shsf/+/commands"},
		{name: "Responses", got: topics.Responses("alice"), expected: "shsf/alice/responses"},
		{name: "Heartbeat", got: topics.Heartbeat(), expected: "shsf/heartbeat"},
		{name: "RSSI", got: topics.RSSI("r4"), expected: "shsf/r4/rssi"},
		{name: "Status", got: topics.Status(), expected: "shsf/hub/status"},
		{name: "custom namespace", got: Topics{Namespace: "club"}.Heartbeat(), expected: "club/heartbeat"},
		{name: "zero value namespace", got: Topics{}.AllCommands(), expected: "shsf/+/commands"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestSenderFromTopic(t *testing.T) {
	tests := []struct {
		topic    string
		expected string
	}{
		{topic: "shsf/alice/commands", expected: "alice"},
		{topic: "club/bob/commands", expected: "bob"},
		{topic: "shsf/alice", expected: "alice"},
		{topic: "shsf", expected: "unknown"},
		{topic: "", expected: "unknown"},
		{topic: "shsf//commands", expected: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			if got := SenderFromTopic(tt.topic); got != tt.expected {
				t.Errorf("SenderFromTopic(%q) = %q, want %q", tt.topic, got, tt.expected)
			}
		})
	}
}
