package bridge

import "github.com/shsf-rail/shsf-hub/internal/infrastructure/mqtt"

// Publisher publishes a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Responder publishes relay responses on <ns>/<sender>/responses.
// It satisfies relay.ResponsePublisher.
type Responder struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
}

// NewResponder creates a responder on the given publisher.
func NewResponder(pub Publisher, topics mqtt.Topics, qos byte) *Responder {
	return &Responder{pub: pub, topics: topics, qos: qos}
}

// PublishResponse publishes text to the sender's responses topic.
func (r *Responder) PublishResponse(sender, text string) error {
	return r.pub.Publish(r.topics.Responses(sender), []byte(text), r.qos, false)
}
