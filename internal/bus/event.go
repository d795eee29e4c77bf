package bus

import "time"

// Event is a domain event published on the bus. Topic is a dot-separated
// name ("message.new", "chat.read_status_changed", "send.settled");
// subscribers filter by topic prefix.
type Event struct {
	Topic     string
	Timestamp time.Time
	Payload   any
}

// New builds an event stamped with the current time.
func New(topic string, payload any) Event {
	return Event{Topic: topic, Timestamp: time.Now(), Payload: payload}
}
