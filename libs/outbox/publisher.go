package outbox

import "context"

// Meta travels with a published message as broker headers so consumers can
// deduplicate without parsing the body first.
type Meta struct {
	EventID   string
	EventType string
	Version   int
}

// Publisher forwards a serialized event to the message broker. The call is
// synchronous: a nil return means the broker confirmed acceptance and the
// dispatcher may delete the outbox row.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte, meta Meta) error
}
