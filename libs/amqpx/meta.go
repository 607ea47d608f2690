package amqpx

import (
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventMeta is the canonical metadata carried on every published message.
type EventMeta struct {
	EventID   string
	EventType string
}

// ExtractEventMeta reads event metadata from delivery headers, falling back
// to the envelope's event_id field and the routing key for messages published
// by anything other than the outbox dispatcher.
func ExtractEventMeta(d amqp.Delivery) EventMeta {
	eventID := HeaderValue(d.Headers, "event_id")
	eventType := HeaderValue(d.Headers, "event_type")
	if eventID == "" {
		var envelope struct {
			EventID string `json:"event_id"`
		}
		if err := json.Unmarshal(d.Body, &envelope); err == nil {
			eventID = envelope.EventID
		}
	}
	if eventType == "" {
		eventType = d.RoutingKey
	}
	return EventMeta{EventID: eventID, EventType: eventType}
}

func HeaderValue(headers amqp.Table, key string) string {
	if headers == nil {
		return ""
	}
	if v, ok := headers[key].(string); ok {
		return v
	}
	return ""
}
