package outbox

import "time"

// Event is a domain event staged for delivery through the outbox table.
// It is written in the same database transaction as the business change
// that produced it, so the event exists if and only if that change committed.
type Event struct {
	Exchange   string
	RoutingKey string
	EventType  string
	Payload    []byte
	Version    int
}

// Record is a stored outbox row claimed for dispatch.
type Record struct {
	ID         int64
	Exchange   string
	RoutingKey string
	EventType  string
	Payload    []byte
	Version    int
	Attempts   int
	CreatedAt  time.Time
}

// Envelope is implemented by every typed event payload. The event id is
// generated once on the producer side and carried through serialization
// unchanged; consumers use it for deduplication.
type Envelope interface {
	EventID() string
	EventVersion() int
}
