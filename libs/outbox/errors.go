package outbox

import "errors"

// ErrUnknownEventType is returned by Registry.Decode when no decoder was
// registered for a stored event type. Such rows can never be dispatched
// and are dead-lettered rather than retried.
var ErrUnknownEventType = errors.New("outbox: unknown event type")
