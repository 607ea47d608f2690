package outbox

import (
	"fmt"
	"sync"
)

// DecodeFunc reconstructs a typed envelope from a stored payload.
type DecodeFunc func(payload []byte) (Envelope, error)

// Registry maps stored event type names to payload decoders. Each service
// registers the event kinds it produces at startup; a stored type without
// a decoder is a poison row.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

func NewRegistry() *Registry {
	return &Registry{decoders: map[string]DecodeFunc{}}
}

func (r *Registry) Register(eventType string, decode DecodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[eventType] = decode
}

func (r *Registry) Decode(eventType string, payload []byte) (Envelope, error) {
	r.mu.RLock()
	decode, ok := r.decoders[eventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	env, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return env, nil
}
