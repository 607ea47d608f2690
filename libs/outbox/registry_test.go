package outbox

import (
	"encoding/json"
	"errors"
	"testing"
)

type stockEnvelope struct {
	Version int    `json:"version"`
	ID      string `json:"event_id"`
	Product string `json:"product_name"`
}

func (e stockEnvelope) EventID() string   { return e.ID }
func (e stockEnvelope) EventVersion() int { return e.Version }

func TestRegistry_Decode(t *testing.T) {
	reg := NewRegistry()
	reg.Register("inventory.stock.low.v1", func(payload []byte) (Envelope, error) {
		var e stockEnvelope
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	})

	env, err := reg.Decode("inventory.stock.low.v1", []byte(`{"version":1,"event_id":"abc-123","product_name":"Cat food"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.EventID() != "abc-123" {
		t.Fatalf("expected event id abc-123, got %q", env.EventID())
	}
	if env.EventVersion() != 1 {
		t.Fatalf("expected version 1, got %d", env.EventVersion())
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Decode("inventory.stock.low.v1", []byte("{}"))
	if !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestRegistry_CorruptPayload(t *testing.T) {
	reg := NewRegistry()
	reg.Register("inventory.stock.low.v1", func(payload []byte) (Envelope, error) {
		var e stockEnvelope
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	})

	_, err := reg.Decode("inventory.stock.low.v1", []byte("{broken"))
	if err == nil {
		t.Fatal("expected decode error for corrupt payload")
	}
	if errors.Is(err, ErrUnknownEventType) {
		t.Fatal("corrupt payload must not be reported as unknown type")
	}
}
