package inbox

import (
	"context"
	"fmt"
	"log/slog"
)

// RecordStore persists processed-event markers.
type RecordStore interface {
	AlreadyProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkProcessed returns false when another consumer inserted the marker
	// first, which can happen under concurrent redelivery.
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}

// Guard makes at-least-once delivery safe to act on: the wrapped handler's
// side effects run at most once per event id. A crash between the handler
// and the marker re-runs the handler on redelivery, which for mail means at
// worst one duplicate message, never a lost one.
type Guard struct {
	store  RecordStore
	logger *slog.Logger
}

func NewGuard(store RecordStore, logger *slog.Logger) *Guard {
	return &Guard{store: store, logger: logger}
}

// Execute runs handler unless eventID was already handled, then records the
// marker. An event without an id cannot be deduplicated: the handler runs on
// every delivery and a warning is logged rather than silently swallowing
// the gap.
func (g *Guard) Execute(ctx context.Context, eventID, eventType string, handler func(ctx context.Context) error) error {
	if eventID == "" {
		g.logger.Warn("event has no id and cannot be deduplicated", "event_type", eventType)
		return handler(ctx)
	}

	done, err := g.store.AlreadyProcessed(ctx, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check for %s: %w", eventID, err)
	}
	if done {
		g.logger.Info("duplicate event ignored", "event_id", eventID, "event_type", eventType)
		return nil
	}

	if err := handler(ctx); err != nil {
		return err
	}

	fresh, err := g.store.MarkProcessed(ctx, eventID, eventType)
	if err != nil {
		return fmt.Errorf("mark %s processed: %w", eventID, err)
	}
	if !fresh {
		g.logger.Warn("event was processed concurrently by another consumer", "event_id", eventID)
	}
	return nil
}
