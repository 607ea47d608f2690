package inbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type memRecordStore struct {
	processed map[string]string
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{processed: map[string]string{}}
}

func (s *memRecordStore) AlreadyProcessed(_ context.Context, eventID string) (bool, error) {
	_, ok := s.processed[eventID]
	return ok, nil
}

func (s *memRecordStore) MarkProcessed(_ context.Context, eventID, eventType string) (bool, error) {
	if _, ok := s.processed[eventID]; ok {
		return false, nil
	}
	s.processed[eventID] = eventType
	return true, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecute_HandlerRunsOncePerEventID(t *testing.T) {
	store := newMemRecordStore()
	guard := NewGuard(store, testLogger())

	calls := 0
	handler := func(context.Context) error {
		calls++
		return nil
	}

	for i := 0; i < 2; i++ {
		if err := guard.Execute(context.Background(), "abc-123", "auth.password.reset.v1", handler); err != nil {
			t.Fatalf("delivery %d failed: %v", i+1, err)
		}
	}

	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	if len(store.processed) != 1 {
		t.Fatalf("expected exactly 1 marker, got %d", len(store.processed))
	}
	if _, ok := store.processed["abc-123"]; !ok {
		t.Fatal("expected marker for abc-123")
	}
}

func TestExecute_MissingEventIDAlwaysRuns(t *testing.T) {
	store := newMemRecordStore()
	guard := NewGuard(store, testLogger())

	calls := 0
	handler := func(context.Context) error {
		calls++
		return nil
	}

	for i := 0; i < 3; i++ {
		if err := guard.Execute(context.Background(), "", "inventory.stock.low.v1", handler); err != nil {
			t.Fatalf("delivery %d failed: %v", i+1, err)
		}
	}

	if calls != 3 {
		t.Fatalf("expected handler to run every delivery, ran %d times", calls)
	}
	if len(store.processed) != 0 {
		t.Fatal("id-less events must not leave markers")
	}
}

func TestExecute_FailedHandlerLeavesNoMarker(t *testing.T) {
	store := newMemRecordStore()
	guard := NewGuard(store, testLogger())

	handlerErr := errors.New("smtp down")
	err := guard.Execute(context.Background(), "abc-123", "auth.password.reset.v1", func(context.Context) error {
		return handlerErr
	})
	if !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if len(store.processed) != 0 {
		t.Fatal("failed handler must not be marked processed")
	}

	// Redelivery after the failure runs the handler again.
	calls := 0
	if err := guard.Execute(context.Background(), "abc-123", "auth.password.reset.v1", func(context.Context) error {
		calls++
		return nil
	}); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected redelivery to run handler, ran %d times", calls)
	}
}
