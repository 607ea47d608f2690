package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5"
)

// memTx satisfies pgx.Tx for the dispatch protocol; only Commit/Rollback are
// ever called because memStore ignores the transaction handle.
type memTx struct{ pgx.Tx }

func (memTx) Commit(context.Context) error   { return nil }
func (memTx) Rollback(context.Context) error { return nil }

type memDB struct{}

func (memDB) Begin(context.Context) (pgx.Tx, error) { return memTx{}, nil }

// memStore mimics the skip-locked claim: a claimed row is invisible to other
// claimants until it is deleted, dead-lettered, or its attempt is recorded.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	rows    []*Record
	claimed map[int64]bool
	dead    []*Record
}

func newMemStore() *memStore {
	return &memStore{claimed: map[int64]bool{}}
}

func (s *memStore) add(eventType, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.rows = append(s.rows, &Record{
		ID:         s.nextID,
		Exchange:   "petshop.test",
		RoutingKey: "test.key",
		EventType:  eventType,
		Payload:    []byte(payload),
		Version:    1,
	})
}

func (s *memStore) ClaimNext(_ context.Context, _ pgx.Tx) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.rows {
		if !s.claimed[rec.ID] {
			s.claimed[rec.ID] = true
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) Delete(_ context.Context, _ pgx.Tx, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(id)
	return nil
}

func (s *memStore) deleteLocked(id int64) {
	for i, rec := range s.rows {
		if rec.ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			break
		}
	}
	delete(s.claimed, id)
}

func (s *memStore) MarkAttempt(_ context.Context, _ pgx.Tx, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.rows {
		if rec.ID == id {
			rec.Attempts++
			break
		}
	}
	delete(s.claimed, id)
	return nil
}

func (s *memStore) DeadLetter(_ context.Context, _ pgx.Tx, rec *Record, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = append(s.dead, rec)
	s.deleteLocked(rec.ID)
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type countPublisher struct {
	calls atomic.Int64
	err   error
}

func (p *countPublisher) Publish(context.Context, string, string, []byte, Meta) error {
	p.calls.Add(1)
	return p.err
}

type mapEnvelope struct {
	data map[string]any
}

func (e mapEnvelope) EventID() string {
	id, _ := e.data["event_id"].(string)
	return id
}

func (e mapEnvelope) EventVersion() int { return 1 }

func testRegistry() *Registry {
	reg := NewRegistry()
	reg.Register("map", func(payload []byte) (Envelope, error) {
		var m map[string]any
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		return mapEnvelope{data: m}, nil
	})
	return reg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessNext_EmptyBacklog(t *testing.T) {
	store := newMemStore()
	pub := &countPublisher{}
	d := NewDispatcher(memDB{}, store, testRegistry(), pub, testLogger(), DispatcherConfig{})

	processed, err := d.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext failed: %v", err)
	}
	if processed {
		t.Fatal("expected false on empty backlog")
	}
	if got := pub.calls.Load(); got != 0 {
		t.Fatalf("publisher called %d times on empty backlog", got)
	}
}

func TestProcessNext_ConcurrentDrain(t *testing.T) {
	const totalRows = 100
	const workers = 5

	store := newMemStore()
	for i := 0; i < totalRows; i++ {
		store.add("map", "{}")
	}
	pub := &countPublisher{}
	d := NewDispatcher(memDB{}, store, testRegistry(), pub, testLogger(), DispatcherConfig{})

	var processedTotal atomic.Int64
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for {
				processed, err := d.ProcessNext(context.Background())
				if err != nil {
					t.Errorf("ProcessNext failed: %v", err)
					return
				}
				if !processed {
					return
				}
				processedTotal.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := store.count(); got != 0 {
		t.Fatalf("expected empty outbox, %d rows left", got)
	}
	if got := processedTotal.Load(); got != totalRows {
		t.Fatalf("expected %d rows processed, got %d", totalRows, got)
	}
	if got := pub.calls.Load(); got != totalRows {
		t.Fatalf("expected %d publishes, got %d", totalRows, got)
	}
	if len(store.dead) != 0 {
		t.Fatalf("expected no dead letters, got %d", len(store.dead))
	}
}

func TestProcessNext_PoisonRowDeadLetters(t *testing.T) {
	store := newMemStore()
	store.add("no.such.type", "{}")
	store.add("map", "{not json")
	pub := &countPublisher{}
	d := NewDispatcher(memDB{}, store, testRegistry(), pub, testLogger(), DispatcherConfig{})

	for i := 0; i < 2; i++ {
		processed, err := d.ProcessNext(context.Background())
		if err != nil {
			t.Fatalf("ProcessNext failed: %v", err)
		}
		if !processed {
			t.Fatal("expected poison row to be consumed")
		}
	}

	if got := store.count(); got != 0 {
		t.Fatalf("expected empty outbox, %d rows left", got)
	}
	if len(store.dead) != 2 {
		t.Fatalf("expected 2 dead letters, got %d", len(store.dead))
	}
	if got := pub.calls.Load(); got != 0 {
		t.Fatalf("poison rows must never reach the broker, got %d publishes", got)
	}
}

func TestProcessNext_TransientFailureRetriesThenDeadLetters(t *testing.T) {
	store := newMemStore()
	store.add("map", "{}")
	pub := &countPublisher{err: errors.New("broker down")}
	d := NewDispatcher(memDB{}, store, testRegistry(), pub, testLogger(), DispatcherConfig{MaxAttempts: 3})

	// First two failures keep the row pending and surface the error.
	for i := 0; i < 2; i++ {
		processed, err := d.ProcessNext(context.Background())
		if err == nil {
			t.Fatalf("attempt %d: expected publish error", i+1)
		}
		if processed {
			t.Fatalf("attempt %d: row must stay pending", i+1)
		}
		if got := store.count(); got != 1 {
			t.Fatalf("attempt %d: expected 1 pending row, got %d", i+1, got)
		}
	}

	// Third failure exhausts the budget.
	processed, err := d.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("final attempt should dead-letter cleanly: %v", err)
	}
	if !processed {
		t.Fatal("expected dead-lettered row to count as consumed")
	}
	if got := store.count(); got != 0 {
		t.Fatalf("expected empty outbox, %d rows left", got)
	}
	if len(store.dead) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(store.dead))
	}
	if got := pub.calls.Load(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
}

func TestProcessNext_ClassifierCanDeadLetterImmediately(t *testing.T) {
	store := newMemStore()
	store.add("map", "{}")
	pub := &countPublisher{err: errors.New("message rejected")}
	cfg := DispatcherConfig{
		MaxAttempts: 10,
		Classifier: func(*Record, error) FailureAction {
			return FailureDead
		},
	}
	d := NewDispatcher(memDB{}, store, testRegistry(), pub, testLogger(), cfg)

	processed, err := d.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext failed: %v", err)
	}
	if !processed {
		t.Fatal("expected row to be consumed")
	}
	if len(store.dead) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(store.dead))
	}
	if got := pub.calls.Load(); got != 1 {
		t.Fatalf("expected 1 publish attempt, got %d", got)
	}
}
