package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Storage is the subset of Store the dispatcher needs. Declared here so
// tests can drive the dispatch protocol against an in-memory implementation.
type Storage interface {
	ClaimNext(ctx context.Context, tx pgx.Tx) (*Record, error)
	Delete(ctx context.Context, tx pgx.Tx, id int64) error
	MarkAttempt(ctx context.Context, tx pgx.Tx, id int64) error
	DeadLetter(ctx context.Context, tx pgx.Tx, rec *Record, reason string) error
}

// TxBeginner opens independent transactions. Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type DispatcherConfig struct {
	// MaxAttempts bounds retries of a failing row before it is
	// dead-lettered. Defaults to 5.
	MaxAttempts int
	// TxTimeout bounds one claim-publish-delete unit of work, covering a
	// single broker round-trip. Defaults to 15s.
	TxTimeout time.Duration
	// Classifier may mark publish errors as non-retryable. Defaults to
	// retrying everything up to MaxAttempts.
	Classifier FailureClassifier
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.TxTimeout <= 0 {
		c.TxTimeout = 15 * time.Second
	}
	if c.Classifier == nil {
		c.Classifier = defaultClassifier
	}
	return c
}

// Dispatcher drains the outbox one row per call. Any number of dispatcher
// instances, in-process or across replicas, may run concurrently: correctness
// rests entirely on the store's skip-locked claim, not on shared state here.
type Dispatcher struct {
	db        TxBeginner
	store     Storage
	registry  *Registry
	publisher Publisher
	logger    *slog.Logger
	cfg       DispatcherConfig
}

func NewDispatcher(db TxBeginner, store Storage, registry *Registry, publisher Publisher, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		db:        db,
		store:     store,
		registry:  registry,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

// ProcessNext claims the oldest unclaimed row, forwards it to the broker and
// deletes it on confirmed send, all in one transaction. Returns false when
// the backlog is empty. A crash between broker confirm and commit leaves the
// row in place, so the same event can reach the broker twice; consumers
// deduplicate by event id.
func (d *Dispatcher) ProcessNext(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.TxTimeout)
	defer cancel()

	tx, err := d.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := d.store.ClaimNext(ctx, tx)
	if err != nil {
		return false, fmt.Errorf("claim outbox row: %w", err)
	}
	if rec == nil {
		return false, tx.Commit(ctx)
	}

	ctx, span := otel.Tracer("outbox").Start(ctx, "outbox.dispatch",
		trace.WithAttributes(
			attribute.Int64("outbox.id", rec.ID),
			attribute.String("outbox.event_type", rec.EventType),
			attribute.String("messaging.destination", rec.Exchange),
		),
	)
	defer span.End()

	env, err := d.registry.Decode(rec.EventType, rec.Payload)
	if err != nil {
		// Poison row: it will never deserialize, so retrying is pointless.
		span.RecordError(err)
		d.logger.Error("outbox row is poison, dead-lettering",
			"id", rec.ID, "event_type", rec.EventType, "err", err)
		if dlErr := d.store.DeadLetter(ctx, tx, rec, err.Error()); dlErr != nil {
			return false, fmt.Errorf("dead-letter outbox row %d: %w", rec.ID, dlErr)
		}
		return true, tx.Commit(ctx)
	}

	meta := Meta{EventID: env.EventID(), EventType: rec.EventType, Version: rec.Version}
	if err := d.publisher.Publish(ctx, rec.Exchange, rec.RoutingKey, rec.Payload, meta); err != nil {
		span.RecordError(err)
		return d.publishFailed(ctx, tx, rec, err)
	}

	if err := d.store.Delete(ctx, tx, rec.ID); err != nil {
		return false, fmt.Errorf("delete outbox row %d: %w", rec.ID, err)
	}
	return true, tx.Commit(ctx)
}

// publishFailed records the failed attempt inside the claim transaction.
// Committing the bump (instead of rolling back) is what bounds poison-style
// retries: after MaxAttempts the row leaves the main log.
func (d *Dispatcher) publishFailed(ctx context.Context, tx pgx.Tx, rec *Record, pubErr error) (bool, error) {
	attempts := rec.Attempts + 1
	if d.cfg.Classifier(rec, pubErr) == FailureDead || attempts >= d.cfg.MaxAttempts {
		d.logger.Error("outbox publish failed permanently, dead-lettering",
			"id", rec.ID, "event_type", rec.EventType, "attempts", attempts, "err", pubErr)
		if err := d.store.DeadLetter(ctx, tx, rec, pubErr.Error()); err != nil {
			return false, fmt.Errorf("dead-letter outbox row %d: %w", rec.ID, err)
		}
		return true, tx.Commit(ctx)
	}

	d.logger.Warn("outbox publish failed, row stays pending",
		"id", rec.ID, "event_type", rec.EventType, "attempts", attempts, "err", pubErr)
	if err := d.store.MarkAttempt(ctx, tx, rec.ID); err != nil {
		return false, fmt.Errorf("mark outbox attempt %d: %w", rec.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit outbox attempt %d: %w", rec.ID, err)
	}
	return false, fmt.Errorf("publish outbox row %d: %w", rec.ID, pubErr)
}
