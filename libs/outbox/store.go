package outbox

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Store persists outbox rows in Postgres. Expected schema:
//
//	CREATE TABLE outbox (
//	    id          BIGSERIAL PRIMARY KEY,
//	    exchange    TEXT        NOT NULL,
//	    routing_key TEXT        NOT NULL,
//	    event_type  TEXT        NOT NULL,
//	    payload     TEXT        NOT NULL,
//	    version     INT         NOT NULL DEFAULT 1,
//	    attempts    INT         NOT NULL DEFAULT 0,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE outbox_dead_letters (
//	    id          BIGINT PRIMARY KEY,
//	    exchange    TEXT        NOT NULL,
//	    routing_key TEXT        NOT NULL,
//	    event_type  TEXT        NOT NULL,
//	    payload     TEXT        NOT NULL,
//	    version     INT         NOT NULL,
//	    attempts    INT         NOT NULL,
//	    reason      TEXT        NOT NULL,
//	    dead_at     TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
// Every method runs on a caller-supplied transaction. The store never begins
// or commits transactions itself.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Append inserts an event inside the caller's transaction. No network I/O
// happens here; broker availability cannot fail a business commit.
func (s *Store) Append(ctx context.Context, tx pgx.Tx, evt Event) error {
	version := evt.Version
	if version <= 0 {
		version = 1
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (exchange, routing_key, event_type, payload, version)
		VALUES ($1, $2, $3, $4, $5)
	`, evt.Exchange, evt.RoutingKey, evt.EventType, string(evt.Payload), version)
	return err
}

// ClaimNext selects the oldest row not locked by another in-flight claim and
// holds a row lock until the transaction ends. Rows locked by concurrent
// claimants are skipped, never waited on. Returns (nil, nil) when the
// backlog is empty.
func (s *Store) ClaimNext(ctx context.Context, tx pgx.Tx) (*Record, error) {
	var rec Record
	var payload string
	err := tx.QueryRow(ctx, `
		SELECT id, exchange, routing_key, event_type, payload, version, attempts, created_at
		FROM outbox
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`).Scan(&rec.ID, &rec.Exchange, &rec.RoutingKey, &rec.EventType, &payload, &rec.Version, &rec.Attempts, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Payload = []byte(payload)
	return &rec, nil
}

// Delete removes a confirmed-sent row. Must run in the claiming transaction.
func (s *Store) Delete(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM outbox WHERE id = $1`, id)
	return err
}

// MarkAttempt bumps the retry counter of a row whose publish failed. The
// identity and payload columns stay immutable; only the counter moves.
func (s *Store) MarkAttempt(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id = $1`, id)
	return err
}

// DeadLetter moves a row out of the main log into outbox_dead_letters,
// taking it off the retry path for operator inspection.
func (s *Store) DeadLetter(ctx context.Context, tx pgx.Tx, rec *Record, reason string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_dead_letters (id, exchange, routing_key, event_type, payload, version, attempts, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.Exchange, rec.RoutingKey, rec.EventType, string(rec.Payload), rec.Version, rec.Attempts+1, reason)
	if err != nil {
		return err
	}
	return s.Delete(ctx, tx, rec.ID)
}
