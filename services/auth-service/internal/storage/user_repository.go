package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// User is the slice of the users table the reset flow needs:
//
//	CREATE TABLE users (
//	    id    BIGSERIAL PRIMARY KEY,
//	    name  TEXT NOT NULL,
//	    email TEXT NOT NULL UNIQUE
//	);
//
//	CREATE TABLE password_reset_tokens (
//	    token      TEXT PRIMARY KEY,
//	    user_id    BIGINT      NOT NULL REFERENCES users (id),
//	    expires_at TIMESTAMPTZ NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type User struct {
	ID    int64
	Name  string
	Email string
}

type UserRepository struct{}

func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// FindByEmail returns (nil, nil) when no user matches.
func (r *UserRepository) FindByEmail(ctx context.Context, tx pgx.Tx, email string) (*User, error) {
	var u User
	err := tx.QueryRow(ctx, `
		SELECT id, name, email FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) InsertResetToken(ctx context.Context, tx pgx.Tx, userID int64, token string, expiresAt time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO password_reset_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	return err
}
