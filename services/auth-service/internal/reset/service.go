package reset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/petshophq/petshop-backend/libs/outbox"
	"github.com/petshophq/petshop-backend/services/auth-service/internal/events"
	"github.com/petshophq/petshop-backend/services/auth-service/internal/storage"
)

const tokenTTL = 30 * time.Minute

type UserStore interface {
	FindByEmail(ctx context.Context, tx pgx.Tx, email string) (*storage.User, error)
	InsertResetToken(ctx context.Context, tx pgx.Tx, userID int64, token string, expiresAt time.Time) error
}

type EventAppender interface {
	Append(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Service issues password-reset tokens. Token persistence and the reset
// event share one transaction: if either fails, neither happened, and no
// mail goes out for a token that does not exist.
type Service struct {
	db       outbox.TxBeginner
	users    UserStore
	appender EventAppender
	logger   *slog.Logger
}

func NewService(db outbox.TxBeginner, users UserStore, appender EventAppender, logger *slog.Logger) *Service {
	return &Service{db: db, users: users, appender: appender, logger: logger}
}

// RequestReset silently succeeds for unknown emails so the endpoint cannot
// be used to probe which addresses have accounts.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	user, err := s.users.FindByEmail(ctx, tx, email)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		s.logger.Info("password reset requested for unknown email")
		return tx.Commit(ctx)
	}

	token := uuid.NewString()
	if err := s.users.InsertResetToken(ctx, tx, user.ID, token, time.Now().UTC().Add(tokenTTL)); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	event := events.NewPasswordReset(user.Email, token, user.Name)
	evt, err := event.Outbox()
	if err != nil {
		return fmt.Errorf("serialize reset event: %w", err)
	}
	if err := s.appender.Append(ctx, tx, evt); err != nil {
		return fmt.Errorf("append reset event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	s.logger.Info("password reset staged", "user_id", user.ID)
	return nil
}
