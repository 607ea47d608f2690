package events

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/petshophq/petshop-backend/libs/outbox"
)

const (
	ExchangeAuth            = "auth.v1.events"
	RoutingKeyPasswordReset = "auth.password.reset"
	TypePasswordReset       = "auth.password.reset.v1"
)

// PasswordReset asks the mail service to deliver a reset token.
type PasswordReset struct {
	Version  int    `json:"version"`
	ID       string `json:"event_id"`
	Email    string `json:"email"`
	Token    string `json:"token"`
	UserName string `json:"user_name"`
}

func NewPasswordReset(email, token, userName string) PasswordReset {
	return PasswordReset{
		Version:  1,
		ID:       uuid.NewString(),
		Email:    email,
		Token:    token,
		UserName: userName,
	}
}

func (e PasswordReset) EventID() string   { return e.ID }
func (e PasswordReset) EventVersion() int { return e.Version }

func (e PasswordReset) Outbox() (outbox.Event, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		Exchange:   ExchangeAuth,
		RoutingKey: RoutingKeyPasswordReset,
		EventType:  TypePasswordReset,
		Payload:    payload,
		Version:    e.Version,
	}, nil
}

func Register(reg *outbox.Registry) {
	reg.Register(TypePasswordReset, func(payload []byte) (outbox.Envelope, error) {
		var e PasswordReset
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	})
}
