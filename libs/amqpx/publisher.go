package amqpx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/petshophq/petshop-backend/libs/outbox"
)

var (
	ErrPublishNacked  = errors.New("amqpx: message nacked by broker")
	ErrConfirmTimeout = errors.New("amqpx: publish confirmation timed out")
)

const confirmTimeout = 5 * time.Second

// Publisher sends persistent messages on a confirm-mode channel and waits
// for the broker ack before returning: a nil return means the broker has
// the message, which is what lets the dispatcher delete the outbox row.
// Publishes are serialized, and each wait is keyed on the delivery tag of
// its own publish, so a confirmation left behind by a timed-out wait can
// never be mistaken for the ack of a later message.
type Publisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 16))
	return &Publisher{ch: ch, confirms: confirms}, nil
}

func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, body []byte, meta outbox.Meta) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	headers := amqp.Table{
		"event_id":   meta.EventID,
		"event_type": meta.EventType,
		"version":    int32(meta.Version),
	}
	headers = InjectTraceHeaders(ctx, headers)

	tag := p.ch.GetNextPublishSeqNo()
	err := p.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    meta.EventID,
		Type:         meta.EventType,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return err
	}

	return awaitConfirm(ctx, p.confirms, tag)
}

// awaitConfirm waits for the broker confirmation whose delivery tag matches
// the publish being confirmed. A wait that gave up (timeout, cancellation)
// leaves its confirmation buffered; the next wait discards such stale tags
// instead of treating them as the ack for its own message.
func awaitConfirm(ctx context.Context, confirms <-chan amqp.Confirmation, tag uint64) error {
	timeout := time.NewTimer(confirmTimeout)
	defer timeout.Stop()

	for {
		select {
		case confirm, ok := <-confirms:
			if !ok {
				return errors.New("amqpx: confirm channel closed")
			}
			if confirm.DeliveryTag < tag {
				continue
			}
			if !confirm.Ack {
				return ErrPublishNacked
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return ErrConfirmTimeout
		}
	}
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
