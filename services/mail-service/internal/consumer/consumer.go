package consumer

import (
	"context"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/petshophq/petshop-backend/libs/amqpx"
	"github.com/petshophq/petshop-backend/services/mail-service/internal/inbox"
)

// ErrMalformed marks messages that can never be handled: missing required
// fields, undecodable payloads. Handlers wrap it so the consumer rejects
// the delivery without requeue, routing it to the queue's dead-letter
// exchange instead of retrying forever. Every other error is treated as
// transient and requeued.
var ErrMalformed = errors.New("malformed message")

type Handler func(ctx context.Context, d amqp.Delivery) error

// Consumer reads one queue and runs deliveries through the idempotency
// guard before the handler sees them.
type Consumer struct {
	conn    *amqp.Connection
	queue   string
	guard   *inbox.Guard
	handler Handler
	logger  *slog.Logger
}

func New(conn *amqp.Connection, queue string, guard *inbox.Guard, logger *slog.Logger, handler Handler) *Consumer {
	return &Consumer{
		conn:    conn,
		queue:   queue,
		guard:   guard,
		handler: handler,
		logger:  logger,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.logger.Info("consumer started", "queue", c.queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	msgCtx := amqpx.ExtractTraceContext(ctx, d)
	spanCtx, span := otel.Tracer("amqp").Start(msgCtx, "amqp.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination", d.Exchange),
			attribute.String("messaging.rabbitmq.routing_key", d.RoutingKey),
		),
	)
	defer span.End()

	meta := amqpx.ExtractEventMeta(d)
	err := c.guard.Execute(spanCtx, meta.EventID, meta.EventType, func(ctx context.Context) error {
		return c.handler(ctx, d)
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrMalformed) {
			c.logger.Error("fatal consumer error, rejecting to dead letter",
				"queue", c.queue, "event_id", meta.EventID, "err", err)
			_ = d.Nack(false, false)
			return
		}
		c.logger.Error("handler error, requeueing",
			"queue", c.queue, "event_id", meta.EventID, "err", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}
