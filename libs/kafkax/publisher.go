package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/petshophq/petshop-backend/libs/outbox"
)

// Publisher adapts the outbox publish contract to Kafka for deployments
// that run Kafka instead of RabbitMQ. The routing key becomes the topic,
// the event id the partition key; the exchange travels as a header so
// consumers still see the logical namespace.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(SplitBrokers(brokers)...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, body []byte, meta outbox.Meta) error {
	msg := kafka.Message{
		Topic: routingKey,
		Key:   []byte(meta.EventID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "exchange", Value: []byte(exchange)},
			{Key: "event_id", Value: []byte(meta.EventID)},
			{Key: "event_type", Value: []byte(meta.EventType)},
		},
	}
	msg.Headers = InjectTraceHeaders(ctx, msg.Headers)
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
