package amqpx

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueBinding declares one durable queue bound to a topic exchange,
// optionally with a dead-letter exchange attached.
type QueueBinding struct {
	Exchange      string
	Queue         string
	RoutingKey    string
	DLXExchange   string
	DLXRoutingKey string
}

// DeclareExchange declares a durable topic exchange.
func DeclareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(name, "topic", true, false, false, false, nil)
}

// DeclareQueue declares the binding's exchange, queue and routing, plus the
// dead-letter exchange/queue pair when configured. Declaration is idempotent;
// every service declares what it uses on startup.
func DeclareQueue(ch *amqp.Channel, b QueueBinding) error {
	if err := DeclareExchange(ch, b.Exchange); err != nil {
		return err
	}

	var args amqp.Table
	if b.DLXExchange != "" {
		if err := DeclareExchange(ch, b.DLXExchange); err != nil {
			return err
		}
		dlq := b.Queue + ".dlq"
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.QueueBind(dlq, b.DLXRoutingKey, b.DLXExchange, false, nil); err != nil {
			return err
		}
		args = amqp.Table{
			"x-dead-letter-exchange":    b.DLXExchange,
			"x-dead-letter-routing-key": b.DLXRoutingKey,
		}
	}

	if _, err := ch.QueueDeclare(b.Queue, true, false, false, false, args); err != nil {
		return err
	}
	return ch.QueueBind(b.Queue, b.RoutingKey, b.Exchange, false, nil)
}
