package amqpx

import (
	"context"
	"errors"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func Dial(url string) (*amqp.Connection, error) {
	if url == "" {
		return nil, errors.New("amqp url not configured")
	}
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
	})
}

// ReadyCheck verifies the broker with a short-lived connection. The
// check's context bounds the TCP dial, so an unreachable broker fails
// within the readiness deadline instead of hanging on the default timeout.
func ReadyCheck(url string) func(context.Context) error {
	return func(ctx context.Context) error {
		if url == "" {
			return errors.New("amqp url not configured")
		}
		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Dial: func(network, addr string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		})
		if err != nil {
			return err
		}
		return conn.Close()
	}
}
