package app

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"courier/internal/config"
)

// NewAMQP dials the dispatch broker and opens the consume channel.
func NewAMQP(cfg config.AMQPConfig) (*amqp.Connection, *amqp.Channel, error) {
	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}

	return conn, ch, nil
}
