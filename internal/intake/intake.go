// Package intake receives raw dispatch-channel events, normalizes them into
// canonical offers and withdrawal signals, and forwards them to the
// assignment authority. It performs no deduplication: ordering and
// idempotency decisions belong to the authority, since delivery order cannot
// be assumed here.
package intake

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"courier/internal/domain"
	"courier/internal/logging"
)

// Sink is the authority-facing side of intake.
type Sink interface {
	HandleOfferCreated(offer domain.Offer)
	HandleWithdrawal(w domain.Withdrawal)
	HandleNotice(n domain.Notice)
}

// Consumer subscribes to the worker's dispatch channel.
type Consumer struct {
	ch       *amqp.Channel
	exchange string
	workerID string
	sink     Sink
	log      logging.Logger
}

// NewConsumer creates an intake consumer for the given worker.
func NewConsumer(ch *amqp.Channel, exchange, workerID string, sink Sink, log logging.Logger) *Consumer {
	return &Consumer{ch: ch, exchange: exchange, workerID: workerID, sink: sink, log: log}
}

// Run declares and consumes the per-worker queue until the context is
// cancelled. Deliveries are acked whether or not they parse: the channel is
// at-least-once and a malformed payload is dropped with a log entry, never
// requeued and never surfaced to the worker.
func (c *Consumer) Run(ctx context.Context) error {
	queue := fmt.Sprintf("dispatch.agent.%s", c.workerID)
	routingKey := fmt.Sprintf("dispatch.%s", c.workerID)

	if err := c.ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.exchange, err)
	}
	if _, err := c.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := c.ch.QueueBind(queue, routingKey, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	if err := c.ch.Qos(1, 0, false); err != nil {
		return err
	}

	closeCh := c.ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if e := <-closeCh; e != nil {
			c.log.Error("dispatch channel closed",
				logging.Int("code", e.Code), logging.String("reason", e.Reason))
		}
	}()

	consumerTag := "agent-" + c.workerID
	msgs, err := c.ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.log.Info("consuming dispatch events",
		logging.String("queue", queue), logging.String("routing_key", routingKey))

	for {
		select {
		case <-ctx.Done():
			_ = c.ch.Cancel(consumerTag, false)
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(d)
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(d amqp.Delivery) {
	event := d.Type
	if event == "" {
		// Fallback for emitters that put the name in the body.
		var envelope struct {
			Event string `json:"event"`
		}
		_ = json.Unmarshal(d.Body, &envelope)
		event = envelope.Event
	}

	n, err := normalize(event, d.Body)
	if err != nil {
		c.log.Warn("dropping malformed dispatch event",
			logging.String("event", event), logging.Error(err))
		return
	}

	switch {
	case n.Offer != nil:
		c.sink.HandleOfferCreated(*n.Offer)
	case n.Withdrawal != nil:
		c.sink.HandleWithdrawal(*n.Withdrawal)
	case n.Notice != nil:
		c.sink.HandleNotice(*n.Notice)
	}
}
