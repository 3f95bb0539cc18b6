package messaging

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"example.com/notehub/internal/events"
)

// prefetchCount bounds how many unacknowledged deliveries the broker pushes
// to one consumer at a time.
const prefetchCount = 10

// Handler processes one decoded event. A nil return acknowledges the
// delivery; an error rejects it without requeue.
type Handler func(ctx context.Context, event events.Event) error

// Consumer runs a long-lived subscription on one queue and dispatches each
// delivery to its handler. Each Consumer owns its Client outright, so the
// two analytics queues never share broker state and a slow handler on one
// queue cannot block the other.
type Consumer struct {
	client  *Client
	queue   string
	handler Handler
	tag     string
}

func NewConsumer(client *Client, queue string, handler Handler) *Consumer {
	return &Consumer{
		client:  client,
		queue:   queue,
		handler: handler,
		tag:     fmt.Sprintf("%s-%s", queue, uuid.NewString()[:8]),
	}
}

// Run blocks consuming deliveries until the context is cancelled or the
// subscription dies. Deliveries are acknowledged manually: a decode failure
// or handler error rejects the single delivery without requeue and the loop
// moves on to the next one, so a poison message never wedges the queue.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.client.channel()
	if err != nil {
		return err
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		c.client.invalidate()
		return errors.Wrapf(ErrBrokerUnavailable, "setting QoS on %s: %v", c.queue, err)
	}

	deliveries, err := ch.Consume(
		c.queue,
		c.tag,
		false, // manual acks
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		c.client.invalidate()
		return errors.Wrapf(ErrBrokerUnavailable, "consuming from %s: %v", c.queue, err)
	}

	log.Info().Str("queue", c.queue).Msg("Started consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				c.client.invalidate()
				return errors.Wrapf(ErrBrokerUnavailable, "delivery stream for %s closed", c.queue)
			}
			c.dispatch(ctx, d)
		}
	}
}

// dispatch applies the acknowledgment policy for one delivery. A handler
// failure caused by shutdown cancellation leaves the delivery unacknowledged
// instead of rejecting it: the event was not applied, and closing the
// connection makes the broker requeue it for redelivery.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	event, err := events.Decode(d.Body)
	if err != nil {
		log.Error().Err(err).Str("queue", c.queue).Msg("Dropping malformed delivery")
		if err := d.Nack(false, false); err != nil {
			log.Error().Err(err).Str("queue", c.queue).Msg("Failed to reject delivery")
		}
		return
	}

	if err := c.handler(ctx, event); err != nil {
		if ctx.Err() != nil {
			log.Warn().
				Str("queue", c.queue).
				Str("event_type", event.Kind()).
				Msg("Shutting down, leaving delivery unacknowledged")
			return
		}
		log.Error().
			Err(err).
			Str("queue", c.queue).
			Str("event_type", event.Kind()).
			Uint("user_id", event.Subject()).
			Msg("Handler failed, dropping delivery")
		if err := d.Nack(false, false); err != nil {
			log.Error().Err(err).Str("queue", c.queue).Msg("Failed to reject delivery")
		}
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error().Err(err).Str("queue", c.queue).Msg("Failed to acknowledge delivery")
	}
}

// Close tears down the consumer's connection. The broker then requeues any
// in-flight unacknowledged deliveries for eventual redelivery.
func (c *Consumer) Close() error {
	return c.client.Close()
}
