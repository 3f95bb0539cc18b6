package messaging

import (
	"context"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"example.com/notehub/internal/events"
)

// Publisher is the mutation-side half of the event pipeline. Upstream
// services call Publish after their own commit and must not depend on it
// succeeding: a publish failure never rolls back the committed mutation.
type Publisher interface {
	Publish(ctx context.Context, exchange string, event events.Event) error
}

// Publish serializes the event and sends it to the exchange as a persistent
// message, so a message accepted by the broker survives a broker restart.
// There are no internal retries; failures surface as ErrBrokerUnavailable
// and the next call redials.
func (c *Client) Publish(ctx context.Context, exchange string, event events.Event) error {
	body, err := events.Encode(event)
	if err != nil {
		return err
	}

	ch, err := c.channel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx,
		exchange,
		"",    // routing key unused on fanout exchanges
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  events.ContentType,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt(),
			Body:         body,
		},
	)
	if err != nil {
		c.invalidate()
		return errors.Wrapf(ErrBrokerUnavailable, "publishing %s to %s: %v", event.Kind(), exchange, err)
	}

	log.Info().
		Str("exchange", exchange).
		Str("event_type", event.Kind()).
		Uint("user_id", event.Subject()).
		Msg("Published event")
	return nil
}
