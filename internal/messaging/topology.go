package messaging

import (
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"example.com/notehub/internal/events"
)

// binding ties one durable queue to one durable fanout exchange. Routing
// keys stay empty: fanout delivers every message to every bound queue.
type binding struct {
	exchange string
	queue    string
}

var topology = []binding{
	{exchange: events.UsersExchange, queue: events.AnalyticsUsersQueue},
	{exchange: events.NotesExchange, queue: events.AnalyticsNotesQueue},
}

// topologyDeclarer is the slice of *amqp.Channel that topology setup needs.
type topologyDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// EnsureTopology declares every exchange, queue, and binding the event
// pipeline uses. Declares are idempotent on the broker side, so every
// service calls this on startup and repeated runs neither error nor
// duplicate bindings. Returns ErrBrokerUnavailable when the broker cannot
// be reached.
func (c *Client) EnsureTopology() error {
	ch, err := c.channel()
	if err != nil {
		return err
	}

	if err := declareTopology(ch); err != nil {
		c.invalidate()
		return err
	}
	return nil
}

func declareTopology(ch topologyDeclarer) error {
	for _, b := range topology {
		if err := ch.ExchangeDeclare(
			b.exchange,
			amqp.ExchangeFanout,
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			return errors.Wrapf(ErrBrokerUnavailable, "declaring exchange %s: %v", b.exchange, err)
		}

		if _, err := ch.QueueDeclare(
			b.queue,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,
		); err != nil {
			return errors.Wrapf(ErrBrokerUnavailable, "declaring queue %s: %v", b.queue, err)
		}

		if err := ch.QueueBind(b.queue, "", b.exchange, false, nil); err != nil {
			return errors.Wrapf(ErrBrokerUnavailable, "binding %s to %s: %v", b.queue, b.exchange, err)
		}

		log.Info().
			Str("exchange", b.exchange).
			Str("queue", b.queue).
			Msg("Declared exchange and bound queue")
	}

	return nil
}
