package messaging

import (
	"sync"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// ErrBrokerUnavailable marks a failed connect, declare, or publish against
// the broker. Callers at service startup log and swallow it so the service
// keeps running in a degraded mode without event infrastructure.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// Client owns one AMQP connection/channel pair. The pair is not safe for
// concurrent use, so each publisher or consumer role holds its own Client
// and never shares it. Connecting is lazy: a Client created while the broker
// is down retries on the next channel use.
type Client struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewClient creates a client for the given AMQP URL without dialing.
func NewClient(url string) *Client {
	return &Client{url: url}
}

// channel returns a live channel, dialing the broker if needed.
func (c *Client) channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil && c.conn != nil && !c.conn.IsClosed() {
		return c.ch, nil
	}

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return nil, errors.Wrapf(ErrBrokerUnavailable, "dialing %s: %v", c.url, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(ErrBrokerUnavailable, "opening channel: %v", err)
	}

	c.conn = conn
	c.ch = ch
	log.Info().Str("url", c.url).Msg("Connected to message broker")
	return ch, nil
}

// invalidate drops the current connection so the next use redials.
func (c *Client) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.ch = nil
}

// Close tears down the connection. In-flight unacknowledged deliveries on
// this connection are returned to their queues by the broker.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.ch = nil
	if err != nil {
		return errors.Wrap(err, "closing broker connection")
	}
	log.Info().Msg("Closed broker connection")
	return nil
}
