package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"agri-mesh-go/internal/config"
	"agri-mesh-go/internal/constants"
)

// EventPublisher is the broker boundary the outbox relay depends on.
type EventPublisher interface {
	// Publish sends one event to the events exchange with persistent
	// delivery. messageID is the outbox record id; consumers use it for
	// correlation and deduplication. The relay may invoke Publish more than
	// once for the same record (at-least-once).
	Publish(ctx context.Context, routingKey string, payload []byte, messageID string) error

	// Close releases the connection. Best-effort.
	Close() error
}

// Ensure RabbitMQ implements the EventPublisher interface.
var _ EventPublisher = (*RabbitMQ)(nil)

// RabbitMQ publishes events to the configured topic exchange. The connection
// and channel are established lazily on first publish and re-established
// whenever either has been closed underneath us; any failure surfaces
// synchronously to the caller, which records it on the outbox row and
// retries on a later cycle.
type RabbitMQ struct {
	cfg *config.RabbitMQConfig

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQ creates a publisher. No connection is attempted here: the
// broker being down at startup must not prevent the service (and its outbox)
// from accepting business writes.
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ config must not be nil")
	}
	if cfg.AMQPURL() == "" {
		return nil, fmt.Errorf("RabbitMQ URL must not be empty")
	}

	return &RabbitMQ{cfg: cfg}, nil
}

// ensureConnected dials and declares the exchange if the current connection
// or channel is missing or closed. Caller must hold mu.
func (r *RabbitMQ) ensureConnected() error {
	if r.conn != nil && !r.conn.IsClosed() && r.channel != nil && !r.channel.IsClosed() {
		return nil
	}

	r.closeLocked()

	conn, err := amqp.Dial(r.cfg.AMQPURL())
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	// Idempotent declare; durable topic exchange shared with consumers.
	err = ch.ExchangeDeclare(
		r.cfg.EventsExchange, // name
		amqp.ExchangeTopic,   // type
		true,                 // durable
		false,                // auto-delete
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %q: %w", r.cfg.EventsExchange, err)
	}

	r.conn = conn
	r.channel = ch
	return nil
}

// Publish implements EventPublisher.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, payload []byte, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureConnected(); err != nil {
		return err
	}

	err := r.channel.PublishWithContext(
		ctx,
		r.cfg.EventsExchange, // exchange
		routingKey,           // routing key
		false,                // mandatory
		false,                // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  constants.EventContentType,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", messageID, routingKey, err)
	}

	return nil
}

// Close releases the channel and connection. Errors during close are
// swallowed; there is nothing actionable about them on shutdown.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	return nil
}

func (r *RabbitMQ) closeLocked() {
	if r.channel != nil {
		_ = r.channel.Close()
		r.channel = nil
	}
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}
