package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"agri-mesh-go/internal/config"
	"agri-mesh-go/internal/constants"
	"agri-mesh-go/internal/tracing"
)

// Message is one delivery as seen by downstream handlers.
type Message struct {
	MessageID   string
	RoutingKey  string
	ContentType string
	Body        []byte
}

// Handler processes consumed messages. A returned error triggers a negative
// acknowledgment: requeue on the first failure, dead-letter once the broker
// has already redelivered the message.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// Deduper suppresses reprocessing of already handled message ids. Marking
// happens after successful handling, so a crash in between reprocesses the
// message (at-least-once); the guard only trims the common duplicate case.
type Deduper interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
}

// Consumer owns one broker connection, declares the logistics topology and
// processes deliveries one at a time. A supervising loop survives broker
// outages: on any failure it closes everything, waits a fixed backoff and
// reconnects, forever, until the context is cancelled.
type Consumer struct {
	cfg     *config.RabbitMQConfig
	handler Handler
	dedup   Deduper // nil disables deduplication
	logger  zerolog.Logger
	backoff time.Duration
	tracer  trace.Tracer
}

// NewConsumer creates a consumer. dedup may be nil.
func NewConsumer(cfg *config.RabbitMQConfig, handler Handler, dedup Deduper, logger zerolog.Logger) *Consumer {
	return &Consumer{
		cfg:     cfg,
		handler: handler,
		dedup:   dedup,
		logger:  logger,
		backoff: config.GetDuration(cfg.ReconnectBackoff, constants.DefaultReconnectBackoff),
		tracer:  otel.Tracer("logistics-consumer"),
	}
}

// Run blocks until ctx is cancelled, supervising the consume loop.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := c.consumeUntilError(ctx)
		if err == nil || ctx.Err() != nil {
			c.logger.Info().Msg("consumer stopped")
			return nil
		}

		c.logger.Error().Err(err).Dur("backoff", c.backoff).Msg("consumer crashed, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.backoff):
		}
	}
}

// consumeUntilError dials, sets up topology and processes deliveries until
// the connection drops or ctx is cancelled. Returns nil only on cancellation.
func (c *Consumer) consumeUntilError(ctx context.Context) error {
	props := amqp.NewConnectionProperties()
	if c.cfg.ConsumerName != "" {
		props.SetClientConnectionName(c.cfg.ConsumerName)
	}

	conn, err := amqp.DialConfig(c.cfg.AMQPURL(), amqp.Config{Properties: props})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer safeClose(conn, nil)

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer safeClose(nil, ch)

	if err := c.declareTopology(ch); err != nil {
		return err
	}

	// Prefetch bounds in-flight unacknowledged deliveries; the broker stops
	// pushing once the limit is reached until outstanding ones are settled.
	if err := ch.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(
		c.cfg.LogisticsQueue, // queue
		"",                   // consumer tag, server-generated
		false,                // auto-ack
		false,                // exclusive
		false,                // no-local
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info().
		Str("exchange", c.cfg.EventsExchange).
		Str("queue", c.cfg.LogisticsQueue).
		Str("binding_key", c.cfg.LogisticsBindingKey).
		Int("prefetch", c.cfg.PrefetchCount).
		Msg("consumer started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-connClosed:
			if amqpErr == nil {
				return errors.New("connection closed")
			}
			return fmt.Errorf("connection closed: %w", amqpErr)
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handleDelivery(ctx, delivery)
		}
	}
}

// declareTopology declares the exchanges, queues and bindings this consumer
// relies on. All declares are idempotent.
func (c *Consumer) declareTopology(ch *amqp.Channel) error {
	// Events exchange, shared with the procurement publisher.
	err := ch.ExchangeDeclare(
		c.cfg.EventsExchange, // name
		amqp.ExchangeTopic,   // type
		true,                 // durable
		false,                // auto-delete
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", c.cfg.EventsExchange, err)
	}

	// Dead-letter exchange and queue: deliveries rejected without requeue
	// land here instead of looping through the work queue forever.
	err = ch.ExchangeDeclare(
		c.cfg.DeadLetterExchange,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange %q: %w", c.cfg.DeadLetterExchange, err)
	}

	_, err = ch.QueueDeclare(
		c.cfg.LogisticsDeadLetterQueue, // name
		true,                           // durable
		false,                          // auto-delete
		false,                          // exclusive
		false,                          // no-wait
		nil,                            // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare dead-letter queue %q: %w", c.cfg.LogisticsDeadLetterQueue, err)
	}

	if err := ch.QueueBind(c.cfg.LogisticsDeadLetterQueue, "#", c.cfg.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.cfg.LogisticsQueue, // name
		true,                 // durable
		false,                // auto-delete
		false,                // exclusive
		false,                // no-wait
		amqp.Table{
			"x-dead-letter-exchange": c.cfg.DeadLetterExchange,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", c.cfg.LogisticsQueue, err)
	}

	if err := ch.QueueBind(c.cfg.LogisticsQueue, c.cfg.LogisticsBindingKey, c.cfg.EventsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %q: %w", c.cfg.LogisticsQueue, err)
	}

	return nil
}

// handleDelivery settles exactly one acknowledgment per delivery: ack on
// success or duplicate, nack otherwise. Requeue is enabled for a first
// failure and disabled once the broker has already redelivered, which routes
// the message to the dead-letter queue.
func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	ctx, span := c.tracer.Start(ctx, "consumer.HandleDelivery",
		trace.WithAttributes(
			attribute.String("messaging.message.id", delivery.MessageId),
			attribute.String("messaging.rabbitmq.routing_key", delivery.RoutingKey),
			attribute.Bool("messaging.redelivered", delivery.Redelivered),
		),
	)
	defer span.End()

	if c.dedup != nil && delivery.MessageId != "" {
		seen, err := c.dedup.Seen(ctx, delivery.MessageId)
		if err != nil {
			// The guard is best-effort; a broken Redis must not stall consumption.
			c.logger.Warn().Err(err).Str("message_id", delivery.MessageId).Msg("dedup lookup failed, processing anyway")
			tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		} else if seen {
			c.logger.Debug().Str("message_id", delivery.MessageId).Msg("duplicate delivery, acknowledging without processing")
			c.ack(delivery)
			return
		}
	}

	msg := Message{
		MessageID:   delivery.MessageId,
		RoutingKey:  delivery.RoutingKey,
		ContentType: delivery.ContentType,
		Body:        delivery.Body,
	}

	if err := c.handler.Handle(ctx, msg); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)

		requeue := !delivery.Redelivered
		c.logger.Error().Err(err).
			Str("message_id", delivery.MessageId).
			Str("routing_key", delivery.RoutingKey).
			Bool("requeue", requeue).
			Msg("failed to process delivery")

		if nackErr := delivery.Nack(false, requeue); nackErr != nil {
			// The broker will redeliver on connection-loss semantics.
			c.logger.Error().Err(nackErr).Str("message_id", delivery.MessageId).Msg("failed to nack delivery")
		}
		return
	}

	if c.dedup != nil && delivery.MessageId != "" {
		if err := c.dedup.MarkProcessed(ctx, delivery.MessageId); err != nil {
			c.logger.Warn().Err(err).Str("message_id", delivery.MessageId).Msg("failed to record processed message id")
		}
	}

	c.ack(delivery)
}

func (c *Consumer) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		c.logger.Error().Err(err).Str("message_id", delivery.MessageId).Msg("failed to ack delivery")
	}
}

// safeClose closes channel then connection, swallowing errors; there is
// nothing useful to do with a close failure during teardown.
func safeClose(conn *amqp.Connection, ch *amqp.Channel) {
	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}
