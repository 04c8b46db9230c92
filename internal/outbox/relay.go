package outbox

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"agri-mesh-go/internal/config"
	"agri-mesh-go/internal/constants"
	"agri-mesh-go/internal/storage"
	"agri-mesh-go/internal/storage/models"
)

// Store claims batches of pending outbox records for the relay. The
// implementation holds the records locked while fn runs and persists the
// mutations fn applied when fn returns nil.
type Store interface {
	ClaimPending(ctx context.Context, limit int, fn func(ctx context.Context, batch []*models.OutboxMessage) error) error
}

// MessageRelay polls the outbox table and publishes staged events to the
// broker. Delivery is at-least-once: a crash between broker ack and the
// settling write republishes the batch on the next cycle.
type MessageRelay struct {
	store        Store
	publisher    storage.EventPublisher
	logger       *log.Logger
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	done         chan struct{}
	tracer       trace.Tracer
}

// NewMessageRelay creates a relay with the tuning from cfg.
func NewMessageRelay(store Store, publisher storage.EventPublisher, logger *log.Logger, cfg *config.OutboxConfig) *MessageRelay {
	pollInterval := constants.DefaultRelayPollInterval
	batchSize := constants.DefaultRelayBatchSize
	maxAttempts := constants.DefaultRelayMaxAttempts
	if cfg != nil {
		pollInterval = config.GetDuration(cfg.PollInterval, pollInterval)
		if cfg.BatchSize > 0 {
			batchSize = cfg.BatchSize
		}
		if cfg.MaxAttempts > 0 {
			maxAttempts = cfg.MaxAttempts
		}
	}

	return &MessageRelay{
		store:        store,
		publisher:    publisher,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
		done:         make(chan struct{}),
		tracer:       otel.Tracer("outbox-relay"),
	}
}

// Start begins the polling loop in a background goroutine.
func (r *MessageRelay) Start() {
	r.logger.Println("MessageRelay starting...")
	ticker := time.NewTicker(r.pollInterval)

	go func() {
		for {
			select {
			case <-r.done:
				ticker.Stop()
				r.logger.Println("MessageRelay stopped.")
				return
			case <-ticker.C:
				if err := r.processPendingMessages(context.Background()); err != nil {
					r.logger.Printf("Error processing pending messages: %v", err)
				}
			}
		}
	}()
}

// Stop signals the loop to exit after the current cycle.
func (r *MessageRelay) Stop() {
	r.logger.Println("MessageRelay stopping...")
	close(r.done)
}

// processPendingMessages runs one relay cycle: claim a batch, publish each
// record, settle the outcomes. Per-record publish failures never abort the
// batch; they are recorded on the row and retried on later cycles until the
// attempt budget is spent.
func (r *MessageRelay) processPendingMessages(ctx context.Context) error {
	return r.store.ClaimPending(ctx, r.batchSize, func(ctx context.Context, batch []*models.OutboxMessage) error {
		// Only batches with work get a span; empty polls stay quiet.
		ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
			trace.WithAttributes(
				attribute.Int("messaging.batch.message_count", len(batch)),
			),
		)
		defer span.End()

		r.logger.Printf("Fetched %d pending messages to process.", len(batch))

		now := time.Now().UTC()
		for _, msg := range batch {
			routingKey, err := RoutingKeyFor(msg.EventType)
			if err != nil {
				r.logger.Printf("Dead-lettering message %s: %v", msg.ID, err)
				failTerminally(msg, err)
				continue
			}

			if err := r.publisher.Publish(ctx, routingKey, []byte(msg.Payload), msg.ID); err != nil {
				r.logger.Printf("Failed to publish message %s (%s): %v. Attempts: %d", msg.ID, routingKey, err, msg.Attempts+1)
				recordFailure(msg, err, r.maxAttempts)
				continue
			}

			markSent(msg, now)
		}

		return nil
	})
}

// markSent settles a record terminally after a successful publish.
func markSent(msg *models.OutboxMessage, now time.Time) {
	msg.Status = models.OutboxStatusSent
	msg.ProcessedAt = &now
	msg.ErrorMessage = ""
}

// recordFailure notes a failed attempt. The record stays pending and is
// reselected every cycle until the attempt budget is exhausted, at which
// point it moves to FAILED and is never selected again.
func recordFailure(msg *models.OutboxMessage, err error, maxAttempts int) {
	msg.Attempts++
	msg.ErrorMessage = err.Error()
	if msg.Attempts >= maxAttempts {
		msg.Status = models.OutboxStatusFailed
	}
}

// failTerminally dead-letters a record that no amount of retrying can fix.
func failTerminally(msg *models.OutboxMessage, err error) {
	msg.Attempts++
	msg.ErrorMessage = err.Error()
	msg.Status = models.OutboxStatusFailed
}
