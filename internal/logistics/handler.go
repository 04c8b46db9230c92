package logistics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"agri-mesh-go/internal/consumer"
	"agri-mesh-go/internal/domain"
)

// Ensure ProcurementEventsHandler implements the consumer.Handler interface.
var _ consumer.Handler = (*ProcurementEventsHandler)(nil)

// ProcurementEventsHandler reacts to procurement events on the logistics
// side. Shipment planning itself is a stub behind this seam; what matters
// here is the decode/dispatch contract: a decode failure or an unknown
// schema is an error (the delivery is requeued, then dead-lettered), while
// an event kind logistics simply does not care about is acknowledged.
type ProcurementEventsHandler struct {
	logger zerolog.Logger
}

// NewProcurementEventsHandler creates a handler.
func NewProcurementEventsHandler(logger zerolog.Logger) *ProcurementEventsHandler {
	return &ProcurementEventsHandler{logger: logger}
}

// Handle implements consumer.Handler.
func (h *ProcurementEventsHandler) Handle(ctx context.Context, msg consumer.Message) error {
	env, err := domain.DecodeEnvelope(msg.Body)
	if err != nil {
		return fmt.Errorf("failed to decode message %s: %w", msg.MessageID, err)
	}

	switch env.EventType {
	case domain.EventTypeRfqCreated:
		var event domain.RfqCreated
		if err := json.Unmarshal(env.Data, &event); err != nil {
			return fmt.Errorf("failed to decode RfqCreated %s: %w", msg.MessageID, err)
		}
		return h.planShipment(ctx, event)

	case domain.EventTypeRfqClosed:
		var event domain.RfqClosed
		if err := json.Unmarshal(env.Data, &event); err != nil {
			return fmt.Errorf("failed to decode RfqClosed %s: %w", msg.MessageID, err)
		}
		return h.cancelShipmentPlanning(ctx, event)

	default:
		// The wildcard binding can deliver kinds logistics has no interest
		// in; dropping them is correct, requeueing them is not.
		h.logger.Warn().
			Str("event_type", env.EventType).
			Str("message_id", msg.MessageID).
			Str("routing_key", msg.RoutingKey).
			Msg("ignoring unhandled procurement event")
		return nil
	}
}

func (h *ProcurementEventsHandler) planShipment(ctx context.Context, event domain.RfqCreated) error {
	// TODO: replace with the real shipment planning flow once the logistics
	// module grows one; today the consumed event is only recorded.
	h.logger.Info().
		Str("rfq_id", event.RfqID.String()).
		Str("title", event.Title).
		Time("occurred_at", event.OccurredUTC).
		Msg("starting shipment planning for new RFQ")
	return nil
}

func (h *ProcurementEventsHandler) cancelShipmentPlanning(ctx context.Context, event domain.RfqClosed) error {
	h.logger.Info().
		Str("rfq_id", event.RfqID.String()).
		Time("occurred_at", event.OccurredUTC).
		Msg("cancelling shipment planning for closed RFQ")
	return nil
}
