package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is the current envelope schema. Consumers reject payloads
// carrying a version they do not understand instead of guessing.
const SchemaVersion = 1

// ErrUnsupportedSchema is returned when a payload carries an unknown schema version.
var ErrUnsupportedSchema = errors.New("unsupported envelope schema version")

// Envelope is the serialized form of an event as stored in the outbox and
// carried on the broker. The Data field is the event body itself; everything
// else is routing and decoding metadata.
type Envelope struct {
	SchemaVersion int             `json:"schema_version"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Data          json.RawMessage `json:"data"`
}

// EncodeEnvelope serializes an event into its envelope form. A serialization
// failure here aborts the whole staging transaction upstream.
func EncodeEnvelope(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event %s: %w", event.EventType(), err)
	}

	payload, err := json.Marshal(Envelope{
		SchemaVersion: SchemaVersion,
		EventType:     event.EventType(),
		OccurredAt:    event.OccurredAt().UTC(),
		Data:          data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize envelope for %s: %w", event.EventType(), err)
	}

	return payload, nil
}

// DecodeEnvelope parses a payload back into an envelope, validating the
// schema version.
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	if env.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, env.SchemaVersion)
	}
	return &env, nil
}
