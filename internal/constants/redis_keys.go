package constants

import "time"

const (
	// ConsumedMessageKeyPrefix is the Redis key prefix for the logistics
	// consumer's idempotency guard. The full key is the prefix followed by
	// the broker message id (the outbox record id).
	ConsumedMessageKeyPrefix = "logistics:consumed:"

	// ConsumedMessageTTL bounds how long a consumed message id is remembered.
	// Redeliveries after this window are processed again (at-least-once).
	ConsumedMessageTTL = 24 * time.Hour
)
