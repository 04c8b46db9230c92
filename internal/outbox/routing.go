package outbox

import (
	"errors"
	"fmt"

	"agri-mesh-go/internal/domain"
)

// ErrUnmappedEventType is returned when an event type has no routing key.
// The relay dead-letters such records immediately: retrying cannot help, and
// silently routing them under a fallback key would hide the bug.
var ErrUnmappedEventType = errors.New("no routing key mapped for event type")

// routingKeys maps the closed set of event kinds to their broker routing
// keys. Keys follow the <domain>.<subject>.<action> hierarchy consumers bind
// wildcard patterns against.
var routingKeys = map[string]string{
	domain.EventTypeRfqCreated: "procurement.rfq.created",
	domain.EventTypeRfqClosed:  "procurement.rfq.closed",
}

// RoutingKeyFor resolves the routing key for an outbox record's type tag.
func RoutingKeyFor(eventType string) (string, error) {
	key, ok := routingKeys[eventType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnmappedEventType, eventType)
	}
	return key, nil
}
