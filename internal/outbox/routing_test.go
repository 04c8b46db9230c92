package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agri-mesh-go/internal/domain"
)

func TestRoutingKeyForKnownTypes(t *testing.T) {
	tests := []struct {
		eventType string
		want      string
	}{
		{domain.EventTypeRfqCreated, "procurement.rfq.created"},
		{domain.EventTypeRfqClosed, "procurement.rfq.closed"},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			got, err := RoutingKeyFor(tt.eventType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoutingKeyForUnmappedType(t *testing.T) {
	_, err := RoutingKeyFor("SomethingNobodyMapped")
	assert.ErrorIs(t, err, ErrUnmappedEventType)
}

// Every event kind the domain can raise must have a routing key; a kind
// added without one would be dead-lettered by the relay.
func TestRoutingMapCoversAllEventTypes(t *testing.T) {
	for _, eventType := range []string{
		domain.EventTypeRfqCreated,
		domain.EventTypeRfqClosed,
	} {
		_, err := RoutingKeyFor(eventType)
		assert.NoError(t, err, "event type %s has no routing key", eventType)
	}
}
