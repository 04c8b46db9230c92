package constants

import "time"

const (
	// Broker topology shared by the procurement publisher and the logistics consumer.
	EventsExchange     = "agri.events"
	DeadLetterExchange = "agri.events.dlx"

	LogisticsQueue           = "logistics.procurement-events"
	LogisticsDeadLetterQueue = "logistics.procurement-events.dlq"
	LogisticsBindingKey      = "procurement.*.*"

	EventContentType = "application/json"

	// Outbox relay defaults, overridable via config.
	DefaultRelayPollInterval = 2 * time.Second
	DefaultRelayBatchSize    = 20
	DefaultRelayMaxAttempts  = 5

	// Consumer defaults.
	DefaultPrefetchCount    = 10
	DefaultReconnectBackoff = 3 * time.Second
)
