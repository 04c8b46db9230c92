package models

import "time"

// Outbox record lifecycle. A record is created PENDING inside the business
// transaction, moved to SENT by the relay on successful publish, or to FAILED
// once it has exhausted its publish attempts. SENT and FAILED are terminal;
// only PENDING records are ever selected.
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage is one staged domain event awaiting relay to the broker.
type OutboxMessage struct {
	ID           string     `gorm:"type:char(36);primaryKey"`
	OccurredAt   time.Time  `gorm:"type:datetime(6);not null;index:idx_outbox_status_occurred_at,sort:asc"`
	EventType    string     `gorm:"type:varchar(255);not null"`
	Payload      string     `gorm:"type:json;not null"` // serialized envelope, opaque to the relay
	Status       string     `gorm:"type:varchar(20);default:'PENDING';not null;index:idx_outbox_status_occurred_at"`
	Attempts     int        `gorm:"default:0"`
	ProcessedAt  *time.Time `gorm:"type:datetime(6);null"`
	ErrorMessage string     `gorm:"type:text"`
	CreatedAt    time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

// TableName specifies the table name for the OutboxMessage model.
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
