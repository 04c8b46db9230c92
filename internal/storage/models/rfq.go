package models

import (
	"time"

	"github.com/google/uuid"

	"agri-mesh-go/internal/domain"
)

// Rfq is the persisted form of the request-for-quotation aggregate.
type Rfq struct {
	ID        string     `gorm:"type:char(36);primaryKey"`
	Title     string     `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	ClosedAt  *time.Time `gorm:"type:datetime(6);null"`
}

// TableName specifies the table name for the Rfq model.
func (Rfq) TableName() string {
	return "rfqs"
}

// RfqFromDomain maps an aggregate to its row form.
func RfqFromDomain(rfq *domain.Rfq) *Rfq {
	return &Rfq{
		ID:        rfq.ID.String(),
		Title:     rfq.Title,
		CreatedAt: rfq.CreatedAt,
		ClosedAt:  rfq.ClosedAt,
	}
}

// ToDomain rebuilds the aggregate from the row. Rows written by this
// application always carry valid UUIDs; a malformed id is surfaced as a
// zero-valued one rather than a panic.
func (r *Rfq) ToDomain() *domain.Rfq {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		id = uuid.Nil
	}
	return domain.RestoreRfq(id, r.Title, r.CreatedAt, r.ClosedAt)
}
