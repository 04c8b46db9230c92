package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"agri-mesh-go/internal/domain"
	"agri-mesh-go/internal/storage/models"
)

// ErrRfqNotFound is returned when no RFQ exists for the given id.
var ErrRfqNotFound = errors.New("rfq not found")

// RfqRepository persists the RFQ aggregate. Every state-changing operation
// runs the business write and the outbox staging in one transaction, then
// clears the aggregate's event buffer once the commit is durable.
type RfqRepository struct {
	db     *gorm.DB
	outbox *OutboxRepository
}

// NewRfqRepository creates a repository bound to db.
func NewRfqRepository(db *gorm.DB, outbox *OutboxRepository) *RfqRepository {
	return &RfqRepository{db: db, outbox: outbox}
}

// Create inserts a new RFQ together with its pending events.
func (r *RfqRepository) Create(ctx context.Context, rfq *domain.Rfq) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.RfqFromDomain(rfq)).Error; err != nil {
			return fmt.Errorf("failed to insert rfq: %w", err)
		}
		return r.outbox.Stage(tx, rfq)
	})
	if err != nil {
		return err
	}

	// Events are cleared only after the commit succeeded; on failure they
	// stay pending so a retried commit stages them again.
	rfq.ClearEvents()
	return nil
}

// GetByID loads an RFQ by id.
func (r *RfqRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Rfq, error) {
	var row models.Rfq
	err := r.db.WithContext(ctx).First(&row, "id = ?", id.String()).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRfqNotFound
		}
		return nil, fmt.Errorf("failed to load rfq %s: %w", id, err)
	}

	return row.ToDomain(), nil
}

// Close loads the RFQ, applies the close operation and persists the updated
// row atomically with the RfqClosed outbox record.
func (r *RfqRepository) Close(ctx context.Context, id uuid.UUID) (*domain.Rfq, error) {
	var rfq *domain.Rfq

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Rfq
		if err := tx.First(&row, "id = ?", id.String()).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRfqNotFound
			}
			return fmt.Errorf("failed to load rfq %s: %w", id, err)
		}

		rfq = row.ToDomain()
		if err := rfq.Close(); err != nil {
			return err
		}

		if err := tx.Save(models.RfqFromDomain(rfq)).Error; err != nil {
			return fmt.Errorf("failed to update rfq %s: %w", id, err)
		}
		return r.outbox.Stage(tx, rfq)
	})
	if err != nil {
		return nil, err
	}

	rfq.ClearEvents()
	return rfq, nil
}
