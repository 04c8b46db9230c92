package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agri-mesh-go/internal/domain"
	"agri-mesh-go/internal/storage/models"
)

// OutboxRepository stages domain events into the outbox table and hands
// pending batches to the relay. The business path only inserts; the relay
// only reads pending rows and marks them settled.
type OutboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository creates a repository bound to db.
func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Stage converts every pending event of the given sources into outbox rows
// and inserts them as part of tx. Each row gets a fresh id; occurred-at and
// the type tag come from the event. A serialization failure aborts the whole
// operation so the surrounding transaction rolls back with it: no event is
// durably recorded without its row, and no row without its business write.
//
// Stage does not clear the sources' buffers; the caller does that after the
// transaction has committed.
func (r *OutboxRepository) Stage(tx *gorm.DB, sources ...domain.EventSource) error {
	var rows []*models.OutboxMessage

	for _, source := range sources {
		for _, event := range source.PendingEvents() {
			payload, err := domain.EncodeEnvelope(event)
			if err != nil {
				return fmt.Errorf("failed to stage event: %w", err)
			}

			rows = append(rows, &models.OutboxMessage{
				ID:         uuid.New().String(),
				OccurredAt: event.OccurredAt().UTC(),
				EventType:  event.EventType(),
				Payload:    string(payload),
				Status:     models.OutboxStatusPending,
			})
		}
	}

	if len(rows) == 0 {
		return nil
	}

	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to insert outbox rows: %w", err)
	}

	return nil
}

// ClaimPending opens a transaction, locks up to limit pending rows oldest
// first and hands them to fn. Mutations fn applies to the rows are persisted
// when fn returns nil; on error the transaction rolls back and the rows stay
// untouched, to be reclaimed on a later cycle.
//
// The row locks use FOR UPDATE SKIP LOCKED, so concurrent relay instances
// never claim the same record: a row locked by one instance is invisible to
// the others until its transaction settles.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int, fn func(ctx context.Context, batch []*models.OutboxMessage) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin claim transaction: %w", tx.Error)
	}
	defer tx.Rollback() // no-op once committed

	var messages []*models.OutboxMessage
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", models.OutboxStatusPending).
		Order("occurred_at asc").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return fmt.Errorf("failed to fetch pending outbox rows: %w", err)
	}

	if len(messages) == 0 {
		return tx.Commit().Error
	}

	if err := fn(ctx, messages); err != nil {
		return err
	}

	for _, msg := range messages {
		if err := tx.Save(msg).Error; err != nil {
			// Rolling back leaves the whole batch pending; records already
			// published in this cycle will be republished (at-least-once).
			return fmt.Errorf("failed to update outbox row %s: %w", msg.ID, err)
		}
	}

	return tx.Commit().Error
}
