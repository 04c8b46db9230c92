package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event type tags for the procurement module. These are the closed set the
// routing map covers; adding an event means adding a tag here and a routing
// key there.
const (
	EventTypeRfqCreated = "RfqCreated"
	EventTypeRfqClosed  = "RfqClosed"
)

var (
	// ErrTitleRequired is returned when an RFQ is created with a blank title.
	ErrTitleRequired = errors.New("title is required")
	// ErrRfqAlreadyClosed is returned when closing an already closed RFQ.
	ErrRfqAlreadyClosed = errors.New("rfq is already closed")
)

// RfqCreated is raised when a request-for-quotation enters the system.
type RfqCreated struct {
	RfqID       uuid.UUID `json:"rfq_id"`
	Title       string    `json:"title"`
	OccurredUTC time.Time `json:"occurred_at"`
}

func (e RfqCreated) EventType() string     { return EventTypeRfqCreated }
func (e RfqCreated) OccurredAt() time.Time { return e.OccurredUTC }

// RfqClosed is raised when a request-for-quotation is closed.
type RfqClosed struct {
	RfqID       uuid.UUID `json:"rfq_id"`
	OccurredUTC time.Time `json:"occurred_at"`
}

func (e RfqClosed) EventType() string     { return EventTypeRfqClosed }
func (e RfqClosed) OccurredAt() time.Time { return e.OccurredUTC }

// Rfq is the request-for-quotation aggregate. State changes raise events into
// the embedded buffer; the persistence layer stages those events in the same
// transaction as the business row.
type Rfq struct {
	ID        uuid.UUID
	Title     string
	CreatedAt time.Time
	ClosedAt  *time.Time

	events EventBuffer
}

// NewRfq creates an RFQ and raises RfqCreated.
func NewRfq(title string) (*Rfq, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	now := time.Now().UTC()
	rfq := &Rfq{
		ID:        uuid.New(),
		Title:     title,
		CreatedAt: now,
	}

	rfq.events.Raise(RfqCreated{
		RfqID:       rfq.ID,
		Title:       rfq.Title,
		OccurredUTC: now,
	})

	return rfq, nil
}

// RestoreRfq rebuilds an aggregate from persisted state without raising events.
func RestoreRfq(id uuid.UUID, title string, createdAt time.Time, closedAt *time.Time) *Rfq {
	return &Rfq{
		ID:        id,
		Title:     title,
		CreatedAt: createdAt,
		ClosedAt:  closedAt,
	}
}

// Close closes the RFQ and raises RfqClosed.
func (r *Rfq) Close() error {
	if r.ClosedAt != nil {
		return ErrRfqAlreadyClosed
	}

	now := time.Now().UTC()
	r.ClosedAt = &now

	r.events.Raise(RfqClosed{
		RfqID:       r.ID,
		OccurredUTC: now,
	})

	return nil
}

// PendingEvents implements EventSource.
func (r *Rfq) PendingEvents() []Event {
	return r.events.Pending()
}

// ClearEvents implements EventSource.
func (r *Rfq) ClearEvents() {
	r.events.Clear()
}
