package outbox

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agri-mesh-go/internal/config"
	"agri-mesh-go/internal/domain"
	"agri-mesh-go/internal/storage/models"
)

// fakeStore mimics the claim contract in memory: pending rows oldest first,
// capped at the limit, mutations persisted only when fn returns nil.
type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]*models.OutboxMessage
	claims    int
	lastSeen  int   // size of the last non-empty claimed batch
	settleErr error // makes the persist step fail, like a commit error
}

func newFakeStore(rows ...*models.OutboxMessage) *fakeStore {
	s := &fakeStore{rows: make(map[string]*models.OutboxMessage)}
	for _, row := range rows {
		s.rows[row.ID] = row
	}
	return s
}

func (s *fakeStore) ClaimPending(ctx context.Context, limit int, fn func(ctx context.Context, batch []*models.OutboxMessage) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++

	var pending []*models.OutboxMessage
	for _, row := range s.rows {
		if row.Status == models.OutboxStatusPending {
			pending = append(pending, row)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].OccurredAt.Before(pending[j].OccurredAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	if len(pending) == 0 {
		return nil
	}
	s.lastSeen = len(pending)

	// Hand copies to fn; persist mutations only on success, like the
	// transactional implementation does.
	batch := make([]*models.OutboxMessage, len(pending))
	for i, row := range pending {
		copied := *row
		batch[i] = &copied
	}

	if err := fn(ctx, batch); err != nil {
		return err
	}

	if s.settleErr != nil {
		return s.settleErr
	}

	for _, row := range batch {
		saved := *row
		s.rows[row.ID] = &saved
	}
	return nil
}

func (s *fakeStore) row(id string) models.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

type publishCall struct {
	routingKey string
	payload    string
	messageID  string
}

// fakePublisher records calls and fails for message ids listed in failures.
type fakePublisher struct {
	mu       sync.Mutex
	calls    []publishCall
	failures map[string]error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{failures: make(map[string]error)}
}

func (p *fakePublisher) Publish(ctx context.Context, routingKey string, payload []byte, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{routingKey: routingKey, payload: string(payload), messageID: messageID})
	if err, ok := p.failures[messageID]; ok {
		return err
	}
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) publishedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, len(p.calls))
	for i, c := range p.calls {
		ids[i] = c.messageID
	}
	return ids
}

func pendingMessage(eventType string, occurredAt time.Time) *models.OutboxMessage {
	return &models.OutboxMessage{
		ID:         uuid.New().String(),
		OccurredAt: occurredAt,
		EventType:  eventType,
		Payload:    `{"schema_version":1,"event_type":"` + eventType + `","data":{}}`,
		Status:     models.OutboxStatusPending,
	}
}

func testRelay(store Store, publisher *fakePublisher, cfg *config.OutboxConfig) *MessageRelay {
	return NewMessageRelay(store, publisher, log.New(io.Discard, "", 0), cfg)
}

func TestProcessCycleMarksPublishedRecordsSent(t *testing.T) {
	msg := pendingMessage(domain.EventTypeRfqCreated, time.Now().UTC())
	store := newFakeStore(msg)
	publisher := newFakePublisher()

	relay := testRelay(store, publisher, nil)
	require.NoError(t, relay.processPendingMessages(context.Background()))

	saved := store.row(msg.ID)
	assert.Equal(t, models.OutboxStatusSent, saved.Status)
	require.NotNil(t, saved.ProcessedAt)
	assert.Empty(t, saved.ErrorMessage)

	require.Len(t, publisher.calls, 1)
	assert.Equal(t, "procurement.rfq.created", publisher.calls[0].routingKey)
	assert.Equal(t, msg.ID, publisher.calls[0].messageID)
	assert.Equal(t, msg.Payload, publisher.calls[0].payload, "payload must be carried verbatim")
}

func TestProcessCycleRecordsFailureAndRetries(t *testing.T) {
	msg := pendingMessage(domain.EventTypeRfqCreated, time.Now().UTC())
	store := newFakeStore(msg)
	publisher := newFakePublisher()
	publisher.failures[msg.ID] = errors.New("broker unreachable")

	relay := testRelay(store, publisher, nil)
	require.NoError(t, relay.processPendingMessages(context.Background()))

	saved := store.row(msg.ID)
	assert.Equal(t, models.OutboxStatusPending, saved.Status, "failed record stays eligible")
	assert.Nil(t, saved.ProcessedAt)
	assert.Equal(t, "broker unreachable", saved.ErrorMessage)
	assert.Equal(t, 1, saved.Attempts)

	// Broker recovers: the next cycle republishes the same record.
	delete(publisher.failures, msg.ID)
	require.NoError(t, relay.processPendingMessages(context.Background()))

	saved = store.row(msg.ID)
	assert.Equal(t, models.OutboxStatusSent, saved.Status)
	require.NotNil(t, saved.ProcessedAt)
	assert.Empty(t, saved.ErrorMessage, "error is cleared on success")
	assert.Equal(t, []string{msg.ID, msg.ID}, publisher.publishedIDs())
}

func TestProcessCycleDeadLettersAfterMaxAttempts(t *testing.T) {
	msg := pendingMessage(domain.EventTypeRfqCreated, time.Now().UTC())
	store := newFakeStore(msg)
	publisher := newFakePublisher()
	publisher.failures[msg.ID] = errors.New("payload rejected")

	relay := testRelay(store, publisher, &config.OutboxConfig{MaxAttempts: 3})

	for i := 0; i < 3; i++ {
		require.NoError(t, relay.processPendingMessages(context.Background()))
	}

	saved := store.row(msg.ID)
	assert.Equal(t, models.OutboxStatusFailed, saved.Status)
	assert.Equal(t, 3, saved.Attempts)
	assert.Nil(t, saved.ProcessedAt)

	// FAILED is terminal: further cycles must not republish it.
	require.NoError(t, relay.processPendingMessages(context.Background()))
	assert.Len(t, publisher.calls, 3)
}

func TestProcessCycleDeadLettersUnmappedEventType(t *testing.T) {
	msg := pendingMessage("TypeNobodyMapped", time.Now().UTC())
	store := newFakeStore(msg)
	publisher := newFakePublisher()

	relay := testRelay(store, publisher, nil)
	require.NoError(t, relay.processPendingMessages(context.Background()))

	saved := store.row(msg.ID)
	assert.Equal(t, models.OutboxStatusFailed, saved.Status)
	assert.Contains(t, saved.ErrorMessage, "no routing key")
	assert.Empty(t, publisher.calls, "unroutable records are never published")
}

func TestProcessCycleSettleFailureLeavesBatchUnmarked(t *testing.T) {
	msg := pendingMessage(domain.EventTypeRfqCreated, time.Now().UTC())
	store := newFakeStore(msg)
	store.settleErr = errors.New("commit failed")
	publisher := newFakePublisher()

	relay := testRelay(store, publisher, nil)
	err := relay.processPendingMessages(context.Background())
	require.ErrorContains(t, err, "commit failed")

	// The publish went out but none of the outcome writes stuck: the record
	// is still pending with no attempts recorded.
	require.Len(t, publisher.calls, 1)
	saved := store.row(msg.ID)
	assert.Equal(t, models.OutboxStatusPending, saved.Status)
	assert.Zero(t, saved.Attempts)
	assert.Nil(t, saved.ProcessedAt)
	assert.Empty(t, saved.ErrorMessage)

	// Once the store recovers the record is republished (at-least-once).
	store.settleErr = nil
	require.NoError(t, relay.processPendingMessages(context.Background()))
	assert.Equal(t, []string{msg.ID, msg.ID}, publisher.publishedIDs())
	assert.Equal(t, models.OutboxStatusSent, store.row(msg.ID).Status)
}

func TestProcessCyclePerRecordFailureDoesNotAbortBatch(t *testing.T) {
	base := time.Now().UTC()
	first := pendingMessage(domain.EventTypeRfqCreated, base)
	second := pendingMessage(domain.EventTypeRfqClosed, base.Add(time.Second))
	store := newFakeStore(first, second)
	publisher := newFakePublisher()
	publisher.failures[first.ID] = errors.New("broker hiccup")

	relay := testRelay(store, publisher, nil)
	require.NoError(t, relay.processPendingMessages(context.Background()))

	assert.Equal(t, models.OutboxStatusPending, store.row(first.ID).Status)
	assert.Equal(t, models.OutboxStatusSent, store.row(second.ID).Status)
}

func TestProcessCycleRespectsBatchSizeAndOrdering(t *testing.T) {
	base := time.Now().UTC()
	var msgs []*models.OutboxMessage
	for i := 0; i < 5; i++ {
		// Insert newest first so the store must sort by occurred-at.
		msgs = append(msgs, pendingMessage(domain.EventTypeRfqCreated, base.Add(time.Duration(4-i)*time.Second)))
	}
	store := newFakeStore(msgs...)
	publisher := newFakePublisher()

	relay := testRelay(store, publisher, &config.OutboxConfig{BatchSize: 2})
	require.NoError(t, relay.processPendingMessages(context.Background()))

	assert.Equal(t, 2, store.lastSeen, "cycle must not exceed the batch size")
	require.Len(t, publisher.calls, 2)
	// Oldest two first: the last two appended have occurred-at base and base+1s.
	assert.Equal(t, []string{msgs[4].ID, msgs[3].ID}, publisher.publishedIDs())
}

func TestStartStopLoop(t *testing.T) {
	msg := pendingMessage(domain.EventTypeRfqCreated, time.Now().UTC())
	store := newFakeStore(msg)
	publisher := newFakePublisher()

	relay := testRelay(store, publisher, &config.OutboxConfig{PollInterval: "10ms"})
	relay.Start()

	require.Eventually(t, func() bool {
		return store.row(msg.ID).Status == models.OutboxStatusSent
	}, 2*time.Second, 10*time.Millisecond)

	relay.Stop()
}
