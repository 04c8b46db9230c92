package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agri-mesh-go/internal/api/handler"
	"agri-mesh-go/internal/api/router"
	"agri-mesh-go/internal/domain"
	"agri-mesh-go/internal/storage"
)

type fakeRfqStore struct {
	rfqs      map[uuid.UUID]*domain.Rfq
	createErr error
}

func newFakeRfqStore() *fakeRfqStore {
	return &fakeRfqStore{rfqs: make(map[uuid.UUID]*domain.Rfq)}
}

func (s *fakeRfqStore) Create(ctx context.Context, rfq *domain.Rfq) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.rfqs[rfq.ID] = rfq
	rfq.ClearEvents()
	return nil
}

func (s *fakeRfqStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Rfq, error) {
	rfq, ok := s.rfqs[id]
	if !ok {
		return nil, storage.ErrRfqNotFound
	}
	return rfq, nil
}

func (s *fakeRfqStore) Close(ctx context.Context, id uuid.UUID) (*domain.Rfq, error) {
	rfq, ok := s.rfqs[id]
	if !ok {
		return nil, storage.ErrRfqNotFound
	}
	if err := rfq.Close(); err != nil {
		return nil, err
	}
	rfq.ClearEvents()
	return rfq, nil
}

func newTestEngine(store handler.RfqStore) *server.Hertz {
	h := server.Default()
	router.RegisterRoutes(h, handler.NewRfqHandler(store))
	return h
}

func performJSON(t *testing.T, h *server.Hertz, method, path string, payload any) *ut.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	return ut.PerformRequest(h.Engine, method, path,
		&ut.Body{Body: &body, Len: body.Len()},
		ut.Header{Key: "Content-Type", Value: "application/json"},
	)
}

func TestCreateRfqReturnsCreated(t *testing.T) {
	store := newFakeRfqStore()
	h := newTestEngine(store)

	resp := performJSON(t, h, "POST", "/api/v1/rfqs", map[string]string{"title": "Winter wheat 500t"})
	require.Equal(t, http.StatusCreated, resp.Code)

	var body handler.RfqResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "Winter wheat 500t", body.Title)
	assert.NotEmpty(t, body.ID)
	assert.Nil(t, body.ClosedAt)

	id, err := uuid.Parse(body.ID)
	require.NoError(t, err)
	assert.Contains(t, store.rfqs, id)
	assert.Equal(t, "/api/v1/rfqs/"+body.ID, string(resp.Header().Peek("Location")))
}

func TestCreateRfqRejectsBlankTitle(t *testing.T) {
	h := newTestEngine(newFakeRfqStore())

	resp := performJSON(t, h, "POST", "/api/v1/rfqs", map[string]string{"title": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetRfqReturnsStoredRfq(t *testing.T) {
	store := newFakeRfqStore()
	rfq := domain.RestoreRfq(uuid.New(), "Soybean lot 12", time.Now().UTC(), nil)
	store.rfqs[rfq.ID] = rfq
	h := newTestEngine(store)

	resp := performJSON(t, h, "GET", "/api/v1/rfqs/"+rfq.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body handler.RfqResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, rfq.ID.String(), body.ID)
	assert.Equal(t, "Soybean lot 12", body.Title)
}

func TestGetRfqUnknownIDReturnsNotFound(t *testing.T) {
	h := newTestEngine(newFakeRfqStore())

	resp := performJSON(t, h, "GET", "/api/v1/rfqs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetRfqMalformedIDReturnsBadRequest(t *testing.T) {
	h := newTestEngine(newFakeRfqStore())

	resp := performJSON(t, h, "GET", "/api/v1/rfqs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCloseRfqReturnsClosedRfq(t *testing.T) {
	store := newFakeRfqStore()
	rfq := domain.RestoreRfq(uuid.New(), "Maize spot buy", time.Now().UTC(), nil)
	store.rfqs[rfq.ID] = rfq
	h := newTestEngine(store)

	resp := performJSON(t, h, "POST", "/api/v1/rfqs/"+rfq.ID.String()+"/close", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body handler.RfqResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.NotNil(t, body.ClosedAt)
}

func TestCloseRfqTwiceReturnsConflict(t *testing.T) {
	store := newFakeRfqStore()
	rfq := domain.RestoreRfq(uuid.New(), "Barley forward", time.Now().UTC(), nil)
	store.rfqs[rfq.ID] = rfq
	h := newTestEngine(store)

	first := performJSON(t, h, "POST", "/api/v1/rfqs/"+rfq.ID.String()+"/close", nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := performJSON(t, h, "POST", "/api/v1/rfqs/"+rfq.ID.String()+"/close", nil)
	assert.Equal(t, http.StatusConflict, second.Code)
}
