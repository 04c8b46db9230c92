package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"

	"agri-mesh-go/internal/domain"
	"agri-mesh-go/internal/storage"
)

// RfqStore is what the HTTP surface needs from persistence.
type RfqStore interface {
	Create(ctx context.Context, rfq *domain.Rfq) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Rfq, error)
	Close(ctx context.Context, id uuid.UUID) (*domain.Rfq, error)
}

// RfqHandler serves the procurement RFQ endpoints.
type RfqHandler struct {
	store  RfqStore
	logger *log.Logger
}

// NewRfqHandler creates a handler over the given store.
func NewRfqHandler(store RfqStore) *RfqHandler {
	return &RfqHandler{
		store:  store,
		logger: log.New(os.Stdout, "[RfqHandler] ", log.LstdFlags|log.Lshortfile),
	}
}

// CreateRfqRequest is the create endpoint's body.
type CreateRfqRequest struct {
	Title string `json:"title"`
}

// RfqResponse is the wire form of an RFQ.
type RfqResponse struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	CreatedAt string  `json:"created_at"`
	ClosedAt  *string `json:"closed_at,omitempty"`
}

func toResponse(rfq *domain.Rfq) RfqResponse {
	resp := RfqResponse{
		ID:        rfq.ID.String(),
		Title:     rfq.Title,
		CreatedAt: rfq.CreatedAt.Format("2006-01-02T15:04:05.000000Z07:00"),
	}
	if rfq.ClosedAt != nil {
		closed := rfq.ClosedAt.Format("2006-01-02T15:04:05.000000Z07:00")
		resp.ClosedAt = &closed
	}
	return resp
}

// HandleCreateRfq handles POST /api/v1/rfqs.
func (h *RfqHandler) HandleCreateRfq(ctx context.Context, c *app.RequestContext) {
	var req CreateRfqRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "invalid request body"})
		return
	}

	rfq, err := domain.NewRfq(req.Title)
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
		return
	}

	if err := h.store.Create(ctx, rfq); err != nil {
		h.logger.Printf("failed to create rfq: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "failed to create rfq"})
		return
	}

	c.Response.Header.Set("Location", fmt.Sprintf("/api/v1/rfqs/%s", rfq.ID))
	c.JSON(consts.StatusCreated, toResponse(rfq))
}

// HandleGetRfq handles GET /api/v1/rfqs/:id.
func (h *RfqHandler) HandleGetRfq(ctx context.Context, c *app.RequestContext) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "invalid rfq id"})
		return
	}

	rfq, err := h.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrRfqNotFound) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "rfq not found"})
			return
		}
		h.logger.Printf("failed to load rfq %s: %v", id, err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "failed to load rfq"})
		return
	}

	c.JSON(consts.StatusOK, toResponse(rfq))
}

// HandleCloseRfq handles POST /api/v1/rfqs/:id/close.
func (h *RfqHandler) HandleCloseRfq(ctx context.Context, c *app.RequestContext) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "invalid rfq id"})
		return
	}

	rfq, err := h.store.Close(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrRfqNotFound):
			c.JSON(consts.StatusNotFound, utils.H{"error": "rfq not found"})
		case errors.Is(err, domain.ErrRfqAlreadyClosed):
			c.JSON(consts.StatusConflict, utils.H{"error": err.Error()})
		default:
			h.logger.Printf("failed to close rfq %s: %v", id, err)
			c.JSON(consts.StatusInternalServerError, utils.H{"error": "failed to close rfq"})
		}
		return
	}

	c.JSON(consts.StatusOK, toResponse(rfq))
}
