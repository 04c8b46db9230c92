package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"agri-mesh-go/internal/api/handler"
)

// RegisterRoutes wires the API routes onto the server.
func RegisterRoutes(h *server.Hertz, rfqHandler *handler.RfqHandler) {
	api := h.Group("/api/v1")

	api.POST("/rfqs", rfqHandler.HandleCreateRfq)
	api.GET("/rfqs/:id", rfqHandler.HandleGetRfq)
	api.POST("/rfqs/:id/close", rfqHandler.HandleCloseRfq)

	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}
