package routes

import (
	"github.com/gin-gonic/gin"

	"chainless-core/internal/handler"
)

func RegisterTransferRoutes(rg *gin.RouterGroup, h *handler.TransferHandler, auth gin.HandlerFunc) {
	g := rg.Group("/transfers", auth)
	{
		g.POST("", h.Create)
		g.GET("", h.List)
		g.GET("/:order_id", h.Get)
		g.POST("/:order_id/signatures", h.UploadSignature)
		g.POST("/:order_id/react", h.React)
		g.POST("/:order_id/cancel", h.Cancel)
		g.POST("/:order_id/reconfirm", h.Reconfirm)
	}
}
