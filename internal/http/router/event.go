package router

import (
	"github.com/gin-gonic/gin"

	"nrrp.app/referrals/internal/http/handler"
)

func EventRouter(rg *gin.RouterGroup, h *handler.EventIngestHandler) {
	rg.POST("/member", h.Ingest)
}
