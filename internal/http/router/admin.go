package router

import (
	"github.com/gin-gonic/gin"

	"nrrp.app/referrals/internal/http/handler"
)

// AdminRouter expects rg to carry the admin API key middleware.
func AdminRouter(rg *gin.RouterGroup, h *handler.AdminHandler) {
	rg.POST("/validate", h.Validate)
	rg.POST("/referrals/:invitee_id/status", h.SetStatus)
	rg.DELETE("/referrals/:invitee_id", h.Delete)
}
