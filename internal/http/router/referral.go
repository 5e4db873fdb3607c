package router

import (
	"github.com/gin-gonic/gin"

	"nrrp.app/referrals/internal/http/handler"
)

func ReferralRouter(rg *gin.RouterGroup, h *handler.ReferralHandler) {
	rg.GET("/leaderboard", h.Leaderboard)
	rg.GET("/inviters/:id/stats", h.InviterStats)
	rg.GET("/inviters/:id/referrals", h.InviterReferrals)
	rg.GET("/referrals/:invitee_id", h.Get)
}
