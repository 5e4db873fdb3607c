package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nrrp.app/referrals/internal/http/handler"
	"nrrp.app/referrals/internal/http/middleware"
	"nrrp.app/referrals/internal/platform"
	"nrrp.app/referrals/internal/service"
)

type RouterConfig struct {
	AdminAPIKey     string
	TraceHeaderName string
	LeaderboardSize int
	// Directory backs admin validation sweeps. Nil disables them.
	Directory platform.MemberDirectory
	Publisher platform.EventPublisher
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAdmin := middleware.RequireAdminAPIKey(cfg.AdminAPIKey)

	v1 := router.Group("/api/v1")
	{
		referralHandler := handler.NewReferralHandler(services.Ledger(), services.Leaderboard(), cfg.LeaderboardSize)
		ReferralRouter(v1, referralHandler)

		adminHandler := handler.NewAdminHandler(services.Ledger(), services.Engine(), cfg.Directory)
		AdminRouter(v1.Group("/admin", requireAdmin), adminHandler)

		if cfg.Publisher != nil {
			eventHandler := handler.NewEventIngestHandler(cfg.Publisher, cfg.TraceHeaderName)
			EventRouter(v1.Group("/events", requireAdmin), eventHandler)
		}
	}
}
