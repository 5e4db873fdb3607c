package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"nrrp.app/referrals/internal/leaderboard"
	"nrrp.app/referrals/internal/ledger"
	"nrrp.app/referrals/internal/model"
	"nrrp.app/referrals/internal/platform"
	"nrrp.app/referrals/internal/store"
	"nrrp.app/referrals/internal/worker"
)

// respondError maps domain errors to status codes. Anything unexpected is a
// 500 with a generic message and the detail in the log.
func respondError(c *gin.Context, err error, action string) {
	ctx := c.Request.Context()

	switch {
	case errors.Is(err, ledger.ErrReferralNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "referral not found"})
	case errors.Is(err, model.ErrInvalidTransition):
		slog.WarnContext(ctx, "status change refused", "error", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, leaderboard.ErrInvalidLimit),
		errors.Is(err, ledger.ErrInvalidJoin),
		errors.Is(err, platform.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, worker.ErrSweepInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "a validation sweep is already running"})
	case errors.Is(err, store.ErrUnavailable):
		slog.ErrorContext(ctx, "store unavailable", "action", action, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage temporarily unavailable"})
	default:
		slog.ErrorContext(ctx, "request failed", "action", action, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action})
	}
}
