package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"nrrp.app/referrals/internal/http/dto"
	"nrrp.app/referrals/internal/ledger"
	"nrrp.app/referrals/internal/model"
	"nrrp.app/referrals/internal/platform"
	"nrrp.app/referrals/internal/validation"
)

type AdminHandler struct {
	ledger    ledger.Ledger
	engine    validation.Engine
	directory platform.MemberDirectory
}

// NewAdminHandler builds the admin endpoints. A nil directory disables
// Validate, since sweeps need role lookups.
func NewAdminHandler(l ledger.Ledger, engine validation.Engine, directory platform.MemberDirectory) *AdminHandler {
	return &AdminHandler{
		ledger:    l,
		engine:    engine,
		directory: directory,
	}
}

func (h *AdminHandler) Validate(c *gin.Context) {
	ctx := c.Request.Context()

	if h.directory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "member directory not configured"})
		return
	}

	report, err := h.engine.ValidateAll(ctx, h.directory)
	if err != nil {
		if report != nil {
			slog.WarnContext(ctx, "validation sweep aborted",
				"run_id", report.RunID,
				"validated", report.Validated,
				"rejected", report.Rejected)
		}
		respondError(c, err, "run validation")
		return
	}

	c.JSON(http.StatusOK, dto.NewValidationReportResponse(report))
}

func (h *AdminHandler) SetStatus(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: status is required"})
		return
	}
	status, err := model.ParseReferralStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref, err := h.ledger.SetStatus(ctx, c.Param("invitee_id"), status)
	if err != nil {
		respondError(c, err, "update referral")
		return
	}

	slog.InfoContext(ctx, "referral status set via admin API",
		"invitee_id", ref.InviteeID,
		"status", ref.Status)
	c.JSON(http.StatusOK, dto.NewReferralResponse(ref))
}

func (h *AdminHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	inviteeID := c.Param("invitee_id")

	if err := h.ledger.Remove(ctx, inviteeID); err != nil {
		respondError(c, err, "delete referral")
		return
	}

	slog.InfoContext(ctx, "referral removed via admin API", "invitee_id", inviteeID)
	c.Status(http.StatusNoContent)
}
