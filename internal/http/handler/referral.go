package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nrrp.app/referrals/internal/http/dto"
	"nrrp.app/referrals/internal/leaderboard"
	"nrrp.app/referrals/internal/ledger"
)

type ReferralHandler struct {
	ledger       ledger.Ledger
	leaderboard  leaderboard.Aggregator
	defaultLimit int
}

func NewReferralHandler(l ledger.Ledger, agg leaderboard.Aggregator, defaultLimit int) *ReferralHandler {
	if defaultLimit < 1 {
		defaultLimit = 10
	}
	return &ReferralHandler{
		ledger:       l,
		leaderboard:  agg,
		defaultLimit: defaultLimit,
	}
}

func (h *ReferralHandler) Leaderboard(c *gin.Context) {
	ctx := c.Request.Context()

	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	top, err := h.leaderboard.TopInviters(ctx, limit)
	if err != nil {
		respondError(c, err, "compute leaderboard")
		return
	}

	resp := dto.LeaderboardResponse{Limit: limit, Inviters: make([]dto.InviterStatsResponse, 0, len(top))}
	for i, stats := range top {
		resp.Inviters = append(resp.Inviters, dto.NewInviterStatsResponse(stats, i+1))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReferralHandler) InviterStats(c *gin.Context) {
	stats, err := h.leaderboard.StatsFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "load inviter stats")
		return
	}
	c.JSON(http.StatusOK, dto.NewInviterStatsResponse(stats, 0))
}

// InviterReferrals streams the inviter's referrals as a JSON array while the
// ledger pages through them. Errors before the first element get a proper
// status; later ones truncate the response.
func (h *ReferralHandler) InviterReferrals(c *gin.Context) {
	ctx := c.Request.Context()
	inviterID := c.Param("id")

	started := false
	for ref, err := range h.ledger.ReferralsByInviter(ctx, inviterID) {
		if err != nil {
			if !started {
				respondError(c, err, "list referrals")
				return
			}
			slog.ErrorContext(ctx, "referral stream interrupted", "inviter_id", inviterID, "error", err)
			_ = c.Error(err)
			return
		}

		body, err := json.Marshal(dto.NewReferralResponse(&ref))
		if err != nil {
			_ = c.Error(err)
			return
		}
		if !started {
			c.Header("Content-Type", "application/json; charset=utf-8")
			c.Status(http.StatusOK)
			_, _ = c.Writer.WriteString("[")
			started = true
		} else {
			_, _ = c.Writer.WriteString(",")
		}
		_, _ = c.Writer.Write(body)
		c.Writer.Flush()
	}

	if !started {
		c.JSON(http.StatusOK, []dto.ReferralResponse{})
		return
	}
	_, _ = c.Writer.WriteString("]")
}

func (h *ReferralHandler) Get(c *gin.Context) {
	ref, err := h.ledger.GetReferral(c.Request.Context(), c.Param("invitee_id"))
	if err != nil {
		respondError(c, err, "load referral")
		return
	}
	c.JSON(http.StatusOK, dto.NewReferralResponse(ref))
}
