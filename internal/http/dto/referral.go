package dto

import (
	"time"

	"nrrp.app/referrals/internal/model"
	"nrrp.app/referrals/internal/validation"
)

type ReferralResponse struct {
	InviteeID   string     `json:"invitee_id"`
	InviterID   *string    `json:"inviter_id"`
	Status      string     `json:"status"`
	JoinedAt    time.Time  `json:"joined_at"`
	InviteCode  *string    `json:"invite_code,omitempty"`
	InviterName *string    `json:"inviter_name,omitempty"`
	InviteeName *string    `json:"invitee_name,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

func NewReferralResponse(ref *model.Referral) ReferralResponse {
	return ReferralResponse{
		InviteeID:   ref.InviteeID,
		InviterID:   ref.InviterID,
		Status:      string(ref.Status),
		JoinedAt:    ref.JoinedAt,
		InviteCode:  ref.InviteCode,
		InviterName: ref.InviterName,
		InviteeName: ref.InviteeName,
		ResolvedAt:  ref.ResolvedAt,
	}
}

type InviterStatsResponse struct {
	Rank           int    `json:"rank,omitempty"`
	InviterID      string `json:"inviter_id"`
	InviterName    string `json:"inviter_name,omitempty"`
	ValidatedCount int    `json:"validated_count"`
	PendingCount   int    `json:"pending_count"`
	RejectedCount  int    `json:"rejected_count"`
	Total          int    `json:"total"`
}

func NewInviterStatsResponse(stats model.InviterStats, rank int) InviterStatsResponse {
	return InviterStatsResponse{
		Rank:           rank,
		InviterID:      stats.InviterID,
		InviterName:    stats.InviterName,
		ValidatedCount: stats.ValidatedCount,
		PendingCount:   stats.PendingCount,
		RejectedCount:  stats.RejectedCount,
		Total:          stats.Total(),
	}
}

type LeaderboardResponse struct {
	Limit    int                    `json:"limit"`
	Inviters []InviterStatsResponse `json:"inviters"`
}

type ValidationReportResponse struct {
	RunID        int64     `json:"run_id,string"`
	Validated    int       `json:"validated"`
	Rejected     int       `json:"rejected"`
	StillPending int       `json:"still_pending"`
	Skipped      []string  `json:"skipped"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

func NewValidationReportResponse(report *validation.BatchReport) ValidationReportResponse {
	skipped := make([]string, 0, len(report.Skipped))
	for _, s := range report.Skipped {
		skipped = append(skipped, s.InviteeID)
	}
	return ValidationReportResponse{
		RunID:        report.RunID,
		Validated:    report.Validated,
		Rejected:     report.Rejected,
		StillPending: report.StillPending,
		Skipped:      skipped,
		StartedAt:    report.StartedAt,
		FinishedAt:   report.FinishedAt,
	}
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
