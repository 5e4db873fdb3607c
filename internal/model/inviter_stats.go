package model

import "time"

// InviterStats is derived from the referrals credited to one inviter. It is
// never stored.
type InviterStats struct {
	InviterID      string `json:"inviter_id"`
	InviterName    string `json:"inviter_name,omitempty"`
	ValidatedCount int    `json:"validated_count"`
	PendingCount   int    `json:"pending_count"`
	RejectedCount  int    `json:"rejected_count"`

	// Earliest JoinedAt among validated referrals; zero when none are validated.
	FirstValidatedAt time.Time `json:"first_validated_at,omitzero"`
}

// Total counts referrals still in play (validated + pending).
func (s InviterStats) Total() int {
	return s.ValidatedCount + s.PendingCount
}

// Add folds one referral into the stats.
func (s *InviterStats) Add(r Referral) {
	if r.InviterName != nil && *r.InviterName != "" {
		s.InviterName = *r.InviterName
	}
	switch r.Status {
	case ReferralStatusValidated:
		s.ValidatedCount++
		if s.FirstValidatedAt.IsZero() || r.JoinedAt.Before(s.FirstValidatedAt) {
			s.FirstValidatedAt = r.JoinedAt
		}
	case ReferralStatusPending:
		s.PendingCount++
	case ReferralStatusRejected:
		s.RejectedCount++
	}
}
