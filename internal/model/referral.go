package model

import (
	"errors"
	"fmt"
	"time"
)

type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusValidated ReferralStatus = "validated"
	ReferralStatusRejected  ReferralStatus = "rejected"
)

// ErrInvalidTransition is returned when a status change is not allowed
// by the referral lifecycle. VALIDATED and REJECTED are terminal.
var ErrInvalidTransition = errors.New("invalid referral status transition")

func (s ReferralStatus) IsValid() bool {
	switch s {
	case ReferralStatusPending, ReferralStatusValidated, ReferralStatusRejected:
		return true
	}
	return false
}

func (s ReferralStatus) IsTerminal() bool {
	return s == ReferralStatusValidated || s == ReferralStatusRejected
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Only PENDING→VALIDATED and PENDING→REJECTED are permitted.
func (s ReferralStatus) CanTransitionTo(next ReferralStatus) bool {
	return s == ReferralStatusPending &&
		(next == ReferralStatusValidated || next == ReferralStatusRejected)
}

// CheckTransition returns ErrInvalidTransition, annotated with both ends, if
// the move is not allowed.
func (s ReferralStatus) CheckTransition(next ReferralStatus) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

// ParseReferralStatus converts user input (admin API) into a status.
func ParseReferralStatus(s string) (ReferralStatus, error) {
	status := ReferralStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown referral status %q", s)
	}
	return status, nil
}

// Referral attributes one invitee's join to the member whose invite they used.
// InviteeID is the primary key: a community member has at most one referral.
type Referral struct {
	InviteeID   string         `json:"invitee_id"`
	InviterID   *string        `json:"inviter_id,omitempty"`
	JoinedAt    time.Time      `json:"joined_at"`
	Status      ReferralStatus `json:"status"`
	InviteCode  *string        `json:"invite_code,omitempty"`
	InviterName *string        `json:"inviter_name,omitempty"`
	InviteeName *string        `json:"invitee_name,omitempty"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsAttributed reports whether an invite link could be resolved for the join.
func (r *Referral) IsAttributed() bool {
	return r.InviterID != nil && *r.InviterID != ""
}

func (r *Referral) CountsTowardLeaderboard() bool {
	return r.IsAttributed() && r.Status == ReferralStatusValidated
}
