package dto

import "time"

// MemberEventRequest lets a platform other than the bundled Discord adapter
// report joins and leaves.
type MemberEventRequest struct {
	Kind        string     `json:"kind" binding:"required,oneof=member_joined member_left"`
	InviteeID   string     `json:"invitee_id" binding:"required"`
	InviterID   *string    `json:"inviter_id,omitempty"`
	InviteCode  *string    `json:"invite_code,omitempty"`
	InviterName *string    `json:"inviter_name,omitempty"`
	InviteeName *string    `json:"invitee_name,omitempty"`
	At          *time.Time `json:"at,omitempty"`
}

type MemberEventResponse struct {
	Accepted bool `json:"accepted"`
}
