// Package platform describes what the referral core needs from the chat
// platform: member lookups and join/leave events.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLookup is returned when a member's status cannot be resolved. The caller
// leaves the referral untouched and tries again on a later sweep.
var ErrLookup = errors.New("member lookup failed")

// ErrInvalidEvent is returned by MemberEvent.Validate.
var ErrInvalidEvent = errors.New("invalid member event")

// MemberStatus is what the directory knows about one community member right now.
type MemberStatus struct {
	Present         bool
	HasRequiredRole bool
}

type MemberDirectory interface {
	Lookup(ctx context.Context, memberID string) (MemberStatus, error)
}

// LookupFunc adapts a function to MemberDirectory.
type LookupFunc func(ctx context.Context, memberID string) (MemberStatus, error)

func (f LookupFunc) Lookup(ctx context.Context, memberID string) (MemberStatus, error) {
	return f(ctx, memberID)
}

type EventKind string

const (
	EventKindJoined EventKind = "member_joined"
	EventKindLeft   EventKind = "member_left"
)

func (k EventKind) IsValid() bool {
	return k == EventKindJoined || k == EventKindLeft
}

// MemberEvent is a join or leave observed on the platform. Inviter fields are
// only meaningful for joins, and only when the invite used could be resolved.
type MemberEvent struct {
	Kind        EventKind `json:"kind"`
	InviteeID   string    `json:"invitee_id"`
	InviterID   *string   `json:"inviter_id,omitempty"`
	InviteCode  *string   `json:"invite_code,omitempty"`
	InviterName *string   `json:"inviter_name,omitempty"`
	InviteeName *string   `json:"invitee_name,omitempty"`
	At          time.Time `json:"at"`
}

func (e MemberEvent) Validate() error {
	if !e.Kind.IsValid() {
		return fmt.Errorf("%w: unknown event kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.InviteeID == "" {
		return fmt.Errorf("%w: invitee_id is required", ErrInvalidEvent)
	}
	return nil
}

// EventPublisher hands member events to whatever applies them to the ledger.
type EventPublisher interface {
	Publish(ctx context.Context, event MemberEvent) error
}
