package store

import (
	"context"
	"errors"
	"time"

	"nrrp.app/referrals/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUnavailable is returned when the backing database cannot answer within
// the configured timeout or the connection failed. Callers surface it, the
// core never retries it.
var ErrUnavailable = errors.New("referral store unavailable")

// DefaultPageSize is used when a Page carries no limit.
const DefaultPageSize = 200

// Page selects one keyset page ordered by invitee ID: rows with
// invitee_id > After, at most Limit of them.
type Page struct {
	After string
	Limit int
}

func (p Page) limit() int {
	if p.Limit <= 0 {
		return DefaultPageSize
	}
	return p.Limit
}

// ReferralStore defines the contract for referral persistence. Every
// implementation must make InsertIfAbsent and CompareAndSetStatus atomic per
// invitee row.
type ReferralStore interface {
	Get(ctx context.Context, inviteeID string) (*model.Referral, error)

	// InsertIfAbsent stores ref unless a row for ref.InviteeID exists. It
	// returns the stored row and whether this call created it.
	InsertIfAbsent(ctx context.Context, ref *model.Referral) (*model.Referral, bool, error)

	// CompareAndSetStatus moves the row to `to` only if its status is still
	// `from`. It returns the row as it is after the call and whether the swap
	// happened. ErrNotFound if no row exists.
	CompareAndSetStatus(ctx context.Context, inviteeID string, from, to model.ReferralStatus, at time.Time) (*model.Referral, bool, error)

	ListByInviter(ctx context.Context, inviterID string, page Page) ([]model.Referral, error)
	ListByStatus(ctx context.Context, status model.ReferralStatus, page Page) ([]model.Referral, error)

	// Delete removes the row; ErrNotFound if there was none.
	Delete(ctx context.Context, inviteeID string) error
}
