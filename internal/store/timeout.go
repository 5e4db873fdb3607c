package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nrrp.app/referrals/internal/model"
)

type timeoutStore struct {
	next    ReferralStore
	timeout time.Duration
}

// WithTimeout bounds every call on next by d. A call that runs out of time
// fails with ErrUnavailable instead of hanging. A non-positive d returns next
// unchanged.
func WithTimeout(next ReferralStore, d time.Duration) ReferralStore {
	if d <= 0 {
		return next
	}
	return &timeoutStore{next: next, timeout: d}
}

func (s *timeoutStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *timeoutStore) Get(ctx context.Context, inviteeID string) (*model.Referral, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	ref, err := s.next.Get(ctx, inviteeID)
	return ref, s.mapErr(ctx, err)
}

func (s *timeoutStore) InsertIfAbsent(ctx context.Context, ref *model.Referral) (*model.Referral, bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	stored, created, err := s.next.InsertIfAbsent(ctx, ref)
	return stored, created, s.mapErr(ctx, err)
}

func (s *timeoutStore) CompareAndSetStatus(ctx context.Context, inviteeID string, from, to model.ReferralStatus, at time.Time) (*model.Referral, bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	ref, swapped, err := s.next.CompareAndSetStatus(ctx, inviteeID, from, to, at)
	return ref, swapped, s.mapErr(ctx, err)
}

func (s *timeoutStore) ListByInviter(ctx context.Context, inviterID string, page Page) ([]model.Referral, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	refs, err := s.next.ListByInviter(ctx, inviterID, page)
	return refs, s.mapErr(ctx, err)
}

func (s *timeoutStore) ListByStatus(ctx context.Context, status model.ReferralStatus, page Page) ([]model.Referral, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	refs, err := s.next.ListByStatus(ctx, status, page)
	return refs, s.mapErr(ctx, err)
}

func (s *timeoutStore) Delete(ctx context.Context, inviteeID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.mapErr(ctx, s.next.Delete(ctx, inviteeID))
}

// mapErr turns our own deadline into ErrUnavailable. Cancellation by the
// caller is passed through untouched.
func (s *timeoutStore) mapErr(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNotFound) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: call exceeded %s: %v", ErrUnavailable, s.timeout, err)
	}
	return err
}
