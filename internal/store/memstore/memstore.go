// Package memstore is a process-local ReferralStore. Service and handler
// tests run against it instead of a database.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"nrrp.app/referrals/internal/model"
	"nrrp.app/referrals/internal/store"
)

type Store struct {
	mu   sync.RWMutex
	rows map[string]model.Referral
	now  func() time.Time
}

var _ store.ReferralStore = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[string]model.Referral), now: time.Now}
}

func (s *Store) Get(ctx context.Context, inviteeID string) (*model.Referral, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.rows[inviteeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ref, nil
}

func (s *Store) InsertIfAbsent(ctx context.Context, ref *model.Referral) (*model.Referral, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rows[ref.InviteeID]; ok {
		return &existing, false, nil
	}

	now := s.now().UTC()
	row := *ref
	row.JoinedAt = row.JoinedAt.UTC()
	row.CreatedAt = now
	row.UpdatedAt = now
	row.ResolvedAt = nil
	s.rows[row.InviteeID] = row
	return &row, true, nil
}

func (s *Store) CompareAndSetStatus(ctx context.Context, inviteeID string, from, to model.ReferralStatus, at time.Time) (*model.Referral, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[inviteeID]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	if row.Status != from {
		return &row, false, nil
	}

	resolved := at.UTC()
	row.Status = to
	row.ResolvedAt = &resolved
	row.UpdatedAt = s.now().UTC()
	s.rows[inviteeID] = row
	return &row, true, nil
}

func (s *Store) ListByInviter(ctx context.Context, inviterID string, page store.Page) ([]model.Referral, error) {
	return s.list(ctx, page, func(r model.Referral) bool {
		return r.InviterID != nil && *r.InviterID == inviterID
	})
}

func (s *Store) ListByStatus(ctx context.Context, status model.ReferralStatus, page store.Page) ([]model.Referral, error) {
	return s.list(ctx, page, func(r model.Referral) bool {
		return r.Status == status
	})
}

func (s *Store) Delete(ctx context.Context, inviteeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[inviteeID]; !ok {
		return store.ErrNotFound
	}
	delete(s.rows, inviteeID)
	return nil
}

// Len returns the number of stored referrals.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *Store) list(ctx context.Context, page store.Page, match func(model.Referral) bool) ([]model.Referral, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := page.Limit
	if limit <= 0 {
		limit = store.DefaultPageSize
	}

	s.mu.RLock()
	refs := []model.Referral{}
	for _, r := range s.rows {
		if r.InviteeID > page.After && match(r) {
			refs = append(refs, r)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(refs, func(a, b model.Referral) int {
		return strings.Compare(a.InviteeID, b.InviteeID)
	})
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}
