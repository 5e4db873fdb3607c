// Package storetest holds behaviour checks every ReferralStore backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"nrrp.app/referrals/internal/model"
	"nrrp.app/referrals/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.ReferralStore

func strPtr(s string) *string { return &s }

func pending(invitee, inviter string, joined time.Time) *model.Referral {
	ref := &model.Referral{
		InviteeID: invitee,
		JoinedAt:  joined,
		Status:    model.ReferralStatusPending,
	}
	if inviter != "" {
		ref.InviterID = strPtr(inviter)
	}
	return ref
}

// Run exercises the ReferralStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	joined := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("InsertIfAbsent creates then keeps first", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ref := pending("100", "1", joined)
		ref.InviteCode = strPtr("abc")
		stored, created, err := s.InsertIfAbsent(ctx, ref)
		if err != nil {
			t.Fatalf("InsertIfAbsent failed: %v", err)
		}
		if !created {
			t.Error("created = false on first insert")
		}
		if stored.InviterID == nil || *stored.InviterID != "1" {
			t.Errorf("InviterID = %v, want 1", stored.InviterID)
		}
		if !stored.JoinedAt.Equal(joined) {
			t.Errorf("JoinedAt = %v, want %v", stored.JoinedAt, joined)
		}
		if stored.InviteCode == nil || *stored.InviteCode != "abc" {
			t.Errorf("InviteCode = %v, want abc", stored.InviteCode)
		}

		second := pending("100", "2", joined.Add(time.Hour))
		stored, created, err = s.InsertIfAbsent(ctx, second)
		if err != nil {
			t.Fatalf("second InsertIfAbsent failed: %v", err)
		}
		if created {
			t.Error("created = true for an existing invitee")
		}
		if *stored.InviterID != "1" {
			t.Errorf("InviterID = %s after duplicate, want 1", *stored.InviterID)
		}
	})

	t.Run("unattributed referral round-trips a nil inviter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, _, err := s.InsertIfAbsent(ctx, pending("101", "", joined)); err != nil {
			t.Fatalf("InsertIfAbsent failed: %v", err)
		}
		got, err := s.Get(ctx, "101")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.InviterID != nil {
			t.Errorf("InviterID = %v, want nil", *got.InviterID)
		}
	})

	t.Run("Get missing returns ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "nope")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("CompareAndSetStatus swaps only from the expected status", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, _, err := s.InsertIfAbsent(ctx, pending("102", "1", joined)); err != nil {
			t.Fatalf("InsertIfAbsent failed: %v", err)
		}

		at := joined.Add(2 * time.Hour)
		ref, swapped, err := s.CompareAndSetStatus(ctx, "102", model.ReferralStatusPending, model.ReferralStatusValidated, at)
		if err != nil {
			t.Fatalf("CompareAndSetStatus failed: %v", err)
		}
		if !swapped {
			t.Fatal("swapped = false from pending")
		}
		if ref.Status != model.ReferralStatusValidated {
			t.Errorf("Status = %s, want validated", ref.Status)
		}
		if ref.ResolvedAt == nil || !ref.ResolvedAt.Equal(at) {
			t.Errorf("ResolvedAt = %v, want %v", ref.ResolvedAt, at)
		}

		ref, swapped, err = s.CompareAndSetStatus(ctx, "102", model.ReferralStatusPending, model.ReferralStatusRejected, at)
		if err != nil {
			t.Fatalf("second CompareAndSetStatus failed: %v", err)
		}
		if swapped {
			t.Error("swapped = true from a stale status")
		}
		if ref.Status != model.ReferralStatusValidated {
			t.Errorf("Status = %s after stale swap, want validated", ref.Status)
		}
	})

	t.Run("CompareAndSetStatus missing returns ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.CompareAndSetStatus(context.Background(), "nope", model.ReferralStatusPending, model.ReferralStatusValidated, joined)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("concurrent swaps have exactly one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, _, err := s.InsertIfAbsent(ctx, pending("103", "1", joined)); err != nil {
			t.Fatalf("InsertIfAbsent failed: %v", err)
		}

		const workers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				to := model.ReferralStatusValidated
				if i%2 == 0 {
					to = model.ReferralStatusRejected
				}
				_, swapped, err := s.CompareAndSetStatus(ctx, "103", model.ReferralStatusPending, to, joined)
				if err != nil {
					t.Errorf("CompareAndSetStatus failed: %v", err)
					return
				}
				if swapped {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Errorf("wins = %d, want 1", wins)
		}
	})

	t.Run("ListByInviter pages in invitee order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := range 5 {
			invitee := fmt.Sprintf("2%02d", 4-i)
			if _, _, err := s.InsertIfAbsent(ctx, pending(invitee, "7", joined)); err != nil {
				t.Fatalf("InsertIfAbsent failed: %v", err)
			}
		}
		if _, _, err := s.InsertIfAbsent(ctx, pending("299", "8", joined)); err != nil {
			t.Fatalf("InsertIfAbsent failed: %v", err)
		}

		first, err := s.ListByInviter(ctx, "7", store.Page{Limit: 3})
		if err != nil {
			t.Fatalf("ListByInviter failed: %v", err)
		}
		if len(first) != 3 || first[0].InviteeID != "200" || first[2].InviteeID != "202" {
			t.Fatalf("first page = %v, want 200..202", ids(first))
		}

		rest, err := s.ListByInviter(ctx, "7", store.Page{After: first[2].InviteeID, Limit: 3})
		if err != nil {
			t.Fatalf("ListByInviter failed: %v", err)
		}
		if len(rest) != 2 || rest[0].InviteeID != "203" || rest[1].InviteeID != "204" {
			t.Errorf("second page = %v, want 203 204", ids(rest))
		}
	})

	t.Run("ListByStatus filters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, invitee := range []string{"300", "301", "302"} {
			if _, _, err := s.InsertIfAbsent(ctx, pending(invitee, "1", joined)); err != nil {
				t.Fatalf("InsertIfAbsent failed: %v", err)
			}
		}
		if _, _, err := s.CompareAndSetStatus(ctx, "301", model.ReferralStatusPending, model.ReferralStatusRejected, joined); err != nil {
			t.Fatalf("CompareAndSetStatus failed: %v", err)
		}

		refs, err := s.ListByStatus(ctx, model.ReferralStatusPending, store.Page{})
		if err != nil {
			t.Fatalf("ListByStatus failed: %v", err)
		}
		if got := ids(refs); len(got) != 2 || got[0] != "300" || got[1] != "302" {
			t.Errorf("pending = %v, want [300 302]", got)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, _, err := s.InsertIfAbsent(ctx, pending("400", "1", joined)); err != nil {
			t.Fatalf("InsertIfAbsent failed: %v", err)
		}
		if err := s.Delete(ctx, "400"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get(ctx, "400"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get after Delete err = %v, want ErrNotFound", err)
		}
		if err := s.Delete(ctx, "400"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("second Delete err = %v, want ErrNotFound", err)
		}
	})
}

func ids(refs []model.Referral) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.InviteeID)
	}
	return out
}
