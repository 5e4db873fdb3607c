package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"nrrp.app/referrals/internal/metrics"
	"nrrp.app/referrals/internal/model"
	"nrrp.app/referrals/internal/store"
)

var (
	ErrReferralNotFound = errors.New("referral not found")
	ErrInvalidJoin      = errors.New("invalid join")
)

type JoinParams struct {
	InviteeID string
	InviterID *string // nil when no invite link could be resolved
	JoinedAt  time.Time

	InviteCode  *string
	InviterName *string
	InviteeName *string
}

type JoinResult struct {
	Referral *model.Referral
	// Duplicate is set when the invitee already had a referral. Nothing was written.
	Duplicate bool
}

// Ledger owns the one-inviter-per-invitee record and its status lifecycle.
type Ledger interface {
	RecordJoin(ctx context.Context, params JoinParams) (*JoinResult, error)
	GetReferral(ctx context.Context, inviteeID string) (*model.Referral, error)

	// ReferralsByInviter yields every referral credited to inviterID in invitee
	// order. Each range over the sequence reads the store afresh.
	ReferralsByInviter(ctx context.Context, inviterID string) iter.Seq2[model.Referral, error]
	PendingReferrals(ctx context.Context) iter.Seq2[model.Referral, error]
	ValidatedReferrals(ctx context.Context) iter.Seq2[model.Referral, error]

	SetStatus(ctx context.Context, inviteeID string, next model.ReferralStatus) (*model.Referral, error)

	// Remove deletes the referral so the invitee can be attributed again on a later join.
	Remove(ctx context.Context, inviteeID string) error
}

type Config struct {
	PageSize int
	Clock    func() time.Time
}

type ledger struct {
	referrals store.ReferralStore
	pageSize  int
	now       func() time.Time
	logger    *slog.Logger
}

func New(referrals store.ReferralStore, cfg Config, logger *slog.Logger) Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = store.DefaultPageSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &ledger{
		referrals: referrals,
		pageSize:  cfg.PageSize,
		now:       cfg.Clock,
		logger:    logger,
	}
}

func (l *ledger) RecordJoin(ctx context.Context, params JoinParams) (*JoinResult, error) {
	inviteeID := strings.TrimSpace(params.InviteeID)
	if inviteeID == "" {
		return nil, fmt.Errorf("%w: invitee_id is required", ErrInvalidJoin)
	}

	inviterID := params.InviterID
	if inviterID != nil {
		trimmed := strings.TrimSpace(*inviterID)
		switch {
		case trimmed == "":
			inviterID = nil
		case trimmed == inviteeID:
			// Nobody is credited for inviting themselves.
			l.logger.InfoContext(ctx, "self-invite recorded as unattributed", "invitee_id", inviteeID)
			inviterID = nil
		default:
			inviterID = &trimmed
		}
	}

	joinedAt := params.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = l.now()
	}

	ref := &model.Referral{
		InviteeID:   inviteeID,
		InviterID:   inviterID,
		JoinedAt:    joinedAt.UTC(),
		Status:      model.ReferralStatusPending,
		InviteCode:  params.InviteCode,
		InviterName: params.InviterName,
		InviteeName: params.InviteeName,
	}

	stored, created, err := l.referrals.InsertIfAbsent(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("recording join: %w", err)
	}

	if !created {
		metrics.JoinsRecorded.WithLabelValues("duplicate").Inc()
		l.logger.InfoContext(ctx, "duplicate join ignored",
			"invitee_id", inviteeID,
			"stored_inviter_id", derefOr(stored.InviterID, ""),
			"offered_inviter_id", derefOr(inviterID, ""),
			"status", stored.Status)
		return &JoinResult{Referral: stored, Duplicate: true}, nil
	}

	metrics.JoinsRecorded.WithLabelValues("created").Inc()
	l.logger.InfoContext(ctx, "referral recorded",
		"invitee_id", inviteeID,
		"inviter_id", derefOr(inviterID, ""),
		"attributed", stored.IsAttributed())
	return &JoinResult{Referral: stored}, nil
}

func (l *ledger) GetReferral(ctx context.Context, inviteeID string) (*model.Referral, error) {
	ref, err := l.referrals.Get(ctx, inviteeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrReferralNotFound
		}
		return nil, fmt.Errorf("getting referral: %w", err)
	}
	return ref, nil
}

func (l *ledger) ReferralsByInviter(ctx context.Context, inviterID string) iter.Seq2[model.Referral, error] {
	return l.scan(ctx, func(ctx context.Context, page store.Page) ([]model.Referral, error) {
		return l.referrals.ListByInviter(ctx, inviterID, page)
	})
}

func (l *ledger) PendingReferrals(ctx context.Context) iter.Seq2[model.Referral, error] {
	return l.byStatus(ctx, model.ReferralStatusPending)
}

func (l *ledger) ValidatedReferrals(ctx context.Context) iter.Seq2[model.Referral, error] {
	return l.byStatus(ctx, model.ReferralStatusValidated)
}

func (l *ledger) byStatus(ctx context.Context, status model.ReferralStatus) iter.Seq2[model.Referral, error] {
	return l.scan(ctx, func(ctx context.Context, page store.Page) ([]model.Referral, error) {
		return l.referrals.ListByStatus(ctx, status, page)
	})
}

// scan walks keyset pages until a short page. A store error is yielded once
// and ends the sequence.
func (l *ledger) scan(ctx context.Context, list func(context.Context, store.Page) ([]model.Referral, error)) iter.Seq2[model.Referral, error] {
	return func(yield func(model.Referral, error) bool) {
		page := store.Page{Limit: l.pageSize}
		for {
			refs, err := list(ctx, page)
			if err != nil {
				yield(model.Referral{}, fmt.Errorf("listing referrals: %w", err))
				return
			}
			for _, ref := range refs {
				if !yield(ref, nil) {
					return
				}
			}
			if len(refs) < page.Limit {
				return
			}
			page.After = refs[len(refs)-1].InviteeID
		}
	}
}

func (l *ledger) SetStatus(ctx context.Context, inviteeID string, next model.ReferralStatus) (*model.Referral, error) {
	if !next.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidTransition, next)
	}

	current, err := l.GetReferral(ctx, inviteeID)
	if err != nil {
		return nil, err
	}

	if err := current.Status.CheckTransition(next); err != nil {
		l.refuse(ctx, current, next)
		return current, err
	}

	updated, swapped, err := l.referrals.CompareAndSetStatus(ctx, inviteeID, current.Status, next, l.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrReferralNotFound
		}
		return nil, fmt.Errorf("setting referral status: %w", err)
	}
	if !swapped {
		// Someone else resolved the referral between our read and the swap.
		l.refuse(ctx, updated, next)
		return updated, fmt.Errorf("%w: %s -> %s (concurrent update)", model.ErrInvalidTransition, updated.Status, next)
	}

	metrics.StatusTransitions.WithLabelValues(string(next)).Inc()
	l.logger.InfoContext(ctx, "referral status changed",
		"invitee_id", inviteeID,
		"from", current.Status,
		"to", next)
	return updated, nil
}

func (l *ledger) refuse(ctx context.Context, ref *model.Referral, next model.ReferralStatus) {
	metrics.InvalidTransitions.Inc()
	l.logger.WarnContext(ctx, "referral status change refused",
		"invitee_id", ref.InviteeID,
		"from", ref.Status,
		"to", next)
}

func (l *ledger) Remove(ctx context.Context, inviteeID string) error {
	if err := l.referrals.Delete(ctx, inviteeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrReferralNotFound
		}
		return fmt.Errorf("removing referral: %w", err)
	}
	l.logger.InfoContext(ctx, "referral removed", "invitee_id", inviteeID)
	return nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
