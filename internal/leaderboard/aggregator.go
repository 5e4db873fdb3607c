package leaderboard

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"nrrp.app/referrals/internal/ledger"
	"nrrp.app/referrals/internal/model"
)

var ErrInvalidLimit = errors.New("leaderboard limit must be at least 1")

// Aggregator derives rankings from the ledger on demand. Nothing is cached.
type Aggregator interface {
	// TopInviters returns at most n inviters ranked by validated referrals,
	// then earliest validated join, then inviter ID.
	TopInviters(ctx context.Context, n int) ([]model.InviterStats, error)

	// StatsFor returns the counts for one inviter; zero counts when unknown.
	StatsFor(ctx context.Context, inviterID string) (model.InviterStats, error)
}

type aggregator struct {
	ledger ledger.Ledger
	logger *slog.Logger
}

func New(l ledger.Ledger, logger *slog.Logger) Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &aggregator{ledger: l, logger: logger}
}

func (a *aggregator) TopInviters(ctx context.Context, n int) ([]model.InviterStats, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, n)
	}

	byInviter := make(map[string]*model.InviterStats)
	for ref, err := range a.ledger.ValidatedReferrals(ctx) {
		if err != nil {
			return nil, fmt.Errorf("scanning validated referrals: %w", err)
		}
		if !ref.CountsTowardLeaderboard() {
			continue
		}
		stats, ok := byInviter[*ref.InviterID]
		if !ok {
			stats = &model.InviterStats{InviterID: *ref.InviterID}
			byInviter[*ref.InviterID] = stats
		}
		stats.Add(ref)
	}

	ranked := make([]*model.InviterStats, 0, len(byInviter))
	for _, stats := range byInviter {
		ranked = append(ranked, stats)
	}
	slices.SortFunc(ranked, Compare)
	if len(ranked) > n {
		ranked = ranked[:n]
	}

	if err := a.fillPending(ctx, ranked); err != nil {
		return nil, err
	}

	top := make([]model.InviterStats, 0, len(ranked))
	for _, stats := range ranked {
		top = append(top, *stats)
	}
	a.logger.DebugContext(ctx, "leaderboard computed", "inviters", len(byInviter), "returned", len(top))
	return top, nil
}

// Compare orders stats for the leaderboard: more validated referrals first,
// then the earlier first validated join, then the smaller inviter ID.
func Compare(a, b *model.InviterStats) int {
	if c := cmp.Compare(b.ValidatedCount, a.ValidatedCount); c != 0 {
		return c
	}
	if c := a.FirstValidatedAt.Compare(b.FirstValidatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.InviterID, b.InviterID)
}

// fillPending adds pending counts for the ranked inviters. Pending referrals
// never affect ranking.
func (a *aggregator) fillPending(ctx context.Context, ranked []*model.InviterStats) error {
	if len(ranked) == 0 {
		return nil
	}
	index := make(map[string]*model.InviterStats, len(ranked))
	for _, stats := range ranked {
		index[stats.InviterID] = stats
	}

	for ref, err := range a.ledger.PendingReferrals(ctx) {
		if err != nil {
			return fmt.Errorf("scanning pending referrals: %w", err)
		}
		if !ref.IsAttributed() {
			continue
		}
		if stats, ok := index[*ref.InviterID]; ok {
			stats.PendingCount++
		}
	}
	return nil
}

func (a *aggregator) StatsFor(ctx context.Context, inviterID string) (model.InviterStats, error) {
	stats := model.InviterStats{InviterID: inviterID}
	for ref, err := range a.ledger.ReferralsByInviter(ctx, inviterID) {
		if err != nil {
			return model.InviterStats{}, fmt.Errorf("scanning referrals of %s: %w", inviterID, err)
		}
		stats.Add(ref)
	}
	return stats, nil
}
