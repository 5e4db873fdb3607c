package command

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"nrrp.app/referrals/internal/leaderboard"
	"nrrp.app/referrals/internal/ledger"
	"nrrp.app/referrals/internal/model"
	"nrrp.app/referrals/internal/platform"
	"nrrp.app/referrals/internal/validation"
)

type Deps struct {
	Ledger      ledger.Ledger
	Engine      validation.Engine
	Leaderboard leaderboard.Aggregator
	Directory   platform.MemberDirectory

	BoardSize int
	Prefix    string

	// AfterValidation runs once an admin sweep finished, e.g. to repost the
	// leaderboard channel. Optional.
	AfterValidation func(ctx context.Context)
}

// Definitions returns the referral command table.
func Definitions(deps Deps) []Definition {
	if deps.BoardSize < 1 {
		deps.BoardSize = 10
	}
	return []Definition{
		{
			Name:        "leaderboard",
			Capability:  CapabilityPublic,
			Description: "Show the referral rankings",
			Handler:     deps.leaderboard,
		},
		{
			Name:        "myreferrals",
			Capability:  CapabilityPublic,
			Description: "View your referral history",
			Handler:     deps.myReferrals,
		},
		{
			Name:        "validate",
			Capability:  CapabilityAdmin,
			Description: "Check every pending referral against the required role",
			Handler:     deps.validate,
		},
		{
			Name:        "refreshboard",
			Capability:  CapabilityAdmin,
			Description: "Re-validate pending referrals and show the updated rankings",
			Handler:     deps.refreshBoard,
		},
	}
}

func (d Deps) leaderboard(ctx context.Context, _ Invocation) (*Reply, error) {
	top, err := d.Leaderboard.TopInviters(ctx, d.BoardSize)
	if err != nil {
		return nil, err
	}
	return LeaderboardReply(top, d.Prefix), nil
}

func (d Deps) myReferrals(ctx context.Context, inv Invocation) (*Reply, error) {
	stats, err := d.Leaderboard.StatsFor(ctx, inv.AuthorID)
	if err != nil {
		return nil, err
	}

	var refs []model.Referral
	for ref, err := range d.Ledger.ReferralsByInviter(ctx, inv.AuthorID) {
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	slices.SortStableFunc(refs, func(a, b model.Referral) int {
		return cmp.Compare(b.JoinedAt.UnixNano(), a.JoinedAt.UnixNano())
	})
	return ReferralsReply(stats, refs), nil
}

func (d Deps) validate(ctx context.Context, _ Invocation) (*Reply, error) {
	report, err := d.Engine.ValidateAll(ctx, d.Directory)
	if err != nil {
		return nil, err
	}
	if d.AfterValidation != nil {
		d.AfterValidation(ctx)
	}
	return ValidationReply(report), nil
}

func (d Deps) refreshBoard(ctx context.Context, _ Invocation) (*Reply, error) {
	report, err := d.Engine.ValidateAll(ctx, d.Directory)
	if err != nil {
		return nil, err
	}
	top, err := d.Leaderboard.TopInviters(ctx, d.BoardSize)
	if err != nil {
		return nil, err
	}
	if d.AfterValidation != nil {
		d.AfterValidation(ctx)
	}

	reply := LeaderboardReply(top, d.Prefix)
	reply.Footer = fmt.Sprintf("Refreshed: %d validated, %d rejected, %d still pending, %d skipped",
		report.Validated, report.Rejected, report.StillPending, len(report.Skipped))
	return reply, nil
}
