package leaderboard_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"nrrp.app/referrals/internal/ledger"
	"nrrp.app/referrals/internal/leaderboard"
	"nrrp.app/referrals/internal/model"
	"nrrp.app/referrals/internal/store/memstore"
)

var _ = Describe("Aggregator", func() {
	var (
		ctx  context.Context
		l    ledger.Ledger
		agg  leaderboard.Aggregator
		base time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		l = ledger.New(memstore.New(), ledger.Config{PageSize: 2}, nil)
		agg = leaderboard.New(l, nil)
		base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	})

	record := func(invitee, inviter string, offset time.Duration, status model.ReferralStatus) {
		params := ledger.JoinParams{InviteeID: invitee, JoinedAt: base.Add(offset)}
		if inviter != "" {
			name := "name-" + inviter
			params.InviterID = &inviter
			params.InviterName = &name
		}
		_, err := l.RecordJoin(ctx, params)
		Expect(err).NotTo(HaveOccurred())
		if status != model.ReferralStatusPending {
			_, err = l.SetStatus(ctx, invitee, status)
			Expect(err).NotTo(HaveOccurred())
		}
	}

	inviterIDs := func(stats []model.InviterStats) []string {
		ids := make([]string, 0, len(stats))
		for _, s := range stats {
			ids = append(ids, s.InviterID)
		}
		return ids
	}

	Describe("TopInviters", func() {
		It("rejects limits below one", func() {
			_, err := agg.TopInviters(ctx, 0)
			Expect(err).To(MatchError(leaderboard.ErrInvalidLimit))
		})

		It("returns an empty board when nothing is validated", func() {
			record("100", "1", 0, model.ReferralStatusPending)

			top, err := agg.TopInviters(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(top).To(BeEmpty())
		})

		It("orders by count, then earliest validated join, then inviter ID", func() {
			// "3" has three validations.
			record("300", "3", 5*time.Minute, model.ReferralStatusValidated)
			record("301", "3", 6*time.Minute, model.ReferralStatusValidated)
			record("302", "3", 7*time.Minute, model.ReferralStatusValidated)
			// "2" and "1" tie on two; "2" validated someone earlier.
			record("200", "2", 1*time.Minute, model.ReferralStatusValidated)
			record("201", "2", 9*time.Minute, model.ReferralStatusValidated)
			record("100", "1", 2*time.Minute, model.ReferralStatusValidated)
			record("101", "1", 3*time.Minute, model.ReferralStatusValidated)
			// "5" and "4" tie on count and time; ID decides.
			record("500", "5", 4*time.Minute, model.ReferralStatusValidated)
			record("400", "4", 4*time.Minute, model.ReferralStatusValidated)

			top, err := agg.TopInviters(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(inviterIDs(top)).To(Equal([]string{"3", "2", "1", "4", "5"}))
			Expect(top[0].ValidatedCount).To(Equal(3))
			Expect(top[1].FirstValidatedAt).To(Equal(base.Add(time.Minute)))
			Expect(top[0].InviterName).To(Equal("name-3"))
		})

		It("truncates to n and returns everyone when n is larger", func() {
			record("100", "1", 0, model.ReferralStatusValidated)
			record("101", "1", time.Minute, model.ReferralStatusValidated)
			record("200", "2", 0, model.ReferralStatusValidated)

			top, err := agg.TopInviters(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(inviterIDs(top)).To(Equal([]string{"1"}))

			all, err := agg.TopInviters(ctx, 50)
			Expect(err).NotTo(HaveOccurred())
			Expect(inviterIDs(all)).To(Equal([]string{"1", "2"}))
		})

		It("counts only validated, attributed referrals and fills pending counts", func() {
			record("100", "1", 0, model.ReferralStatusValidated)
			record("101", "1", time.Minute, model.ReferralStatusPending)
			record("102", "1", 2*time.Minute, model.ReferralStatusPending)
			record("103", "1", 3*time.Minute, model.ReferralStatusRejected)
			record("900", "", 0, model.ReferralStatusValidated)
			record("200", "2", 0, model.ReferralStatusPending)

			top, err := agg.TopInviters(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(top).To(HaveLen(1))
			Expect(top[0].InviterID).To(Equal("1"))
			Expect(top[0].ValidatedCount).To(Equal(1))
			Expect(top[0].PendingCount).To(Equal(2))
			Expect(top[0].Total()).To(Equal(3))
		})

		It("sums to the number of validated attributed referrals", func() {
			record("100", "1", 0, model.ReferralStatusValidated)
			record("101", "2", 0, model.ReferralStatusValidated)
			record("102", "2", 0, model.ReferralStatusValidated)
			record("103", "3", 0, model.ReferralStatusValidated)
			record("104", "3", 0, model.ReferralStatusRejected)

			top, err := agg.TopInviters(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			total := 0
			for _, s := range top {
				total += s.ValidatedCount
			}
			Expect(total).To(Equal(4))
		})
	})

	Describe("StatsFor", func() {
		It("returns zero counts for an unknown inviter", func() {
			stats, err := agg.StatsFor(ctx, "nobody")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(Equal(model.InviterStats{InviterID: "nobody"}))
		})

		It("counts every status", func() {
			record("100", "1", 0, model.ReferralStatusValidated)
			record("101", "1", 0, model.ReferralStatusPending)
			record("102", "1", 0, model.ReferralStatusRejected)
			record("103", "1", 0, model.ReferralStatusValidated)
			record("200", "2", 0, model.ReferralStatusValidated)

			stats, err := agg.StatsFor(ctx, "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.ValidatedCount).To(Equal(2))
			Expect(stats.PendingCount).To(Equal(1))
			Expect(stats.RejectedCount).To(Equal(1))
		})
	})
})

var _ = DescribeTable("Compare",
	func(a, b model.InviterStats, want int) {
		Expect(leaderboard.Compare(&a, &b)).To(Equal(want))
	},
	Entry("more validated first",
		model.InviterStats{InviterID: "b", ValidatedCount: 3},
		model.InviterStats{InviterID: "a", ValidatedCount: 2}, -1),
	Entry("earlier first validation wins a tie",
		model.InviterStats{InviterID: "b", ValidatedCount: 2, FirstValidatedAt: time.Unix(10, 0)},
		model.InviterStats{InviterID: "a", ValidatedCount: 2, FirstValidatedAt: time.Unix(20, 0)}, -1),
	Entry("inviter ID breaks the last tie",
		model.InviterStats{InviterID: "b", ValidatedCount: 2, FirstValidatedAt: time.Unix(10, 0)},
		model.InviterStats{InviterID: "a", ValidatedCount: 2, FirstValidatedAt: time.Unix(10, 0)}, 1),
)
