package discord_test

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"nrrp.app/referrals/internal/command"
	"nrrp.app/referrals/internal/leaderboard"
	"nrrp.app/referrals/internal/ledger"
	"nrrp.app/referrals/internal/model"
	"nrrp.app/referrals/internal/platform/discord"
	"nrrp.app/referrals/internal/store/memstore"
)

var _ = Describe("LeaderboardPoster", func() {
	var (
		ctx    context.Context
		api    *mockAPI
		l      ledger.Ledger
		poster *discord.LeaderboardPoster
	)

	BeforeEach(func() {
		ctx = context.Background()
		api = &mockAPI{}
		l = ledger.New(memstore.New(), ledger.Config{}, nil)
		poster = discord.NewLeaderboardPoster(api, "board", leaderboard.New(l, nil), 10, "!", nil)
	})

	It("posts the empty board", func() {
		Expect(poster.Post(ctx)).To(Succeed())
		Expect(api.sent).To(HaveLen(1))
		Expect(api.sent[0].Description).To(ContainSubstring("No referrals tracked yet"))
		Expect(api.sent[0].Timestamp).NotTo(BeEmpty())
		Expect(api.deleted).To(BeEmpty())
	})

	It("replaces the previous post", func() {
		name := "seven"
		_, err := l.RecordJoin(ctx, ledger.JoinParams{InviteeID: "101", InviterID: &name, InviterName: &name})
		Expect(err).NotTo(HaveOccurred())
		_, err = l.SetStatus(ctx, "101", model.ReferralStatusValidated)
		Expect(err).NotTo(HaveOccurred())

		Expect(poster.Post(ctx)).To(Succeed())
		Expect(poster.Post(ctx)).To(Succeed())

		Expect(api.deleted).To(Equal([]string{"m1"}))
		Expect(api.sent).To(HaveLen(2))
		Expect(api.sent[1].Fields[0].Value).To(ContainSubstring("1. seven"))
	})

	It("keeps posting when the previous message is already gone", func() {
		api.deleteFn = func(string, string) error {
			return restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage)
		}
		Expect(poster.Post(ctx)).To(Succeed())
		Expect(poster.Post(ctx)).To(Succeed())
		Expect(api.sent).To(HaveLen(2))
	})

	It("posts right away when run", func() {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			poster.Run(runCtx, time.Hour)
			close(done)
		}()

		Eventually(func() int {
			api.mu.Lock()
			defer api.mu.Unlock()
			return len(api.sent)
		}).Should(Equal(1))
		cancel()
		Eventually(done).Should(BeClosed())
	})
})

var _ = Describe("Embed", func() {
	It("renders every reply part", func() {
		at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		embed := discord.Embed(&command.Reply{
			Title:     "t",
			Fields:    []command.Field{{Name: "a", Value: "b", Inline: true}},
			Footer:    "f",
			Tone:      command.ToneError,
			Timestamp: at,
		})
		Expect(embed.Color).To(Equal(0xe74c3c))
		Expect(embed.Fields).To(HaveLen(1))
		Expect(embed.Fields[0].Inline).To(BeTrue())
		Expect(embed.Footer.Text).To(Equal("f"))
		Expect(embed.Timestamp).To(Equal("2024-06-01T00:00:00Z"))
	})

	It("omits empty footers and timestamps", func() {
		embed := discord.Embed(&command.Reply{Title: "t"})
		Expect(embed.Footer).To(BeNil())
		Expect(embed.Timestamp).To(BeEmpty())
	})
})
