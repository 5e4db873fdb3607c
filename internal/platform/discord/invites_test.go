package discord_test

import (
	"context"

	"github.com/bwmarrin/discordgo"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"nrrp.app/referrals/internal/platform/discord"
)

var _ = Describe("InviteTracker", func() {
	var (
		ctx     context.Context
		api     *mockAPI
		current []*discordgo.Invite
		tracker *discord.InviteTracker
	)

	BeforeEach(func() {
		ctx = context.Background()
		current = []*discordgo.Invite{invite("aaa", "7", 3, 0), invite("bbb", "8", 0, 1)}
		api = &mockAPI{invitesFn: func(string) ([]*discordgo.Invite, error) { return current, nil }}
		tracker = discord.NewInviteTracker(api, "g1", nil)
		Expect(tracker.Refresh(ctx)).To(Succeed())
	})

	It("finds the invite whose use count went up", func() {
		current = []*discordgo.Invite{invite("aaa", "7", 4, 0), invite("bbb", "8", 0, 1)}
		used, err := tracker.Resolve(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(used).To(Equal(&discord.UsedInvite{Code: "aaa", InviterID: "7", InviterName: "user-7"}))
	})

	It("finds an invite created after the last snapshot", func() {
		current = append(current, invite("ccc", "9", 1, 0))
		used, err := tracker.Resolve(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(used.Code).To(Equal("ccc"))
	})

	It("ignores new invites that were not used", func() {
		tracker.Add(invite("ddd", "9", 0, 0))
		current = append(current, invite("ddd", "9", 0, 0))
		used, err := tracker.Resolve(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(used).To(BeNil())
	})

	It("attributes a vanished single-use invite", func() {
		current = []*discordgo.Invite{invite("aaa", "7", 3, 0)}
		used, err := tracker.Resolve(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(used.Code).To(Equal("bbb"))
		Expect(used.InviterID).To(Equal("8"))
	})

	It("does not attribute a revoked invite", func() {
		tracker.Remove("bbb")
		current = []*discordgo.Invite{invite("aaa", "7", 3, 0)}
		used, err := tracker.Resolve(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(used).To(BeNil())
	})

	It("leaves ambiguous joins unattributed", func() {
		current = []*discordgo.Invite{invite("aaa", "7", 4, 0), invite("bbb", "8", 1, 1)}
		used, err := tracker.Resolve(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(used).To(BeNil())
	})

	It("diffs against the snapshot taken by the previous join", func() {
		current = []*discordgo.Invite{invite("aaa", "7", 4, 0), invite("bbb", "8", 0, 1)}
		_, err := tracker.Resolve(ctx)
		Expect(err).NotTo(HaveOccurred())

		used, err := tracker.Resolve(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(used).To(BeNil())
	})
})
