package discord_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"nrrp.app/referrals/internal/platform"
	"nrrp.app/referrals/internal/platform/discord"
)

var _ = Describe("Directory", func() {
	var (
		ctx       context.Context
		api       *mockAPI
		directory *discord.Directory
	)

	BeforeEach(func() {
		ctx = context.Background()
		api = &mockAPI{
			rolesFn: func(string) ([]*discordgo.Role, error) {
				return []*discordgo.Role{{ID: "r1", Name: "Moderator"}, {ID: "r2", Name: "Resident"}}, nil
			},
			guildMemberFn: func(_, userID string) (*discordgo.Member, error) {
				switch userID {
				case "resident":
					return &discordgo.Member{Roles: []string{"r1", "r2"}}, nil
				case "newcomer":
					return &discordgo.Member{Roles: []string{"r1"}}, nil
				default:
					return nil, restError(http.StatusNotFound, discordgo.ErrCodeUnknownMember)
				}
			},
		}
		directory = discord.NewDirectory(api, "g1", "resident", nil)
	})

	DescribeTable("resolves membership",
		func(memberID string, want platform.MemberStatus) {
			got, err := directory.Lookup(ctx, memberID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("member with the role", "resident", platform.MemberStatus{Present: true, HasRequiredRole: true}),
		Entry("member without the role", "newcomer", platform.MemberStatus{Present: true}),
		Entry("member who left", "gone", platform.MemberStatus{}),
	)

	It("resolves the role name once", func() {
		for range 3 {
			_, err := directory.Lookup(ctx, "resident")
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(api.roleCalls).To(Equal(1))
	})

	Context("when the role is recreated", func() {
		var clock time.Time

		BeforeEach(func() {
			clock = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
			directory.SetClock(func() time.Time { return clock })

			_, err := directory.Lookup(ctx, "resident")
			Expect(err).NotTo(HaveOccurred())

			api.rolesFn = func(string) ([]*discordgo.Role, error) {
				return []*discordgo.Role{{ID: "r1", Name: "Moderator"}, {ID: "r9", Name: "Resident"}}, nil
			}
			api.guildMemberFn = func(string, string) (*discordgo.Member, error) {
				return &discordgo.Member{Roles: []string{"r1", "r9"}}, nil
			}
		})

		It("keeps the cached id until it expires", func() {
			clock = clock.Add(discord.RoleTTL - time.Second)
			got, err := directory.Lookup(ctx, "resident")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.HasRequiredRole).To(BeFalse())
			Expect(api.roleCalls).To(Equal(1))
		})

		It("picks up the new id once the cache expires", func() {
			clock = clock.Add(discord.RoleTTL)
			got, err := directory.Lookup(ctx, "resident")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(platform.MemberStatus{Present: true, HasRequiredRole: true}))
			Expect(api.roleCalls).To(Equal(2))
		})

		It("keeps the old id when the refresh fails", func() {
			api.rolesFn = func(string) ([]*discordgo.Role, error) {
				return nil, errors.New("gateway timeout")
			}
			api.guildMemberFn = func(string, string) (*discordgo.Member, error) {
				return &discordgo.Member{Roles: []string{"r2"}}, nil
			}
			clock = clock.Add(discord.RoleTTL)
			got, err := directory.Lookup(ctx, "resident")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.HasRequiredRole).To(BeTrue())
		})
	})

	It("treats an unknown user code as absent", func() {
		api.guildMemberFn = func(string, string) (*discordgo.Member, error) {
			return nil, restError(http.StatusBadRequest, discordgo.ErrCodeUnknownUser)
		}
		got, err := directory.Lookup(ctx, "x")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Present).To(BeFalse())
	})

	It("wraps other failures as lookup errors", func() {
		api.guildMemberFn = func(string, string) (*discordgo.Member, error) {
			return nil, restError(http.StatusTooManyRequests, 0)
		}
		_, err := directory.Lookup(ctx, "resident")
		Expect(err).To(MatchError(platform.ErrLookup))
	})

	It("fails lookups while the role does not exist", func() {
		directory = discord.NewDirectory(api, "g1", "citizen", nil)
		_, err := directory.Lookup(ctx, "resident")
		Expect(err).To(MatchError(platform.ErrLookup))
		Expect(err.Error()).To(ContainSubstring(`"citizen"`))
	})

	It("fails lookups when roles cannot be listed", func() {
		api.rolesFn = func(string) ([]*discordgo.Role, error) {
			return nil, errors.New("gateway timeout")
		}
		_, err := directory.Lookup(ctx, "resident")
		Expect(err).To(MatchError(platform.ErrLookup))
	})
})
