package command_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"nrrp.app/referrals/internal/command"
	"nrrp.app/referrals/internal/leaderboard"
	"nrrp.app/referrals/internal/ledger"
	"nrrp.app/referrals/internal/model"
	"nrrp.app/referrals/internal/platform"
	"nrrp.app/referrals/internal/store"
	"nrrp.app/referrals/internal/store/memstore"
	"nrrp.app/referrals/internal/validation"
)

type mockReferralStore struct {
	store.ReferralStore
	listByStatusFn func(ctx context.Context, status model.ReferralStatus, page store.Page) ([]model.Referral, error)
}

func (m *mockReferralStore) ListByStatus(ctx context.Context, status model.ReferralStatus, page store.Page) ([]model.Referral, error) {
	if m.listByStatusFn != nil {
		return m.listByStatusFn(ctx, status, page)
	}
	return m.ReferralStore.ListByStatus(ctx, status, page)
}

func noop(context.Context, command.Invocation) (*command.Reply, error) {
	return &command.Reply{Title: "ok"}, nil
}

var _ = Describe("NewRegistry", func() {
	DescribeTable("rejects a malformed table",
		func(defs []command.Definition) {
			_, err := command.NewRegistry(defs, "!", nil, nil)
			Expect(err).To(HaveOccurred())
		},
		Entry("duplicate name", []command.Definition{
			{Name: "a", Capability: command.CapabilityPublic, Handler: noop},
			{Name: "a", Capability: command.CapabilityAdmin, Handler: noop},
		}),
		Entry("clash with help", []command.Definition{
			{Name: "help", Capability: command.CapabilityPublic, Handler: noop},
		}),
		Entry("missing handler", []command.Definition{
			{Name: "a", Capability: command.CapabilityPublic},
		}),
		Entry("unknown capability", []command.Definition{
			{Name: "a", Capability: command.Capability("owner"), Handler: noop},
		}),
		Entry("uppercase name", []command.Definition{
			{Name: "Leaderboard", Capability: command.CapabilityPublic, Handler: noop},
		}),
		Entry("empty name", []command.Definition{
			{Name: "", Capability: command.CapabilityPublic, Handler: noop},
		}),
	)

	It("adds help after the given commands", func() {
		r, err := command.NewRegistry([]command.Definition{
			{Name: "a", Capability: command.CapabilityPublic, Handler: noop},
		}, "!", nil, nil)
		Expect(err).NotTo(HaveOccurred())

		defs := r.Definitions()
		Expect(defs).To(HaveLen(2))
		Expect(defs[1].Name).To(Equal("help"))
	})
})

var _ = DescribeTable("Parse",
	func(content string, wantName string, wantArgs []string, wantOK bool) {
		name, args, ok := command.Parse(content, "!")
		Expect(ok).To(Equal(wantOK))
		Expect(name).To(Equal(wantName))
		if wantArgs == nil {
			Expect(args).To(BeEmpty())
		} else {
			Expect(args).To(Equal(wantArgs))
		}
	},
	Entry("plain", "!leaderboard", "leaderboard", nil, true),
	Entry("case and spacing", "  !LeaderBoard  ", "leaderboard", nil, true),
	Entry("arguments", "!validate now please", "validate", []string{"now", "please"}, true),
	Entry("no prefix", "leaderboard", "", nil, false),
	Entry("prefix only", "!", "", nil, false),
	Entry("other text", "hello !leaderboard", "", nil, false),
)

var _ = Describe("Registry.Dispatch", func() {
	var (
		ctx       context.Context
		mem       *memstore.Store
		mock      *mockReferralStore
		l         ledger.Ledger
		directory platform.LookupFunc
		reposts   int
		registry  *command.Registry
	)

	BeforeEach(func() {
		ctx = context.Background()
		mem = memstore.New()
		mock = &mockReferralStore{ReferralStore: mem}
		l = ledger.New(mock, ledger.Config{}, nil)
		directory = func(_ context.Context, id string) (platform.MemberStatus, error) {
			return platform.MemberStatus{Present: true, HasRequiredRole: id != "103"}, nil
		}
		reposts = 0

		lookup := platform.LookupFunc(func(ctx context.Context, id string) (platform.MemberStatus, error) {
			return directory(ctx, id)
		})
		deps := command.Deps{
			Ledger:          l,
			Engine:          validation.New(l, validation.Config{Concurrency: 2, NewRunID: func() int64 { return 42 }}, nil),
			Leaderboard:     leaderboard.New(l, nil),
			Directory:       lookup,
			BoardSize:       10,
			Prefix:          "!",
			AfterValidation: func(context.Context) { reposts++ },
		}
		var err error
		registry, err = command.NewRegistry(command.Definitions(deps), "!", []string{"c1", "c2"}, nil)
		Expect(err).NotTo(HaveOccurred())

		base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		for i, invitee := range []string{"101", "102", "103"} {
			name := "invitee-" + invitee
			_, err := l.RecordJoin(ctx, ledger.JoinParams{
				InviteeID:   invitee,
				InviterID:   strPtr("7"),
				InviterName: strPtr("seven"),
				InviteeName: &name,
				InviteCode:  strPtr("abc"),
				JoinedAt:    base.Add(time.Duration(i) * time.Hour),
			})
			Expect(err).NotTo(HaveOccurred())
		}
	})

	invoke := func(name, author string, admin bool) (*command.Reply, error) {
		return registry.Dispatch(ctx, command.Invocation{
			Name:      name,
			AuthorID:  author,
			ChannelID: "c1",
			IsAdmin:   admin,
		})
	}

	It("refuses commands outside the allowed channels", func() {
		reply, err := registry.Dispatch(ctx, command.Invocation{Name: "leaderboard", ChannelID: "elsewhere"})
		Expect(err).To(MatchError(command.ErrForbidden))
		Expect(reply.Title).To(Equal("Permission Error"))
		Expect(reply.Fields[1].Value).To(ContainSubstring("<#c1>"))
	})

	It("answers unknown commands with the help table", func() {
		reply, err := invoke("dance", "1", false)
		Expect(err).To(MatchError(command.ErrUnknownCommand))
		Expect(reply.Title).To(Equal("Command Not Found"))
		Expect(reply.Fields[0].Value).To(ContainSubstring("`!leaderboard`"))
		Expect(reply.Fields[0].Value).NotTo(ContainSubstring("`!validate`"))
	})

	It("lists admin commands in help for admins", func() {
		reply, err := invoke("help", "1", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Fields[0].Value).To(ContainSubstring("`!validate`"))
		Expect(reply.Fields[0].Value).To(ContainSubstring("`!refreshboard`"))
	})

	It("refuses admin commands from members", func() {
		_, err := invoke("validate", "1", false)
		Expect(err).To(MatchError(command.ErrForbidden))

		ref, err := l.GetReferral(ctx, "101")
		Expect(err).NotTo(HaveOccurred())
		Expect(ref.Status).To(Equal(model.ReferralStatusPending))
	})

	It("runs validation for admins and reports the batch", func() {
		reply, err := invoke("validate", "1", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Title).To(Equal("Validation Report"))
		Expect(reply.Fields[0].Value).To(ContainSubstring("Validated: 2"))
		Expect(reply.Fields[0].Value).To(ContainSubstring("Still pending: 1"))
		Expect(reply.Footer).To(Equal("Run 42"))
		Expect(reposts).To(Equal(1))
	})

	It("renders an empty leaderboard before anything is validated", func() {
		reply, err := invoke("leaderboard", "1", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Description).To(ContainSubstring("No referrals tracked yet"))
	})

	It("renders the leaderboard after a refresh", func() {
		reply, err := invoke("refreshboard", "1", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Fields[0].Value).To(ContainSubstring("1. seven"))
		Expect(reply.Footer).To(ContainSubstring("2 validated"))
		Expect(reply.Footer).To(HaveSuffix("0 skipped"))
		Expect(reposts).To(Equal(1))
	})

	It("counts invitees whose lookup failed in the refresh footer", func() {
		directory = func(_ context.Context, id string) (platform.MemberStatus, error) {
			if id == "102" {
				return platform.MemberStatus{}, fmt.Errorf("%w: gateway timeout", platform.ErrLookup)
			}
			return platform.MemberStatus{Present: true, HasRequiredRole: true}, nil
		}

		reply, err := invoke("refreshboard", "1", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Footer).To(Equal("Refreshed: 2 validated, 0 rejected, 0 still pending, 1 skipped"))

		ref, err := l.GetReferral(ctx, "102")
		Expect(err).NotTo(HaveOccurred())
		Expect(ref.Status).To(Equal(model.ReferralStatusPending))
	})

	It("lists the author's referrals newest first", func() {
		reply, err := invoke("myreferrals", "7", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Description).To(ContainSubstring("Total referrals: 3"))
		Expect(reply.Fields).To(HaveLen(3))
		Expect(reply.Fields[0].Name).To(Equal("invitee-103"))
		Expect(reply.Fields[2].Value).To(ContainSubstring("Status: Pending"))
		Expect(reply.Fields[2].Value).To(ContainSubstring("Joined: 2024-06-01"))
	})

	It("tells members without referrals so", func() {
		reply, err := invoke("myreferrals", "nobody", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Description).To(Equal("You haven't invited anyone yet!"))
	})

	It("replies with a generic failure when the store is unavailable", func() {
		mock.listByStatusFn = func(context.Context, model.ReferralStatus, store.Page) ([]model.Referral, error) {
			return nil, store.ErrUnavailable
		}

		reply, err := invoke("leaderboard", "1", false)
		Expect(err).To(MatchError(store.ErrUnavailable))
		Expect(reply.Title).To(Equal("Error Occurred"))
		Expect(reply.Description).NotTo(ContainSubstring("unavailable"))
	})
})

var _ = Describe("ReferralsReply", func() {
	It("caps the number of fields", func() {
		refs := make([]model.Referral, 25)
		for i := range refs {
			refs[i] = model.Referral{InviteeID: "x", Status: model.ReferralStatusPending}
		}

		reply := command.ReferralsReply(model.InviterStats{PendingCount: 25}, refs)
		Expect(reply.Fields).To(HaveLen(20))
		Expect(reply.Footer).To(Equal("...and 5 more"))
	})
})

func strPtr(s string) *string {
	return &s
}
