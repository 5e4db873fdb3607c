package logger_test

import (
	"bytes"
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"nrrp.app/referrals/common/logger"
)

var _ = Describe("LogFields", func() {
	It("returns empty fields for a bare context", func() {
		fields := logger.GetLogFields(context.Background())
		Expect(fields.InviteeID).To(BeNil())
		Expect(fields.Component).To(BeEmpty())
	})

	It("merges newer values over older ones and keeps the rest", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			InviteeID: logger.Ptr("111"),
			Component: "referrals.worker",
		})
		ctx = logger.WithLogFields(ctx, logger.LogFields{
			InviterID: logger.Ptr("222"),
			Component: "referrals.ledger",
		})

		fields := logger.GetLogFields(ctx)
		Expect(*fields.InviteeID).To(Equal("111"))
		Expect(*fields.InviterID).To(Equal("222"))
		Expect(fields.Component).To(Equal("referrals.ledger"))
	})

	It("adds context fields to every record through the trace handler", func() {
		var buf bytes.Buffer
		log := slog.New(logger.NewTraceHandler(slog.NewTextHandler(&buf, nil)))

		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			InviteeID: logger.Ptr("111"),
			RunID:     logger.Ptr(int64(42)),
			Command:   logger.Ptr("leaderboard"),
		})
		log.InfoContext(ctx, "hello")

		Expect(buf.String()).To(ContainSubstring("invitee_id=111"))
		Expect(buf.String()).To(ContainSubstring("run_id=42"))
		Expect(buf.String()).To(ContainSubstring("command=leaderboard"))
	})

	It("truncates long strings", func() {
		Expect(logger.Truncate("abcdef", 3)).To(Equal("abc..."))
		Expect(logger.Truncate("abc", 3)).To(Equal("abc"))
	})
})
