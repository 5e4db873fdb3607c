package service_test

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"nrrp.app/referrals/core/config"
	"nrrp.app/referrals/internal/ledger"
	"nrrp.app/referrals/internal/service"
	"nrrp.app/referrals/internal/validation"
	"nrrp.app/referrals/internal/worker"
)

var _ = Describe("OpenStores", func() {
	It("opens a migrated sqlite store", func() {
		ctx := context.Background()
		stores, closeFn, err := service.OpenStores(ctx, config.DBConfig{
			Driver:     config.StorageDriverSQLite,
			SQLitePath: filepath.Join(GinkgoT().TempDir(), "referrals.db"),
			Timeout:    time.Second,
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(closeFn)

		svc := service.NewServices(service.ServicesConfig{Stores: stores, ValidationConcurrency: 2})
		inviter := "7"
		_, err = svc.Ledger().RecordJoin(ctx, ledger.JoinParams{InviteeID: "101", InviterID: &inviter})
		Expect(err).NotTo(HaveOccurred())

		stats, err := svc.Leaderboard().StatsFor(ctx, "7")
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.PendingCount).To(Equal(1))
	})

	It("rejects unknown drivers", func() {
		_, _, err := service.OpenStores(context.Background(), config.DBConfig{Driver: config.StorageDriver("mysql")})
		Expect(err).To(MatchError(ContainSubstring("unsupported storage driver")))
	})
})

type wrappedEngine struct {
	validation.Engine
}

var _ = Describe("NewServices", func() {
	It("applies the guard to the engine", func() {
		stores, closeFn, err := service.OpenStores(context.Background(), config.DBConfig{
			Driver:     config.StorageDriverSQLite,
			SQLitePath: filepath.Join(GinkgoT().TempDir(), "referrals.db"),
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(closeFn)

		var guarded *wrappedEngine
		svc := service.NewServices(service.ServicesConfig{
			Stores: stores,
			Guard: func(e validation.Engine) validation.Engine {
				guarded = &wrappedEngine{Engine: e}
				return guarded
			},
		})
		Expect(svc.Engine()).To(BeIdenticalTo(guarded))
	})
})

var _ = Describe("SweepGuard", func() {
	It("falls back to an in-process lock without redis", func() {
		guard := service.SweepGuard(nil, time.Minute)
		Expect(guard(&wrappedEngine{})).To(BeAssignableToTypeOf(&worker.GuardedEngine{}))
	})
})

var _ = Describe("ConnectRedis", func() {
	It("returns no client when the pipeline is disabled", func() {
		client, err := service.ConnectRedis(context.Background(), config.PipelineConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(client).To(BeNil())
	})

	It("rejects a malformed url", func() {
		_, err := service.ConnectRedis(context.Background(), config.PipelineConfig{RedisURL: "not a url"})
		Expect(err).To(MatchError(ContainSubstring("parsing redis url")))
	})
})
