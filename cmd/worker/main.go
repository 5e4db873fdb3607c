package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"nrrp.app/referrals/common/id"
	"nrrp.app/referrals/common/logger"
	"nrrp.app/referrals/common/otel"
	"nrrp.app/referrals/core/config"
	"nrrp.app/referrals/internal/platform/discord"
	"nrrp.app/referrals/internal/queue"
	"nrrp.app/referrals/internal/service"
	"nrrp.app/referrals/internal/validation"
	"nrrp.app/referrals/internal/worker"
)

const maxAttempts = 3

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel, config.ServiceTypeWorker)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)

	slog.InfoContext(ctx, "referrals worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	// Node IDs differ per process type so snowflakes never collide.
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	stores, closeStores, err := service.OpenStores(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open storage", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	redisClient, err := service.ConnectRedis(ctx, cfg.Pipeline)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	services := service.NewServices(service.ServicesConfig{
		Stores:                stores,
		ValidationConcurrency: cfg.Validation.Concurrency,
		Guard:                 service.SweepGuard(redisClient, cfg.Validation.LockTTL),
	})

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    10,
		Block:        5 * time.Second,
		MaxAttempts:  maxAttempts,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	processor := worker.NewEventProcessor(services.Ledger(), services.Engine(), slog.Default())
	w := worker.New(consumer, processor, worker.Config{
		MaxAttempts: maxAttempts,
	})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  cfg.Pipeline.RedisConsumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  1 * time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create discord session", "error", err)
		os.Exit(1)
	}
	directory := discord.NewDirectory(session, cfg.Discord.GuildID, cfg.Discord.RequiredRole, slog.Default())

	scheduler := worker.NewValidationScheduler(services.Engine(), directory, worker.SchedulerConfig{
		Interval: cfg.Validation.Interval,
	})
	scheduler.OnReport = func(ctx context.Context, report *validation.BatchReport) {
		if len(report.Skipped) > 0 {
			slog.WarnContext(ctx, "scheduled sweep skipped invitees",
				"run_id", report.RunID,
				"skipped", len(report.Skipped))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		reclaimer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop the quick loops first; the worker may be mid-batch.
	reclaimer.Stop()
	scheduler.Stop()
	w.Stop()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-done:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
 ___ ___ ___ ___ ___ ___  ___   _   _    ___  __      _____  ___ _  _____ ___
| _ \ __| __| __| _ \ _ \/ _ \ /_\ | |  / __| \ \    / / _ \| _ \ |/ / __| _ \
|   / _|| _|| _||   /   / (_) / _ \| |__\__ \  \ \/\/ / (_) |   / ' <| _||   /
|_|_\___|_| |___|_|_\_|_\\___/_/ \_\____|___/   \_/\_/ \___/|_|_\_|\_\___|_|_\
`
