package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"nrrp.app/referrals/core/config"
	"nrrp.app/referrals/internal/platform"
	"nrrp.app/referrals/internal/queue"
	"nrrp.app/referrals/internal/validation"
	"nrrp.app/referrals/internal/worker"
)

const sweepLockKey = "referrals:validation:lock"

// ConnectRedis returns nil, nil when the pipeline is disabled.
func ConnectRedis(ctx context.Context, cfg config.PipelineConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.RedisStream)
	return client, nil
}

// SweepGuard serializes validation sweeps through Redis when a client is
// given, or within this process otherwise.
func SweepGuard(client *redis.Client, ttl time.Duration) func(validation.Engine) validation.Engine {
	var lock worker.RunLock = &worker.LocalRunLock{}
	if client != nil {
		lock = worker.NewRedisRunLock(client, sweepLockKey, ttl)
	}
	return func(engine validation.Engine) validation.Engine {
		return worker.NewGuardedEngine(engine, lock)
	}
}

// NewEventPublisher hands member events to the worker through the stream, or
// applies them in-process when there is no Redis client.
func NewEventPublisher(ctx context.Context, client *redis.Client, cfg config.PipelineConfig, services *Services) platform.EventPublisher {
	if client == nil {
		slog.InfoContext(ctx, "redis not configured, member events are applied inline")
		return worker.NewInlinePublisher(worker.NewEventProcessor(services.Ledger(), services.Engine(), slog.Default()))
	}
	return queue.NewStreamPublisher(queue.NewRedisProducer(client, cfg.RedisStream, slog.Default()))
}
