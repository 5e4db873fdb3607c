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

	"nrrp.app/referrals/common/id"
	"nrrp.app/referrals/common/logger"
	"nrrp.app/referrals/common/otel"
	"nrrp.app/referrals/core/config"
	"nrrp.app/referrals/internal/command"
	"nrrp.app/referrals/internal/platform/discord"
	"nrrp.app/referrals/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeBot)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel, config.ServiceTypeBot)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)

	slog.InfoContext(ctx, "referrals bot starting",
		"env", cfg.Env,
		"guild_id", cfg.Discord.GuildID,
		"required_role", cfg.Discord.RequiredRole)

	if err := id.Init(3); err != nil {
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
	if redisClient != nil {
		defer redisClient.Close()
	}

	services := service.NewServices(service.ServicesConfig{
		Stores:                stores,
		ValidationConcurrency: cfg.Validation.Concurrency,
		Guard:                 service.SweepGuard(redisClient, cfg.Validation.LockTTL),
	})

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create discord session", "error", err)
		os.Exit(1)
	}
	session.Identify.Intents = discord.Intents

	directory := discord.NewDirectory(session, cfg.Discord.GuildID, cfg.Discord.RequiredRole, slog.Default())

	var poster *discord.LeaderboardPoster
	deps := command.Deps{
		Ledger:      services.Ledger(),
		Engine:      services.Engine(),
		Leaderboard: services.Leaderboard(),
		Directory:   directory,
		BoardSize:   cfg.Leaderboard.Size,
		Prefix:      cfg.Discord.CommandPrefix,
	}
	if cfg.Discord.LeaderboardChannelID != "" {
		poster = discord.NewLeaderboardPoster(session, cfg.Discord.LeaderboardChannelID, services.Leaderboard(),
			cfg.Leaderboard.Size, cfg.Discord.CommandPrefix, slog.Default())
		deps.AfterValidation = func(ctx context.Context) {
			if err := poster.Post(ctx); err != nil {
				slog.ErrorContext(ctx, "failed to repost leaderboard", "error", err)
			}
		}
	}

	registry, err := command.NewRegistry(command.Definitions(deps), cfg.Discord.CommandPrefix,
		cfg.Discord.AllowedChannels(), slog.Default())
	if err != nil {
		slog.ErrorContext(ctx, "invalid command table", "error", err)
		os.Exit(1)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	invites := discord.NewInviteTracker(session, cfg.Discord.GuildID, slog.Default())
	bot := discord.NewBot(session, cfg.Discord.GuildID, invites, service.NewEventPublisher(ctx, redisClient, cfg.Pipeline, services), registry, slog.Default())
	bot.Register(runCtx, session)

	if err := session.Open(); err != nil {
		slog.ErrorContext(ctx, "failed to open discord gateway", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "discord gateway connected")

	posterDone := make(chan struct{})
	go func() {
		defer close(posterDone)
		if poster != nil {
			poster.Run(runCtx, cfg.Leaderboard.PostInterval)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down bot...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stop()
	if err := session.Close(); err != nil {
		slog.ErrorContext(ctx, "discord session close error", "error", err)
	}

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case <-posterDone:
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "bot shutdown complete")
}

const banner = `
 ___ ___ ___ ___ ___ ___  ___   _   _    ___   ___  ___ _____
| _ \ __| __| __| _ \ _ \/ _ \ /_\ | |  / __| | _ )/ _ \_   _|
|   / _|| _|| _||   /   / (_) / _ \| |__\__ \ | _ \ (_) || |
|_|_\___|_| |___|_|_\_|_\\___/_/ \_\____|___/ |___/\___/ |_|
`
