package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"nrrp.app/referrals/common/id"
	"nrrp.app/referrals/common/logger"
	"nrrp.app/referrals/common/otel"
	"nrrp.app/referrals/core/config"
	"nrrp.app/referrals/internal/http/middleware"
	httprouter "nrrp.app/referrals/internal/http/router"
	"nrrp.app/referrals/internal/platform"
	"nrrp.app/referrals/internal/platform/discord"
	"nrrp.app/referrals/internal/service"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, config.ServiceTypeServer)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "referrals api starting", "env", cfg.Env, "storage", cfg.DB.Driver)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
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

	var directory platform.MemberDirectory
	if cfg.Discord.Enabled() {
		session, err := discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create discord session", "error", err)
			os.Exit(1)
		}
		directory = discord.NewDirectory(session, cfg.Discord.GuildID, cfg.Discord.RequiredRole, slog.Default())
		slog.InfoContext(ctx, "discord directory enabled", "guild_id", cfg.Discord.GuildID)
	} else {
		slog.InfoContext(ctx, "discord not configured, admin validation disabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services, directory, service.NewEventPublisher(ctx, redisClient, cfg.Pipeline, services))
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // admin sweeps run inside the request
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, services *service.Services, directory platform.MemberDirectory, publisher platform.EventPublisher) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		AdminAPIKey:     cfg.AdminAPIKey,
		TraceHeaderName: cfg.Pipeline.TraceHeaderName,
		LeaderboardSize: cfg.Leaderboard.Size,
		Directory:       directory,
		Publisher:       publisher,
	})

	return router
}

const banner = `
 ___ ___ ___ ___ ___ ___  ___   _   _    ___     _   ___ ___
| _ \ __| __| __| _ \ _ \/ _ \ /_\ | |  / __|   /_\ | _ \_ _|
|   / _|| _|| _||   /   / (_) / _ \| |__\__ \  / _ \|  _/| |
|_|_\___|_| |___|_|_\_|_\\___/_/ \_\____|___/ /_/ \_\_| |___|
`
