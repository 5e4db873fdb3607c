package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"nrrp.app/referrals/common/logger"
	"nrrp.app/referrals/internal/command"
	"nrrp.app/referrals/internal/leaderboard"
)

// LeaderboardPoster keeps one current leaderboard message in a channel,
// replacing the previous post on every Post.
type LeaderboardPoster struct {
	api         API
	channelID   string
	leaderboard leaderboard.Aggregator
	size        int
	prefix      string
	logger      *slog.Logger

	mu     sync.Mutex
	lastID string
}

func NewLeaderboardPoster(api API, channelID string, agg leaderboard.Aggregator, size int, prefix string, logger *slog.Logger) *LeaderboardPoster {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaderboardPoster{
		api:         api,
		channelID:   channelID,
		leaderboard: agg,
		size:        size,
		prefix:      prefix,
		logger:      logger,
	}
}

func (p *LeaderboardPoster) Post(ctx context.Context) error {
	top, err := p.leaderboard.TopInviters(ctx, p.size)
	if err != nil {
		return fmt.Errorf("computing leaderboard: %w", err)
	}
	embed := Embed(command.LeaderboardReply(top, p.prefix))
	embed.Timestamp = time.Now().UTC().Format(time.RFC3339)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastID != "" {
		err := p.api.ChannelMessageDelete(p.channelID, p.lastID, discordgo.WithContext(ctx))
		if err != nil && !isNotFound(err, discordgo.ErrCodeUnknownMessage) {
			p.logger.WarnContext(ctx, "failed to delete previous leaderboard", "message_id", p.lastID, "error", err)
		}
		p.lastID = ""
	}

	msg, err := p.api.ChannelMessageSendEmbed(p.channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("posting leaderboard: %w", err)
	}
	p.lastID = msg.ID
	p.logger.InfoContext(ctx, "leaderboard posted", "message_id", msg.ID, "inviters", len(top))
	return nil
}

// Run posts immediately and then on every interval until ctx is done.
func (p *LeaderboardPoster) Run(ctx context.Context, interval time.Duration) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "referrals.discord.poster"})
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.Post(ctx); err != nil {
			p.logger.ErrorContext(ctx, "scheduled leaderboard post failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
