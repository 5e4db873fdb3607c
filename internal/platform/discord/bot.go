package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"nrrp.app/referrals/common/logger"
	"nrrp.app/referrals/internal/command"
	"nrrp.app/referrals/internal/platform"
)

// Intents the bot needs: member join/leave, invite changes and prefix
// commands in guild text channels.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildInvites |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

// Bot turns gateway events into member events and command replies.
type Bot struct {
	api       API
	guildID   string
	invites   *InviteTracker
	publisher platform.EventPublisher
	registry  *command.Registry
	logger    *slog.Logger
}

func NewBot(api API, guildID string, invites *InviteTracker, publisher platform.EventPublisher, registry *command.Registry, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:       api,
		guildID:   guildID,
		invites:   invites,
		publisher: publisher,
		registry:  registry,
		logger:    logger,
	}
}

// Register subscribes the bot's handlers on the session. ctx is the parent of
// every handler invocation.
func (b *Bot) Register(ctx context.Context, s *discordgo.Session) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "referrals.discord.bot"})

	s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Ready) {
		b.HandleReady(ctx)
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.InviteCreate) {
		b.HandleInviteCreate(ctx, e)
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.InviteDelete) {
		b.HandleInviteDelete(ctx, e)
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
		if err := b.HandleMemberAdd(ctx, e); err != nil {
			b.logger.ErrorContext(ctx, "failed to publish join", "error", err)
		}
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
		if err := b.HandleMemberRemove(ctx, e); err != nil {
			b.logger.ErrorContext(ctx, "failed to publish leave", "error", err)
		}
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) {
		if err := b.HandleMessage(ctx, e); err != nil {
			b.logger.ErrorContext(ctx, "failed to answer command", "error", err)
		}
	})
}

func (b *Bot) HandleReady(ctx context.Context) {
	if err := b.invites.Refresh(ctx); err != nil {
		// Joins until the next refresh are recorded unattributed.
		b.logger.ErrorContext(ctx, "failed to cache invites", "error", err)
	}
}

func (b *Bot) HandleInviteCreate(ctx context.Context, e *discordgo.InviteCreate) {
	if e.GuildID != b.guildID || e.Invite == nil {
		return
	}
	b.invites.Add(e.Invite)
	b.logger.DebugContext(ctx, "invite created", "code", e.Code)
}

func (b *Bot) HandleInviteDelete(ctx context.Context, e *discordgo.InviteDelete) {
	if e.GuildID != b.guildID {
		return
	}
	b.invites.Remove(e.Code)
	b.logger.DebugContext(ctx, "invite deleted", "code", e.Code)
}

func (b *Bot) HandleMemberAdd(ctx context.Context, e *discordgo.GuildMemberAdd) error {
	if e.Member == nil || e.User == nil || e.GuildID != b.guildID || e.User.Bot {
		return nil
	}

	span := logger.StartSpan(ctx, "discord.member_add")
	defer span.End()
	ctx = logger.WithLogFields(span.Context(), logger.LogFields{InviteeID: &e.User.ID})

	event := platform.MemberEvent{
		Kind:        platform.EventKindJoined,
		InviteeID:   e.User.ID,
		InviteeName: logger.Ptr(e.User.Username),
		At:          joinedAt(e.Member),
	}

	used, err := b.invites.Resolve(ctx)
	if err != nil {
		b.logger.WarnContext(ctx, "could not resolve invite, recording join unattributed", "error", err)
	}
	if used != nil {
		event.InviteCode = logger.Ptr(used.Code)
		if used.InviterID != "" {
			event.InviterID = logger.Ptr(used.InviterID)
			event.InviterName = logger.Ptr(used.InviterName)
		}
		b.logger.InfoContext(ctx, "join attributed", "code", used.Code, "inviter_id", used.InviterID)
	}

	if err := b.publisher.Publish(ctx, event); err != nil {
		span.RecordError(err)
		return fmt.Errorf("publishing join of %s: %w", e.User.ID, err)
	}
	return nil
}

func (b *Bot) HandleMemberRemove(ctx context.Context, e *discordgo.GuildMemberRemove) error {
	if e.Member == nil || e.User == nil || e.GuildID != b.guildID || e.User.Bot {
		return nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{InviteeID: &e.User.ID})
	if err := b.publisher.Publish(ctx, platform.MemberEvent{
		Kind:      platform.EventKindLeft,
		InviteeID: e.User.ID,
		At:        time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("publishing leave of %s: %w", e.User.ID, err)
	}
	return nil
}

func (b *Bot) HandleMessage(ctx context.Context, e *discordgo.MessageCreate) error {
	if e.Message == nil || e.Author == nil || e.Author.Bot || e.GuildID != b.guildID {
		return nil
	}
	name, args, ok := command.Parse(e.Content, b.registry.Prefix())
	if !ok {
		return nil
	}

	span := logger.StartSpan(ctx, "discord.command")
	defer span.End()
	ctx = span.Context()

	inv := command.Invocation{
		Name:       name,
		Args:       args,
		AuthorID:   e.Author.ID,
		AuthorName: e.Author.Username,
		ChannelID:  e.ChannelID,
		IsAdmin:    b.isAdmin(ctx, e.Author.ID, e.ChannelID),
	}

	reply, dispatchErr := b.registry.Dispatch(ctx, inv)
	if dispatchErr != nil {
		span.RecordError(dispatchErr)
	}
	if reply == nil {
		return dispatchErr
	}
	if _, err := b.api.ChannelMessageSendEmbed(e.ChannelID, Embed(reply), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sending reply to %s: %w", e.ChannelID, err)
	}
	return nil
}

func (b *Bot) isAdmin(ctx context.Context, userID, channelID string) bool {
	perms, err := b.api.UserChannelPermissions(userID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		b.logger.WarnContext(ctx, "permission lookup failed, treating author as member",
			"author_id", userID, "error", err)
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}

func joinedAt(m *discordgo.Member) time.Time {
	if m.JoinedAt.IsZero() {
		return time.Now().UTC()
	}
	return m.JoinedAt.UTC()
}
