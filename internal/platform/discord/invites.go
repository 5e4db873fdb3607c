package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

type inviteSnapshot struct {
	code      string
	inviterID string
	inviter   string
	uses      int
	maxUses   int
}

// UsedInvite is the invite a joining member most likely came through.
type UsedInvite struct {
	Code        string
	InviterID   string
	InviterName string
}

// InviteTracker keeps the guild's invite use counts so a join can be
// attributed by diffing them.
type InviteTracker struct {
	api     API
	guildID string
	logger  *slog.Logger

	// resolveMu keeps concurrent joins from diffing against the same snapshot.
	resolveMu sync.Mutex

	mu    sync.Mutex
	cache map[string]inviteSnapshot
}

func NewInviteTracker(api API, guildID string, logger *slog.Logger) *InviteTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &InviteTracker{
		api:     api,
		guildID: guildID,
		logger:  logger,
		cache:   map[string]inviteSnapshot{},
	}
}

// Refresh replaces the cache with the guild's current invites.
func (t *InviteTracker) Refresh(ctx context.Context) error {
	invites, err := t.api.GuildInvites(t.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("listing invites: %w", err)
	}

	t.mu.Lock()
	t.cache = snapshot(invites)
	t.mu.Unlock()

	t.logger.InfoContext(ctx, "cached guild invites", "count", len(invites))
	return nil
}

func (t *InviteTracker) Add(invite *discordgo.Invite) {
	if invite == nil || invite.Code == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache[invite.Code] = toSnapshot(invite)
}

func (t *InviteTracker) Remove(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cache, code)
}

// Resolve fetches the current invites and returns the one whose use count
// went up since the last snapshot. A single-use invite that vanished counts
// as used. Nil means the join could not be attributed unambiguously.
func (t *InviteTracker) Resolve(ctx context.Context) (*UsedInvite, error) {
	t.resolveMu.Lock()
	defer t.resolveMu.Unlock()

	invites, err := t.api.GuildInvites(t.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}
	current := snapshot(invites)

	t.mu.Lock()
	previous := t.cache
	t.cache = current
	t.mu.Unlock()

	var candidates []inviteSnapshot
	for code, now := range current {
		before, known := previous[code]
		if (known && now.uses > before.uses) || (!known && now.uses > 0) {
			candidates = append(candidates, now)
		}
	}
	if len(candidates) == 0 {
		for code, before := range previous {
			if _, still := current[code]; !still && before.maxUses > 0 && before.uses+1 >= before.maxUses {
				candidates = append(candidates, before)
			}
		}
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		c := candidates[0]
		return &UsedInvite{Code: c.code, InviterID: c.inviterID, InviterName: c.inviter}, nil
	default:
		t.logger.WarnContext(ctx, "several invites changed during one join, leaving it unattributed",
			"candidates", len(candidates))
		return nil, nil
	}
}

func snapshot(invites []*discordgo.Invite) map[string]inviteSnapshot {
	out := make(map[string]inviteSnapshot, len(invites))
	for _, invite := range invites {
		if invite == nil || invite.Code == "" {
			continue
		}
		out[invite.Code] = toSnapshot(invite)
	}
	return out
}

func toSnapshot(invite *discordgo.Invite) inviteSnapshot {
	s := inviteSnapshot{
		code:    invite.Code,
		uses:    invite.Uses,
		maxUses: invite.MaxUses,
	}
	if invite.Inviter != nil {
		s.inviterID = invite.Inviter.ID
		s.inviter = invite.Inviter.Username
	}
	return s
}
