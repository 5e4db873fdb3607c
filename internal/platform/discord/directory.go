package discord

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"nrrp.app/referrals/internal/platform"
)

// roleTTL bounds how long a resolved role ID is trusted. A role that is
// deleted and recreated under the same name gets a new ID.
const roleTTL = 10 * time.Minute

// Directory answers member lookups from the guild's member list.
type Directory struct {
	api      API
	guildID  string
	roleName string
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	roleID     string
	resolvedAt time.Time
}

func NewDirectory(api API, guildID, requiredRole string, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		api:      api,
		guildID:  guildID,
		roleName: requiredRole,
		logger:   logger,
		now:      time.Now,
	}
}

func (d *Directory) Lookup(ctx context.Context, memberID string) (platform.MemberStatus, error) {
	roleID, err := d.requiredRoleID(ctx)
	if err != nil {
		return platform.MemberStatus{}, err
	}

	member, err := d.api.GuildMember(d.guildID, memberID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err, discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser) {
			return platform.MemberStatus{Present: false}, nil
		}
		return platform.MemberStatus{}, fmt.Errorf("%w: member %s: %w", platform.ErrLookup, memberID, err)
	}

	return platform.MemberStatus{
		Present:         true,
		HasRequiredRole: slices.Contains(member.Roles, roleID),
	}, nil
}

// requiredRoleID resolves the configured role name, caching it for roleTTL.
// Names match case-insensitively; a missing role fails every lookup until
// it exists. If a refresh fails the previous ID is kept.
func (d *Directory) requiredRoleID(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if d.roleID != "" && now.Sub(d.resolvedAt) < roleTTL {
		return d.roleID, nil
	}

	roles, err := d.api.GuildRoles(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		if d.roleID != "" {
			d.logger.WarnContext(ctx, "role refresh failed, keeping cached id", "role_id", d.roleID, "error", err)
			return d.roleID, nil
		}
		return "", fmt.Errorf("%w: listing roles: %w", platform.ErrLookup, err)
	}
	for _, role := range roles {
		if strings.EqualFold(role.Name, d.roleName) {
			if role.ID != d.roleID {
				d.logger.InfoContext(ctx, "resolved required role", "role", role.Name, "role_id", role.ID)
			}
			d.roleID = role.ID
			d.resolvedAt = now
			return d.roleID, nil
		}
	}
	d.roleID = ""
	return "", fmt.Errorf("%w: role %q not found in guild", platform.ErrLookup, d.roleName)
}
