package discord_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"

	"nrrp.app/referrals/internal/platform"
)

// mockAPI answers from function fields and records sends and deletes.
type mockAPI struct {
	mu sync.Mutex

	guildMemberFn func(guildID, userID string) (*discordgo.Member, error)
	rolesFn       func(guildID string) ([]*discordgo.Role, error)
	invitesFn     func(guildID string) ([]*discordgo.Invite, error)
	permsFn       func(userID, channelID string) (int64, error)
	deleteFn      func(channelID, messageID string) error

	roleCalls int
	sent      []*discordgo.MessageEmbed
	sentTo    []string
	deleted   []string
	nextMsgID int
}

func (m *mockAPI) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	return m.guildMemberFn(guildID, userID)
}

func (m *mockAPI) GuildRoles(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	m.mu.Lock()
	m.roleCalls++
	m.mu.Unlock()
	return m.rolesFn(guildID)
}

func (m *mockAPI) GuildInvites(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Invite, error) {
	return m.invitesFn(guildID)
}

func (m *mockAPI) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMsgID++
	m.sent = append(m.sent, embed)
	m.sentTo = append(m.sentTo, channelID)
	return &discordgo.Message{ID: fmt.Sprintf("m%d", m.nextMsgID), ChannelID: channelID}, nil
}

func (m *mockAPI) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, messageID)
	m.mu.Unlock()
	if m.deleteFn != nil {
		return m.deleteFn(channelID, messageID)
	}
	return nil
}

func (m *mockAPI) UserChannelPermissions(userID, channelID string, _ ...discordgo.RequestOption) (int64, error) {
	if m.permsFn != nil {
		return m.permsFn(userID, channelID)
	}
	return 0, nil
}

type mockPublisher struct {
	mu        sync.Mutex
	events    []platform.MemberEvent
	publishFn func(ctx context.Context, event platform.MemberEvent) error
}

func (m *mockPublisher) Publish(ctx context.Context, event platform.MemberEvent) error {
	if m.publishFn != nil {
		if err := m.publishFn(ctx, event); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "error"},
	}
}

func invite(code, inviterID string, uses, maxUses int) *discordgo.Invite {
	return &discordgo.Invite{
		Code:    code,
		Inviter: &discordgo.User{ID: inviterID, Username: "user-" + inviterID},
		Uses:    uses,
		MaxUses: maxUses,
	}
}
