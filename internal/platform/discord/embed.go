package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"nrrp.app/referrals/internal/command"
)

const (
	colorInfo  = 0x3498db
	colorError = 0xe74c3c
)

// Embed renders a command reply as a Discord embed.
func Embed(reply *command.Reply) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       reply.Title,
		Description: reply.Description,
		Color:       colorInfo,
	}
	if reply.Tone == command.ToneError {
		embed.Color = colorError
	}
	for _, f := range reply.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if reply.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: reply.Footer}
	}
	if !reply.Timestamp.IsZero() {
		embed.Timestamp = reply.Timestamp.UTC().Format(time.RFC3339)
	}
	return embed
}
