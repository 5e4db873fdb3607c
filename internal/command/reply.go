package command

import (
	"fmt"
	"strings"
	"time"

	"nrrp.app/referrals/internal/model"
	"nrrp.app/referrals/internal/validation"
)

type Tone string

const (
	ToneInfo  Tone = "info"
	ToneError Tone = "error"
)

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Reply is a platform-neutral rich message. The Discord adapter renders it
// as an embed.
type Reply struct {
	Title       string
	Description string
	Fields      []Field
	Footer      string
	Tone        Tone
	Timestamp   time.Time
}

// maxReferralFields keeps !myreferrals under the platform's per-message field cap.
const maxReferralFields = 20

const blankLine = "\n\u200b"

func (r *Registry) help(notFound, isAdmin bool) *Reply {
	var lines []string
	for _, def := range r.Definitions() {
		if def.Capability == CapabilityAdmin && !isAdmin {
			continue
		}
		lines = append(lines, fmt.Sprintf("•  `%s%s` - %s", r.prefix, def.Name, def.Description))
	}

	reply := &Reply{
		Title:       "Available Commands",
		Description: "Here are the available commands:",
		Fields:      []Field{{Name: "Available Commands", Value: strings.Join(lines, "\n")}},
		Footer:      "Tip: Use these commands in the designated channels",
		Tone:        ToneInfo,
	}
	if notFound {
		reply.Title = "Command Not Found"
		reply.Description = "That command doesn't exist. Here are the available commands:"
		reply.Tone = ToneError
	}
	return reply
}

func permissionReply(channelIDs []string) *Reply {
	channels := "any channel"
	if len(channelIDs) > 0 {
		mentions := make([]string, 0, len(channelIDs))
		for _, id := range channelIDs {
			mentions = append(mentions, "• <#"+id+">")
		}
		channels = strings.Join(mentions, "\n")
	}
	return &Reply{
		Title:       "Permission Error",
		Description: "You don't have permission to use this command or you're using it in the wrong channel.",
		Fields: []Field{
			{
				Name: "What happened?",
				Value: "This could be because:\n" +
					"• You're using the command in the wrong channel\n" +
					"• You don't have the required permissions",
			},
			{Name: "Solution", Value: "Try using the command in the designated channels:\n" + channels},
		},
		Tone: ToneError,
	}
}

func failureReply() *Reply {
	return &Reply{
		Title:       "Error Occurred",
		Description: "Something went wrong while handling that command.",
		Fields: []Field{{
			Name:  "What to do?",
			Value: "Please try again later or contact an administrator if the problem persists.",
		}},
		Tone:      ToneError,
		Timestamp: time.Now(),
	}
}

func displayName(name *string, id string) string {
	if name != nil && *name != "" {
		return *name
	}
	return "User " + id
}

// LeaderboardReply renders the ranked table. An empty board explains how to
// get on it.
func LeaderboardReply(top []model.InviterStats, prefix string) *Reply {
	if len(top) == 0 {
		return &Reply{
			Title:       "Referral Leaderboard",
			Description: "No referrals tracked yet! Be the first one to invite someone!" + blankLine,
			Fields: []Field{
				{Name: "How to Start?", Value: "Create an invite link and share it with your friends!" + blankLine},
				{Name: "Available Commands", Value: fmt.Sprintf(
					"•   `%smyreferrals` - View your referral history\n•   `%sleaderboard` - Show the referral rankings",
					prefix, prefix)},
			},
			Footer: "Tip: Your invites will appear here once someone joins using your invite link!",
			Tone:   ToneInfo,
		}
	}

	var b strings.Builder
	b.WriteString("```\n")
	fmt.Fprintf(&b, "%-21s %9s %9s %7s\n", "Inviter", "Verified", "Pending", "Total")
	b.WriteString(strings.Repeat("─", 49) + "\n")
	for i, stats := range top {
		name := stats.InviterName
		if name == "" {
			name = "User " + stats.InviterID
		}
		fmt.Fprintf(&b, "%-21s %9d %9d %7d\n",
			fmt.Sprintf("%d. %s", i+1, truncateRunes(name, 17)),
			stats.ValidatedCount, stats.PendingCount, stats.Total())
	}
	b.WriteString("```")

	return &Reply{
		Title:       "Referral Leaderboard",
		Description: "**Reminder:** The joinee needs the required role for your invite to be verified!" + blankLine,
		Fields:      []Field{{Name: "\u200b", Value: b.String()}},
		Tone:        ToneInfo,
	}
}

func statusLabel(status model.ReferralStatus) string {
	switch status {
	case model.ReferralStatusValidated:
		return "Validated"
	case model.ReferralStatusRejected:
		return "Left Server"
	default:
		return "Pending"
	}
}

// ReferralsReply renders one inviter's referral history, newest first.
func ReferralsReply(stats model.InviterStats, refs []model.Referral) *Reply {
	if len(refs) == 0 {
		return &Reply{
			Title:       "Your Referrals",
			Description: "You haven't invited anyone yet!",
			Tone:        ToneInfo,
		}
	}

	reply := &Reply{
		Title: "Your Referrals",
		Description: fmt.Sprintf("Total referrals: %d (validated %d, pending %d, left %d)",
			len(refs), stats.ValidatedCount, stats.PendingCount, stats.RejectedCount),
		Tone: ToneInfo,
	}
	for i, ref := range refs {
		if i == maxReferralFields {
			reply.Footer = fmt.Sprintf("...and %d more", len(refs)-maxReferralFields)
			break
		}
		code := "unknown"
		if ref.InviteCode != nil && *ref.InviteCode != "" {
			code = *ref.InviteCode
		}
		reply.Fields = append(reply.Fields, Field{
			Name: displayName(ref.InviteeName, ref.InviteeID),
			Value: fmt.Sprintf("Status: %s\nJoined: %s\nInvite Used: %s",
				statusLabel(ref.Status), ref.JoinedAt.Format(time.DateOnly), code),
		})
	}
	return reply
}

// ValidationReply summarizes a batch run.
func ValidationReply(report *validation.BatchReport) *Reply {
	summary := fmt.Sprintf("Validated: %d\nRejected: %d\nStill pending: %d\nSkipped: %d",
		report.Validated, report.Rejected, report.StillPending, len(report.Skipped))
	reply := &Reply{
		Title:     "Validation Report",
		Fields:    []Field{{Name: "Summary", Value: summary}},
		Footer:    fmt.Sprintf("Run %d", report.RunID),
		Tone:      ToneInfo,
		Timestamp: report.FinishedAt,
	}
	if len(report.Skipped) > 0 {
		ids := make([]string, 0, len(report.Skipped))
		for i, s := range report.Skipped {
			if i == 10 {
				ids = append(ids, fmt.Sprintf("...and %d more", len(report.Skipped)-10))
				break
			}
			ids = append(ids, "<@"+s.InviteeID+">")
		}
		reply.Fields = append(reply.Fields, Field{Name: "Could not be checked", Value: strings.Join(ids, "\n")})
	}
	return reply
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
