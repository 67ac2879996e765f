package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/charlesng35/rolewarden/internal/bot"
	apperrors "github.com/charlesng35/rolewarden/pkg/errors"
)

const commandPrefix = "!"

const embedColor = 0x5865F2

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if m.GuildID == "" {
		return
	}

	name, args, ok := parseCommand(m.Content)
	if !ok {
		return
	}

	known, adminOnly := commandAccess(name)
	if !known {
		return
	}
	if adminOnly {
		perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
		if err != nil || perms&discordgo.PermissionAdministrator == 0 {
			b.reply(s, m, apperrors.ErrCommandForbidden.Message)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch name {
	case "status", "info", "статус":
		b.cmdStatus(ctx, s, m)
	case "ping":
		b.cmdPing(s, m)
	case "clear", "очистить":
		b.cmdClear(ctx, s, m)
	case "debug":
		b.cmdDebug(ctx, s, m)
	case "testrole":
		b.cmdTestRole(ctx, s, m, args)
	}
}

// parseCommand splits a message into a lowercased command name and its
// arguments. ok is false for anything that is not a prefixed command.
func parseCommand(content string) (string, []string, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, commandPrefix) {
		return "", nil, false
	}

	fields := strings.Fields(content[len(commandPrefix):])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// commandAccess reports whether a command name is recognised and whether it
// is restricted to administrators. Everything except the latency echo is
// admin-only; unknown commands are ignored without a rejection message.
func commandAccess(name string) (known, adminOnly bool) {
	switch name {
	case "status", "info", "статус", "clear", "очистить", "debug", "testrole":
		return true, true
	case "ping":
		return true, false
	}
	return false, false
}

func (b *Bot) cmdStatus(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	count, err := b.grants.Count(ctx)
	if err != nil {
		b.commandFailed(s, m, "status", err)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Role tracking status",
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Tracked role", Value: b.trackedRoleLabel(s, m.GuildID), Inline: true},
			{Name: "Pending revocations", Value: strconv.FormatInt(count, 10), Inline: true},
			{Name: "Expiry", Value: bot.FormatDuration(b.cfg.Expiry), Inline: true},
		},
	}
	if b.cfg.SweepSchedule != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Sweep schedule",
			Value:  b.cfg.SweepSchedule,
			Inline: true,
		})
	}

	oldest, ok, err := b.grants.Oldest(ctx)
	if err != nil {
		b.commandFailed(s, m, "status", err)
		return
	}
	if ok {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Oldest grant age",
			Value:  bot.FormatDuration(time.Since(oldest)),
			Inline: true,
		})
	}

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "Manage Roles",
		Value:  b.manageRolesLabel(s, m.GuildID),
		Inline: true,
	})

	if _, err := s.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		b.log.Debug("failed to send status embed", zap.Error(err))
	}
}

func (b *Bot) trackedRoleLabel(s *discordgo.Session, guildID string) string {
	roleID, err := b.trackedRole(guildID)
	if err != nil {
		return "unresolved"
	}

	if guild, err := s.State.Guild(guildID); err == nil {
		for _, role := range guild.Roles {
			if role.ID == formatSnowflake(roleID) {
				return fmt.Sprintf("%s (%d)", role.Name, roleID)
			}
		}
	}
	return formatSnowflake(roleID)
}

func (b *Bot) manageRolesLabel(s *discordgo.Session, guildID string) string {
	if s.State.User == nil {
		return "unknown"
	}
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return "unknown"
	}
	member, err := s.State.Member(guildID, s.State.User.ID)
	if err != nil {
		return "unknown"
	}
	if hasManageRoles(guild, member) {
		return "granted"
	}
	return "missing"
}

func (b *Bot) cmdPing(s *discordgo.Session, m *discordgo.MessageCreate) {
	b.reply(s, m, fmt.Sprintf("Pong! Gateway latency: %dms", s.HeartbeatLatency().Milliseconds()))
}

func (b *Bot) cmdClear(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	removed, err := b.grants.ClearAll(ctx)
	if err != nil {
		b.commandFailed(s, m, "clear", err)
		return
	}

	b.log.Info("pending revocations cleared by operator",
		zap.Int64("removed", removed),
		zap.String("operator_id", m.Author.ID),
	)
	b.reply(s, m, fmt.Sprintf("Cleared %d pending revocations.", removed))
}

func (b *Bot) cmdDebug(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	rows, err := b.grants.List(ctx, 10)
	if err != nil {
		b.commandFailed(s, m, "debug", err)
		return
	}
	if len(rows) == 0 {
		b.reply(s, m, "No pending revocations.")
		return
	}

	var sb strings.Builder
	sb.WriteString("```\n")
	for _, row := range rows {
		fmt.Fprintf(&sb, "subject %d  scope %d  role %d  granted %s ago by %s\n",
			row.SubjectID, row.ScopeID, row.GrantID,
			bot.FormatDuration(time.Since(row.GrantedAt)), row.GrantedBy)
	}
	sb.WriteString("```")
	b.reply(s, m, sb.String())
}

// cmdTestRole inserts a back-dated tracked grant so the next sweep can be
// exercised end to end. Arguments are an optional user id or mention (default
// is the invoking operator) and an optional grant age (default is the
// configured expiry, so the row is due immediately).
func (b *Bot) cmdTestRole(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	scopeID, err := parseSnowflake(m.GuildID)
	if err != nil {
		b.commandFailed(s, m, "testrole", err)
		return
	}
	subjectID, err := parseSnowflake(m.Author.ID)
	if err != nil {
		b.commandFailed(s, m, "testrole", err)
		return
	}

	age := b.cfg.Expiry
	for _, arg := range args {
		if id, idErr := parseUserArg(arg); idErr == nil {
			subjectID = id
			continue
		}
		if parsed, ageErr := time.ParseDuration(arg); ageErr == nil && parsed >= 0 {
			age = parsed
			continue
		}
		b.reply(s, m, "Usage: !testrole [user-id] [age], e.g. !testrole 25h or !testrole 1001 25h")
		return
	}
	roleID, err := b.trackedRole(m.GuildID)
	if err != nil {
		b.commandFailed(s, m, "testrole", err)
		return
	}

	grantedAt := time.Now().Add(-age)
	if err := b.grants.Upsert(ctx, subjectID, scopeID, roleID, "testrole command", grantedAt); err != nil {
		b.commandFailed(s, m, "testrole", err)
		return
	}

	b.reply(s, m, fmt.Sprintf("Tracked grant recorded as %s old; the next sweep will process it.",
		bot.FormatDuration(age)))
}

func (b *Bot) reply(s *discordgo.Session, m *discordgo.MessageCreate, text string) {
	if _, err := s.ChannelMessageSend(m.ChannelID, text); err != nil {
		b.log.Debug("failed to send reply", zap.Error(err))
	}
}

func (b *Bot) commandFailed(s *discordgo.Session, m *discordgo.MessageCreate, command string, err error) {
	b.log.Error("command failed",
		zap.String("command", command),
		zap.String("operator_id", m.Author.ID),
		zap.Error(err),
	)
	b.reply(s, m, "Command failed, check the bot logs.")
}
