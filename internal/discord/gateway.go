package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/charlesng35/rolewarden/internal/bot"
	apperrors "github.com/charlesng35/rolewarden/pkg/errors"
)

const auditLookbackEntries = 10

// sessionGateway adapts the discordgo session to the platform port used by
// the observer and sweeper. Lookups prefer the gateway state cache and fall
// back to the REST API.
type sessionGateway struct {
	session *discordgo.Session
}

func newSessionGateway(session *discordgo.Session) *sessionGateway {
	return &sessionGateway{session: session}
}

func (g *sessionGateway) ResolveScope(ctx context.Context, scopeID int64) (string, error) {
	guildID := formatSnowflake(scopeID)

	if guild, err := g.session.State.Guild(guildID); err == nil {
		return guild.Name, nil
	}

	guild, err := g.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classifyAPIError(err)
	}
	return guild.Name, nil
}

func (g *sessionGateway) ResolveSubject(ctx context.Context, scopeID, subjectID int64) (string, error) {
	guildID := formatSnowflake(scopeID)
	userID := formatSnowflake(subjectID)

	member, err := g.session.State.Member(guildID, userID)
	if err != nil {
		member, err = g.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		if err != nil {
			return "", classifyAPIError(err)
		}
	}
	return memberDisplayName(member), nil
}

func (g *sessionGateway) ResolveGrant(ctx context.Context, scopeID, grantID int64) (bot.GrantInfo, error) {
	guildID := formatSnowflake(scopeID)
	roleID := formatSnowflake(grantID)

	if role, err := g.session.State.Role(guildID, roleID); err == nil {
		return bot.GrantInfo{ID: grantID, Name: role.Name}, nil
	}

	roles, err := g.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return bot.GrantInfo{}, classifyAPIError(err)
	}
	for _, role := range roles {
		if role.ID == roleID {
			return bot.GrantInfo{ID: grantID, Name: role.Name}, nil
		}
	}
	return bot.GrantInfo{}, apperrors.ErrGrantNotFound.WithInternal(
		fmt.Errorf("role %s absent from guild %s", roleID, guildID))
}

func (g *sessionGateway) RevokeGrant(ctx context.Context, scopeID, subjectID, grantID int64, reason string) error {
	guildID := formatSnowflake(scopeID)

	if err := g.checkRoleRank(guildID, formatSnowflake(grantID)); err != nil {
		return err
	}

	err := g.session.GuildMemberRoleRemove(
		guildID,
		formatSnowflake(subjectID),
		formatSnowflake(grantID),
		discordgo.WithAuditLogReason(reason),
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return classifyAPIError(err)
	}
	return nil
}

// checkRoleRank rejects a revocation early when the state cache shows the
// bot's highest role does not outrank the target role. Missing cache data is
// not an error; the REST call will report the authoritative outcome.
func (g *sessionGateway) checkRoleRank(guildID, roleID string) error {
	guild, err := g.session.State.Guild(guildID)
	if err != nil || g.session.State.User == nil {
		return nil
	}
	member, err := g.session.State.Member(guildID, g.session.State.User.ID)
	if err != nil {
		return nil
	}

	var target *discordgo.Role
	botTop := -1
	for _, role := range guild.Roles {
		if role.ID == roleID {
			target = role
		}
		for _, memberRole := range member.Roles {
			if role.ID == memberRole && role.Position > botTop {
				botTop = role.Position
			}
		}
	}
	if target == nil {
		return nil
	}

	if botTop <= target.Position {
		return apperrors.ErrInsufficientPrivilege.WithInternal(
			fmt.Errorf("bot top role position %d does not outrank role position %d", botTop, target.Position))
	}
	return nil
}

func (g *sessionGateway) Notify(ctx context.Context, subjectID int64, message string) error {
	channel, err := g.session.UserChannelCreate(formatSnowflake(subjectID), discordgo.WithContext(ctx))
	if err != nil {
		return classifyAPIError(err)
	}

	if _, err := g.session.ChannelMessageSend(channel.ID, message, discordgo.WithContext(ctx)); err != nil {
		return classifyAPIError(err)
	}
	return nil
}

func (g *sessionGateway) GrantAttribution(ctx context.Context, scopeID, subjectID, grantID int64) (string, error) {
	guildID := formatSnowflake(scopeID)
	userID := formatSnowflake(subjectID)
	roleID := formatSnowflake(grantID)

	auditLog, err := g.session.GuildAuditLog(
		guildID,
		"",
		"",
		int(discordgo.AuditLogActionMemberRoleUpdate),
		auditLookbackEntries,
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return "", classifyAPIError(err)
	}

	for _, entry := range auditLog.AuditLogEntries {
		if entry.TargetID != userID || !auditEntryAddsRole(entry, roleID) {
			continue
		}
		return actorLabel(auditLog, entry.UserID), nil
	}
	return "", nil
}

func (g *sessionGateway) Latency() time.Duration {
	return g.session.HeartbeatLatency()
}

// auditEntryAddsRole reports whether the audit entry records the given role
// being added to its target.
func auditEntryAddsRole(entry *discordgo.AuditLogEntry, roleID string) bool {
	if entry == nil {
		return false
	}
	for _, change := range entry.Changes {
		if change == nil || change.Key == nil || *change.Key != discordgo.AuditLogChangeKeyRoleAdd {
			continue
		}
		added, ok := change.NewValue.([]interface{})
		if !ok {
			continue
		}
		for _, item := range added {
			role, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if id, ok := role["id"].(string); ok && id == roleID {
				return true
			}
		}
	}
	return false
}

func actorLabel(auditLog *discordgo.GuildAuditLog, actorID string) string {
	for _, user := range auditLog.Users {
		if user != nil && user.ID == actorID {
			return fmt.Sprintf("%s (ID: %s)", user.Username, actorID)
		}
	}
	return fmt.Sprintf("ID: %s", actorID)
}

func memberDisplayName(member *discordgo.Member) string {
	if member == nil {
		return ""
	}
	if member.Nick != "" {
		return member.Nick
	}
	if member.User != nil {
		return member.User.Username
	}
	return ""
}
