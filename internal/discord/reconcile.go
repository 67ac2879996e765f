package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/charlesng35/rolewarden/internal/services"
)

const memberPageSize = 1000

// Reconcile walks every guild member and starts tracking holders of the
// tracked role that have no row yet, so grants made while the bot was offline
// still expire. Existing rows keep their original timestamps.
func (b *Bot) Reconcile(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var created, scanned int
	for _, guild := range b.session.State.Guilds {
		roleID, err := b.trackedRole(guild.ID)
		if err != nil {
			b.log.Warn("skipping guild during reconciliation",
				zap.String("guild_id", guild.ID),
				zap.Error(err),
			)
			continue
		}

		scopeID, err := parseSnowflake(guild.ID)
		if err != nil {
			continue
		}

		guildCreated, guildScanned, err := b.reconcileGuild(ctx, guild.ID, scopeID, roleID)
		if err != nil {
			return fmt.Errorf("discord: reconcile guild %s: %w", guild.ID, err)
		}
		created += guildCreated
		scanned += guildScanned
	}

	b.log.Info("reconciliation complete",
		zap.Int("members_scanned", scanned),
		zap.Int("grants_tracked", created),
	)
	return nil
}

func (b *Bot) reconcileGuild(ctx context.Context, guildID string, scopeID, roleID int64) (created, scanned int, err error) {
	roleSnowflake := formatSnowflake(roleID)
	after := ""

	for {
		if err := ctx.Err(); err != nil {
			return created, scanned, err
		}

		members, err := b.session.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return created, scanned, classifyAPIError(err)
		}
		if len(members) == 0 {
			return created, scanned, nil
		}
		next := pageCursor(members, after)

		for _, member := range members {
			if member.User == nil || member.User.Bot {
				continue
			}
			scanned++

			if !memberHasRole(member, roleSnowflake) {
				continue
			}

			subjectID, err := parseSnowflake(member.User.ID)
			if err != nil {
				continue
			}

			added, err := b.grants.EnsureTracked(ctx, subjectID, scopeID, roleID,
				services.UnknownAttribution, time.Now())
			if err != nil {
				return created, scanned, err
			}
			if added {
				created++
			}
		}

		// A cursor that did not advance would refetch the same page forever.
		if len(members) < memberPageSize || next == after {
			return created, scanned, nil
		}
		after = next
	}
}

// pageCursor returns the id of the last member on the page that carries a
// user, falling back to the current cursor when none does.
func pageCursor(members []*discordgo.Member, current string) string {
	for i := len(members) - 1; i >= 0; i-- {
		if members[i] != nil && members[i].User != nil {
			return members[i].User.ID
		}
	}
	return current
}

func memberHasRole(member *discordgo.Member, roleID string) bool {
	for _, r := range member.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}
