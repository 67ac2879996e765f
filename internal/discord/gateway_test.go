package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

func roleAddChange(ids ...string) *discordgo.AuditLogChange {
	key := discordgo.AuditLogChangeKeyRoleAdd
	added := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		added = append(added, map[string]interface{}{"id": id, "name": "Tracked"})
	}
	return &discordgo.AuditLogChange{Key: &key, NewValue: added}
}

func TestAuditEntryAddsRole(t *testing.T) {
	entry := &discordgo.AuditLogEntry{
		Changes: []*discordgo.AuditLogChange{roleAddChange("3001")},
	}

	require.True(t, auditEntryAddsRole(entry, "3001"))
	require.False(t, auditEntryAddsRole(entry, "9999"))
	require.False(t, auditEntryAddsRole(nil, "3001"))
	require.False(t, auditEntryAddsRole(&discordgo.AuditLogEntry{}, "3001"))
}

func TestAuditEntryIgnoresRemoveChanges(t *testing.T) {
	key := discordgo.AuditLogChangeKeyRoleRemove
	entry := &discordgo.AuditLogEntry{
		Changes: []*discordgo.AuditLogChange{
			{Key: &key, NewValue: []interface{}{map[string]interface{}{"id": "3001"}}},
		},
	}
	require.False(t, auditEntryAddsRole(entry, "3001"))
}

func TestActorLabel(t *testing.T) {
	auditLog := &discordgo.GuildAuditLog{
		Users: []*discordgo.User{{ID: "77", Username: "mod"}},
	}

	require.Equal(t, "mod (ID: 77)", actorLabel(auditLog, "77"))
	require.Equal(t, "ID: 88", actorLabel(auditLog, "88"))
}

func TestMemberDisplayName(t *testing.T) {
	require.Equal(t, "Nickname", memberDisplayName(&discordgo.Member{
		Nick: "Nickname",
		User: &discordgo.User{Username: "login"},
	}))
	require.Equal(t, "login", memberDisplayName(&discordgo.Member{
		User: &discordgo.User{Username: "login"},
	}))
	require.Equal(t, "", memberDisplayName(nil))
}

func TestMatchRoleByName(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "1", Name: "Member"},
		{ID: "2", Name: "Trial Access"},
	}

	require.Equal(t, "2", matchRoleByName(roles, "trial access").ID)
	require.Equal(t, "2", matchRoleByName(roles, "Trial Access").ID)
	require.Nil(t, matchRoleByName(roles, "Moderator"))
}

func TestHasManageRoles(t *testing.T) {
	guild := &discordgo.Guild{
		Roles: []*discordgo.Role{
			{ID: "1", Permissions: discordgo.PermissionManageRoles},
			{ID: "2", Permissions: discordgo.PermissionSendMessages},
			{ID: "3", Permissions: discordgo.PermissionAdministrator},
		},
	}

	require.True(t, hasManageRoles(guild, &discordgo.Member{Roles: []string{"1"}}))
	require.True(t, hasManageRoles(guild, &discordgo.Member{Roles: []string{"3"}}))
	require.False(t, hasManageRoles(guild, &discordgo.Member{Roles: []string{"2"}}))
	require.False(t, hasManageRoles(nil, nil))
}

func TestMemberHasRole(t *testing.T) {
	member := &discordgo.Member{Roles: []string{"100", "200"}}
	require.True(t, memberHasRole(member, "200"))
	require.False(t, memberHasRole(member, "300"))
}

func TestPageCursorAdvancesToLastUser(t *testing.T) {
	members := []*discordgo.Member{
		{User: &discordgo.User{ID: "100"}},
		{User: &discordgo.User{ID: "200"}},
	}
	require.Equal(t, "200", pageCursor(members, "50"))
}

func TestPageCursorKeepsCurrentWhenPageHasNoUsers(t *testing.T) {
	members := []*discordgo.Member{{}, {}, nil}
	require.Equal(t, "50", pageCursor(members, "50"))
	require.Equal(t, "", pageCursor(nil, ""))
}
