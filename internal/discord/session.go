package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/charlesng35/rolewarden/internal/bot"
	"github.com/charlesng35/rolewarden/internal/services"
	"github.com/charlesng35/rolewarden/pkg/logger"
)

const (
	readyTimeout   = 30 * time.Second
	handlerTimeout = 15 * time.Second
)

// Config carries the gateway credentials and the tracked-role selection. When
// RoleID is zero the role is resolved per guild by case-insensitive name.
type Config struct {
	Token         string
	RoleID        int64
	RoleName      string
	Expiry        time.Duration
	SweepSchedule string
}

// Bot owns the Discord session: it feeds role-change events to per-guild
// observers, answers operator commands, and exposes the gateway used by the
// expiry sweeper.
type Bot struct {
	cfg     Config
	session *discordgo.Session
	grants  *services.GrantService
	gateway *sessionGateway
	log     *zap.Logger

	ready     chan struct{}
	readyOnce sync.Once

	mu        sync.Mutex
	roles     map[string]int64
	observers map[string]*bot.Observer
}

// New constructs the bot and registers its event handlers. The session is not
// opened until Start is called.
func New(cfg Config, grants *services.GrantService) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord: token is required")
	}
	if grants == nil {
		return nil, errors.New("discord: grant service is required")
	}
	if cfg.RoleID == 0 && strings.TrimSpace(cfg.RoleName) == "" {
		return nil, errors.New("discord: tracked role id or name is required")
	}

	session, err := discordgo.New("Bot " + strings.TrimSpace(cfg.Token))
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent

	b := &Bot{
		cfg:       cfg,
		session:   session,
		grants:    grants,
		gateway:   newSessionGateway(session),
		log:       logger.WithModule("discord"),
		ready:     make(chan struct{}),
		roles:     make(map[string]int64),
		observers: make(map[string]*bot.Observer),
	}

	session.AddHandler(b.handleReady)
	session.AddHandler(b.handleGuildCreate)
	session.AddHandler(b.handleMemberUpdate)
	session.AddHandler(b.handleMessage)

	return b, nil
}

// Start opens the gateway connection and blocks until the session reports
// ready or the context expires.
func (b *Bot) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}

	select {
	case <-b.ready:
		return nil
	case <-ctx.Done():
		_ = b.session.Close()
		return fmt.Errorf("discord: waiting for ready: %w", ctx.Err())
	case <-time.After(readyTimeout):
		_ = b.session.Close()
		return errors.New("discord: timed out waiting for ready")
	}
}

// Close shuts down the gateway connection.
func (b *Bot) Close() error {
	return b.session.Close()
}

// Gateway exposes the platform port backed by this session.
func (b *Bot) Gateway() bot.Gateway {
	return b.gateway
}

func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("gateway session ready",
		zap.String("username", r.User.Username),
		zap.Int("guilds", len(r.Guilds)),
	)

	if err := s.UpdateGameStatus(0, "watching role expiry"); err != nil {
		b.log.Debug("failed to set presence", zap.Error(err))
	}

	b.readyOnce.Do(func() { close(b.ready) })
}

func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	log := b.log.With(zap.String("guild_id", g.ID), zap.String("guild", g.Name))

	roleID, err := b.trackedRole(g.ID)
	if err != nil {
		log.Error("tracked role not found in guild", zap.Error(err))
		return
	}
	log.Info("guild joined", zap.Int64("role_id", roleID))

	if s.State.User == nil {
		return
	}
	member, err := s.State.Member(g.ID, s.State.User.ID)
	if err != nil {
		return
	}
	if !hasManageRoles(g.Guild, member) {
		log.Warn("bot lacks the Manage Roles permission; revocations will fail")
	}
}

func (b *Bot) handleMemberUpdate(s *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m.Member == nil || m.User == nil {
		return
	}
	if m.User.Bot {
		return
	}

	scopeID, err := parseSnowflake(m.GuildID)
	if err != nil {
		return
	}
	subjectID, err := parseSnowflake(m.User.ID)
	if err != nil {
		return
	}

	observer, err := b.observerFor(m.GuildID)
	if err != nil {
		b.log.Debug("member update for guild without tracked role",
			zap.String("guild_id", m.GuildID),
			zap.Error(err),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	after := parseRoleSet(m.Roles)
	if m.BeforeUpdate != nil {
		observer.HandleRoleChange(ctx, scopeID, subjectID, parseRoleSet(m.BeforeUpdate.Roles), after)
		return
	}

	// Without cached before-state the diff is unknowable, so reconcile
	// against the snapshot instead.
	observer.HandleSnapshot(ctx, scopeID, subjectID, after)
}

// trackedRole resolves the tracked role id for a guild, caching name lookups.
func (b *Bot) trackedRole(guildID string) (int64, error) {
	if b.cfg.RoleID != 0 {
		return b.cfg.RoleID, nil
	}

	b.mu.Lock()
	if id, ok := b.roles[guildID]; ok {
		b.mu.Unlock()
		return id, nil
	}
	b.mu.Unlock()

	guild, err := b.session.State.Guild(guildID)
	var roles []*discordgo.Role
	if err == nil {
		roles = guild.Roles
	} else {
		roles, err = b.session.GuildRoles(guildID)
		if err != nil {
			return 0, classifyAPIError(err)
		}
	}

	role := matchRoleByName(roles, b.cfg.RoleName)
	if role == nil {
		return 0, fmt.Errorf("role %q not found in guild %s", b.cfg.RoleName, guildID)
	}

	id, err := parseSnowflake(role.ID)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	b.roles[guildID] = id
	b.mu.Unlock()
	return id, nil
}

func (b *Bot) observerFor(guildID string) (*bot.Observer, error) {
	roleID, err := b.trackedRole(guildID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if observer, ok := b.observers[guildID]; ok {
		return observer, nil
	}
	observer := bot.NewObserver(b.grants, b.gateway, roleID)
	b.observers[guildID] = observer
	return observer, nil
}

func matchRoleByName(roles []*discordgo.Role, name string) *discordgo.Role {
	for _, role := range roles {
		if role != nil && strings.EqualFold(role.Name, name) {
			return role
		}
	}
	return nil
}

func hasManageRoles(guild *discordgo.Guild, member *discordgo.Member) bool {
	if guild == nil || member == nil {
		return false
	}

	var permissions int64
	for _, roleID := range member.Roles {
		for _, role := range guild.Roles {
			if role.ID == roleID {
				permissions |= role.Permissions
			}
		}
	}

	if permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return permissions&discordgo.PermissionManageRoles != 0
}
