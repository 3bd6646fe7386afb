package bot

import (
	"context"
	"sync"
	"time"

	"modwarden/internal/analytics"
	"modwarden/internal/coalesce"
	"modwarden/internal/config"
	"modwarden/internal/moderation"
	"modwarden/internal/modules/audit"
	"modwarden/internal/storage"
	"modwarden/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *storage.Store
	audit      *audit.Logger
	analytics  *analytics.Service
	moderation *moderation.Service
	session    *discordgo.Session
	joins      *utils.JoinCounter
	roleQueue  *coalesce.Queue[moderation.Person]

	rolesMu sync.RWMutex
	roles   map[string]discordgo.Role

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, auditLogger *audit.Logger, analyticsEngine *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates
	// Edit and delete logs read the previous message from the state cache.
	session.State.MaxMessageCount = cfg.MessageCacheSize

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		audit:     auditLogger,
		analytics: analyticsEngine,
		session:   session,
		joins:     utils.NewJoinCounter(cfg.JoinWindow()),
		roles:     make(map[string]discordgo.Role),
		stop:      make(chan struct{}),
	}
	b.moderation = moderation.New(store, &platform{bot: b}, auditLogger, analyticsEngine, logger)
	b.roleQueue = coalesce.New(
		time.Duration(cfg.RoleQueue.IntervalSeconds)*time.Second,
		b.flushRoleQueue,
		roleQueueCategories(cfg.RoleQueue.AddedRoles, cfg.RoleQueue.RemovedRoles)...,
	)

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onInteractionCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onGuildMemberUpdate)
	b.session.AddHandler(b.onGuildBanAdd)
	b.session.AddHandler(b.onGuildBanRemove)
	b.session.AddHandler(b.onMessageDelete)
	b.session.AddHandler(b.onMessageUpdate)
	b.session.AddHandler(b.onChannelCreate)
	b.session.AddHandler(b.onChannelDelete)
	b.session.AddHandler(b.onChannelUpdate)
	b.session.AddHandler(b.onRoleCreate)
	b.session.AddHandler(b.onRoleDelete)
	b.session.AddHandler(b.onRoleUpdate)
	b.session.AddHandler(b.onVoiceStateUpdate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	b.startRetention()

	return nil
}

// Close flushes pending role announcements before disconnecting.
func (b *Bot) Close(ctx context.Context) {
	close(b.stop)
	b.roleQueue.Flush()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("shutdown timed out waiting for background jobs")
	}

	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, event *discordgo.GuildCreate) {
	if event.Guild == nil || event.ID != b.cfg.GuildID {
		return
	}
	b.rolesMu.Lock()
	defer b.rolesMu.Unlock()
	for _, role := range event.Roles {
		if role != nil {
			b.roles[role.ID] = *role
		}
	}
}

// startRetention prunes the moderator audit trail once a day.
func (b *Bot) startRetention() {
	if b.cfg.RetentionDays <= 0 {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			b.pruneAudit()
			select {
			case <-b.stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (b *Bot) pruneAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.RequestTimeout())
	defer cancel()
	removed, err := b.store.CleanupAuditEntries(ctx, b.cfg.RetentionDays)
	if err != nil {
		return
	}
	if removed > 0 {
		b.logger.Info("audit entries pruned", zap.Int64("removed", removed), zap.Int("retention_days", b.cfg.RetentionDays))
	}
}

// guild describes the configured server for embed headers.
func (b *Bot) guild() moderation.Guild {
	g := moderation.Guild{ID: b.cfg.GuildID, Name: "this server"}
	if state, err := b.session.State.Guild(b.cfg.GuildID); err == nil && state != nil {
		g.Name = state.Name
		g.IconURL = state.IconURL("")
	}
	return g
}

func (b *Bot) isConfiguredGuild(guildID string) bool {
	return guildID != "" && guildID == b.cfg.GuildID
}

// send posts an embed to a log channel. Log channels are optional; an unset
// one silently drops the event.
func (b *Bot) send(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) error {
	if channelID == "" || embed == nil {
		return nil
	}
	_, err := b.session.ChannelMessageSendEmbed(channelID, embed, options...)
	return err
}

func (b *Bot) logTo(channelID, event string, embed *discordgo.MessageEmbed) {
	if err := b.send(channelID, embed); err != nil {
		b.logger.Warn("log post failed", zap.String("event", event), zap.String("channel_id", channelID), zap.Error(err))
	}
}

func personFromUser(user *discordgo.User) moderation.Person {
	if user == nil {
		return moderation.Person{}
	}
	return moderation.Person{ID: user.ID, Name: userDisplayName(user), AvatarURL: user.AvatarURL("")}
}

func personFromMember(member *discordgo.Member) moderation.Person {
	if member == nil || member.User == nil {
		return moderation.Person{}
	}
	p := personFromUser(member.User)
	if member.Nick != "" {
		p.Name = member.Nick
	}
	if member.Avatar != "" {
		p.AvatarURL = member.AvatarURL("")
	}
	return p
}

func userDisplayName(user *discordgo.User) string {
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}
