package bot

import (
	"fmt"
	"strings"
	"time"

	"modwarden/internal/coalesce"
	"modwarden/internal/moderation"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

const (
	categoryAdded   = "added:"
	categoryRemoved = "removed:"
)

// roleQueueCategories orders the coalesced announcements: configured added
// roles first, then configured removed roles.
func roleQueueCategories(added, removed []string) []string {
	categories := make([]string, 0, len(added)+len(removed))
	for _, name := range added {
		categories = append(categories, categoryAdded+name)
	}
	for _, name := range removed {
		categories = append(categories, categoryRemoved+name)
	}
	return categories
}

func (b *Bot) onGuildMemberAdd(_ *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.User == nil || !b.isConfiguredGuild(event.GuildID) {
		return
	}
	stats := b.joins.Add(event.User.ID, time.Now())

	var desc strings.Builder
	fmt.Fprintf(&desc, "%s joined.", moderation.Mention(event.User.ID))
	if id, err := snowflake.Parse(event.User.ID); err == nil {
		created := id.Time().Unix()
		fmt.Fprintf(&desc, "\n\nAccount created %s\n(Roughly %s)", moderation.Timestamp(created, "f"), moderation.Timestamp(created, "R"))
	}
	fmt.Fprintf(&desc, "\n\nJoins in the last %s: %d", formatWindow(b.joins.Window()), stats.Recent)
	if stats.Rejoins > 0 {
		fmt.Fprintf(&desc, "\nRejoined %d time(s) in that window", stats.Rejoins)
	}

	b.logTo(b.cfg.Channels.UserLogs, "member_join", moderation.UserEmbed(moderation.ColorGreen, personFromMember(event.Member), desc.String()))
}

func (b *Bot) onGuildMemberRemove(_ *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.Member == nil || event.User == nil || !b.isConfiguredGuild(event.GuildID) {
		return
	}
	embed := moderation.UserEmbed(moderation.ColorRed, personFromUser(event.User), moderation.Mention(event.User.ID)+" left.")
	b.logTo(b.cfg.Channels.UserLogs, "member_leave", embed)
}

func (b *Bot) onGuildMemberUpdate(_ *discordgo.Session, event *discordgo.GuildMemberUpdate) {
	if event.Member == nil || event.User == nil || !b.isConfiguredGuild(event.GuildID) {
		return
	}
	// Without the cached previous state there is nothing to diff.
	if event.BeforeUpdate == nil {
		return
	}
	person := personFromMember(event.Member)
	title := moderation.Mention(event.User.ID) + " has been updated.\n"

	if lines := describeMemberUpdate(event.BeforeUpdate, event.Member); len(lines) > 0 {
		embed := moderation.UserEmbed(moderation.ColorBlue, person, title+"\n"+strings.Join(lines, "\n"))
		b.logTo(b.cfg.Channels.UserLogs, "member_update", embed)
	}

	addedIDs, removedIDs := roleDelta(event.BeforeUpdate.Roles, event.Member.Roles)
	added, removed := b.roleNames(addedIDs), b.roleNames(removedIDs)

	var desc strings.Builder
	if len(added) == 1 && contains(b.cfg.RoleQueue.AddedRoles, added[0]) {
		b.roleQueue.Add(categoryAdded+added[0], person)
	} else if len(added) > 0 {
		desc.WriteString("\nRoles added:")
		for _, name := range added {
			desc.WriteString("\n✅ " + name)
		}
	}
	if len(removed) == 1 && contains(b.cfg.RoleQueue.RemovedRoles, removed[0]) {
		b.roleQueue.Add(categoryRemoved+removed[0], person)
	} else if len(removed) > 0 {
		desc.WriteString("\nRoles removed:")
		for _, name := range removed {
			desc.WriteString("\n⛔ " + name)
		}
	}
	if desc.Len() > 0 {
		b.logTo(b.cfg.Channels.RoleUpdates, "member_roles", moderation.UserEmbed(moderation.ColorBlue, person, title+desc.String()))
	}
}

func (b *Bot) flushRoleQueue(batches []coalesce.Batch[moderation.Person]) {
	guild := b.guild()
	for _, batch := range batches {
		var title, mark string
		color := moderation.ColorBlue
		switch {
		case strings.HasPrefix(batch.Category, categoryAdded):
			title = fmt.Sprintf("### %s Role Added\n", strings.TrimPrefix(batch.Category, categoryAdded))
			mark = "✅"
		case strings.HasPrefix(batch.Category, categoryRemoved):
			title = fmt.Sprintf("### %s Role Removed\n", strings.TrimPrefix(batch.Category, categoryRemoved))
			mark = "⛔"
			color = moderation.ColorBlurple
		default:
			continue
		}
		var desc strings.Builder
		desc.WriteString(title)
		for _, person := range batch.Items {
			fmt.Fprintf(&desc, "\n%s %s %s", mark, person.Name, person.Mention())
		}
		b.logTo(b.cfg.Channels.RoleUpdates, "role_queue", moderation.GuildEmbed(color, guild, desc.String()))
	}
}

func (b *Bot) onGuildBanAdd(_ *discordgo.Session, event *discordgo.GuildBanAdd) {
	if event.User == nil || !b.isConfiguredGuild(event.GuildID) {
		return
	}
	embed := moderation.UserEmbed(moderation.ColorRed, personFromUser(event.User), moderation.Mention(event.User.ID)+" has been banned.")
	b.logTo(b.cfg.Channels.ModLogs, "ban", embed)
}

func (b *Bot) onGuildBanRemove(_ *discordgo.Session, event *discordgo.GuildBanRemove) {
	if event.User == nil || !b.isConfiguredGuild(event.GuildID) {
		return
	}
	embed := moderation.UserEmbed(moderation.ColorGreen, personFromUser(event.User), moderation.Mention(event.User.ID)+" has been unbanned.")
	b.logTo(b.cfg.Channels.ModLogs, "unban", embed)
}

// skipMessageLog reports whether edits and deletes in channelID stay unlogged,
// either directly or as a thread of an unlogged channel.
func (b *Bot) skipMessageLog(channelID string) bool {
	if b.cfg.IsNoLogChannel(channelID) {
		return true
	}
	channel, err := b.session.State.Channel(channelID)
	if err != nil || channel == nil {
		return false
	}
	return channel.IsThread() && b.cfg.IsNoLogChannel(channel.ParentID)
}

func (b *Bot) onMessageDelete(_ *discordgo.Session, event *discordgo.MessageDelete) {
	if event.Message == nil || !b.isConfiguredGuild(event.GuildID) || b.skipMessageLog(event.ChannelID) {
		return
	}

	msg := event.BeforeDelete
	if msg == nil || msg.Author == nil {
		desc := fmt.Sprintf("in %s\n\n_(message was not cached)_", moderation.ChannelMention(event.ChannelID))
		embed := moderation.GuildEmbed(moderation.ColorRed, b.guild(), desc)
		embed.Title = "Message deleted"
		b.logTo(b.cfg.Channels.MessageDeletes, "message_delete", embed)
		return
	}
	if msg.Author.Bot {
		return
	}

	person := personFromUser(msg.Author)
	if msg.Member != nil {
		withUser := *msg.Member
		withUser.User = msg.Author
		person = personFromMember(&withUser)
	}
	embed := moderation.UserEmbed(moderation.ColorRed, person, describeDeletedMessage(msg, b.cfg.GuildID))
	embed.Title = "Message deleted"
	b.logTo(b.cfg.Channels.MessageDeletes, "message_delete", embed)
}

func (b *Bot) onMessageUpdate(_ *discordgo.Session, event *discordgo.MessageUpdate) {
	if event.Message == nil || event.BeforeUpdate == nil || !b.isConfiguredGuild(event.GuildID) || b.skipMessageLog(event.ChannelID) {
		return
	}
	before := event.BeforeUpdate
	author := event.Author
	if author == nil {
		author = before.Author
	}
	if author == nil || author.Bot {
		return
	}
	// Embed unfurls and pins also arrive as updates; only content edits are logged.
	if strings.TrimSpace(before.Content) == strings.TrimSpace(event.Content) {
		return
	}

	desc := fmt.Sprintf("in %s by %s\n\n**before**\n%s\n\n**after**\n%s",
		moderation.ChannelMention(event.ChannelID), moderation.Mention(author.ID), before.Content, event.Content)
	embed := moderation.UserEmbed(moderation.ColorYellow, personFromUser(author), desc)
	embed.Title = "Message edited"
	embed.URL = moderation.MessageURL(b.cfg.GuildID, event.ChannelID, event.ID)
	b.logTo(b.cfg.Channels.MessageEdits, "message_edit", embed)
}

func (b *Bot) onChannelCreate(_ *discordgo.Session, event *discordgo.ChannelCreate) {
	if event.Channel == nil || !b.isConfiguredGuild(event.GuildID) {
		return
	}
	embed := moderation.GuildEmbed(moderation.ColorGreen, b.guild(), "Channel created: "+moderation.ChannelMention(event.ID))
	b.logTo(b.cfg.Channels.ServerLogs, "channel_create", embed)
}

func (b *Bot) onChannelDelete(_ *discordgo.Session, event *discordgo.ChannelDelete) {
	if event.Channel == nil || !b.isConfiguredGuild(event.GuildID) {
		return
	}
	embed := moderation.GuildEmbed(moderation.ColorRed, b.guild(), fmt.Sprintf("Channel deleted: %s (%s)", event.Name, event.ID))
	b.logTo(b.cfg.Channels.ServerLogs, "channel_delete", embed)
}

func (b *Bot) onChannelUpdate(_ *discordgo.Session, event *discordgo.ChannelUpdate) {
	if event.Channel == nil || event.BeforeUpdate == nil || !b.isConfiguredGuild(event.GuildID) {
		return
	}
	changes := describeChannelUpdate(event.BeforeUpdate, event.Channel, b.roleLabel)
	if changes == "" {
		return
	}
	desc := fmt.Sprintf("### Channel %s updated:%s", moderation.ChannelMention(event.ID), changes)
	b.logTo(b.cfg.Channels.ServerLogs, "channel_update", moderation.GuildEmbed(moderation.ColorBlurple, b.guild(), desc))
}

func (b *Bot) onRoleCreate(_ *discordgo.Session, event *discordgo.GuildRoleCreate) {
	if event.GuildRole == nil || event.Role == nil || !b.isConfiguredGuild(event.GuildID) {
		return
	}
	b.cacheRole(*event.Role)
	embed := moderation.GuildEmbed(moderation.ColorGreen, b.guild(), "Role created: "+roleMention(event.Role.ID))
	b.logTo(b.cfg.Channels.RoleUpdates, "role_create", embed)
}

func (b *Bot) onRoleDelete(_ *discordgo.Session, event *discordgo.GuildRoleDelete) {
	if !b.isConfiguredGuild(event.GuildID) {
		return
	}
	name := event.RoleID
	b.rolesMu.Lock()
	if role, ok := b.roles[event.RoleID]; ok {
		name = role.Name
		delete(b.roles, event.RoleID)
	}
	b.rolesMu.Unlock()

	embed := moderation.GuildEmbed(moderation.ColorRed, b.guild(), fmt.Sprintf("Role deleted: %s (%s)", name, event.RoleID))
	b.logTo(b.cfg.Channels.RoleUpdates, "role_delete", embed)
}

func (b *Bot) onRoleUpdate(_ *discordgo.Session, event *discordgo.GuildRoleUpdate) {
	if event.GuildRole == nil || event.Role == nil || !b.isConfiguredGuild(event.GuildID) {
		return
	}
	after := *event.Role
	b.rolesMu.Lock()
	before, known := b.roles[after.ID]
	b.roles[after.ID] = after
	b.rolesMu.Unlock()
	if !known {
		b.logger.Debug("role update without cached role", zap.String("role_id", after.ID))
		return
	}

	lines := describeRoleUpdate(before, after)
	if len(lines) == 0 {
		return
	}
	desc := fmt.Sprintf("**Role updated: %s**\n\n%s", roleMention(after.ID), strings.Join(lines, "\n"))
	b.logTo(b.cfg.Channels.RoleUpdates, "role_update", moderation.GuildEmbed(moderation.ColorBlurple, b.guild(), desc))
}

func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	if event.VoiceState == nil || !b.isConfiguredGuild(event.GuildID) {
		return
	}
	var from string
	if event.BeforeUpdate != nil {
		from = event.BeforeUpdate.ChannelID
	}
	to := event.ChannelID
	if from == to {
		return
	}

	member := event.Member
	if member == nil {
		member, _ = b.session.State.Member(event.GuildID, event.UserID)
	}
	person := moderation.Person{ID: event.UserID, Name: event.UserID}
	if member != nil && member.User != nil {
		person = personFromMember(member)
	}

	var embed *discordgo.MessageEmbed
	switch {
	case from == "":
		embed = moderation.UserEmbed(moderation.ColorBlue, person, fmt.Sprintf("%s has joined %s", person.Mention(), moderation.ChannelMention(to)))
	case to == "":
		embed = moderation.UserEmbed(moderation.ColorDarkRed, person, fmt.Sprintf("%s has left %s", person.Mention(), moderation.ChannelMention(from)))
	default:
		embed = moderation.UserEmbed(moderation.ColorBlurple, person, fmt.Sprintf("%s switched from %s to %s", person.Mention(), moderation.ChannelMention(from), moderation.ChannelMention(to)))
	}
	b.logTo(b.cfg.Channels.VoiceLogs, "voice", embed)
}

func (b *Bot) cacheRole(role discordgo.Role) {
	b.rolesMu.Lock()
	b.roles[role.ID] = role
	b.rolesMu.Unlock()
}

// roleNames maps role ids to names, falling back to a mention when unknown.
func (b *Bot) roleNames(ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, b.roleLabel(id))
	}
	return names
}

func (b *Bot) roleLabel(roleID string) string {
	b.rolesMu.RLock()
	role, ok := b.roles[roleID]
	b.rolesMu.RUnlock()
	if ok {
		return role.Name
	}
	if state, err := b.session.State.Role(b.cfg.GuildID, roleID); err == nil && state != nil {
		return state.Name
	}
	return roleMention(roleID)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
