package bot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"modwarden/internal/moderation"
	"modwarden/internal/utils"

	"github.com/bwmarrin/discordgo"
)

var permissionNames = []struct {
	bit  int64
	name string
}{
	{1 << 0, "create_instant_invite"},
	{1 << 1, "kick_members"},
	{1 << 2, "ban_members"},
	{1 << 3, "administrator"},
	{1 << 4, "manage_channels"},
	{1 << 5, "manage_guild"},
	{1 << 6, "add_reactions"},
	{1 << 7, "view_audit_log"},
	{1 << 8, "priority_speaker"},
	{1 << 9, "stream"},
	{1 << 10, "view_channel"},
	{1 << 11, "send_messages"},
	{1 << 12, "send_tts_messages"},
	{1 << 13, "manage_messages"},
	{1 << 14, "embed_links"},
	{1 << 15, "attach_files"},
	{1 << 16, "read_message_history"},
	{1 << 17, "mention_everyone"},
	{1 << 18, "use_external_emojis"},
	{1 << 19, "view_guild_insights"},
	{1 << 20, "connect"},
	{1 << 21, "speak"},
	{1 << 22, "mute_members"},
	{1 << 23, "deafen_members"},
	{1 << 24, "move_members"},
	{1 << 25, "use_voice_activation"},
	{1 << 26, "change_nickname"},
	{1 << 27, "manage_nicknames"},
	{1 << 28, "manage_roles"},
	{1 << 29, "manage_webhooks"},
	{1 << 30, "manage_expressions"},
	{1 << 31, "use_application_commands"},
	{1 << 32, "request_to_speak"},
	{1 << 33, "manage_events"},
	{1 << 34, "manage_threads"},
	{1 << 35, "create_public_threads"},
	{1 << 36, "create_private_threads"},
	{1 << 37, "use_external_stickers"},
	{1 << 38, "send_messages_in_threads"},
	{1 << 39, "use_embedded_activities"},
	{1 << 40, "moderate_members"},
	{1 << 41, "view_creator_monetization_analytics"},
	{1 << 42, "use_soundboard"},
	{1 << 43, "create_expressions"},
	{1 << 44, "create_events"},
	{1 << 45, "use_external_sounds"},
	{1 << 46, "send_voice_messages"},
	{1 << 49, "send_polls"},
	{1 << 50, "use_external_apps"},
}

// access is the state of one permission: granted, denied, or inherited (nil).
type access *bool

var (
	granted = func() access { v := true; return &v }()
	denied  = func() access { v := false; return &v }()
)

type permissionChange struct {
	Name   string
	Access access
}

func accessEmoji(a access) string {
	switch {
	case a == nil:
		return ":white_large_square:"
	case *a:
		return ":white_check_mark:"
	default:
		return ":no_entry:"
	}
}

func humanPermission(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ToUpper(name[:1]) + name[1:]
}

// diffPermissions lists the permissions whose bit differs between two role
// permission sets.
func diffPermissions(before, after int64) []permissionChange {
	var changes []permissionChange
	for _, p := range permissionNames {
		was, is := before&p.bit != 0, after&p.bit != 0
		if was == is {
			continue
		}
		if is {
			changes = append(changes, permissionChange{Name: p.name, Access: granted})
		} else {
			changes = append(changes, permissionChange{Name: p.name, Access: denied})
		}
	}
	return changes
}

func overwriteAccess(o *discordgo.PermissionOverwrite, bit int64) access {
	if o == nil {
		return nil
	}
	switch {
	case o.Allow&bit != 0:
		return granted
	case o.Deny&bit != 0:
		return denied
	}
	return nil
}

func sameAccess(a, b access) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type overwriteChange struct {
	TargetID string
	Type     discordgo.PermissionOverwriteType
	Changes  []permissionChange
}

// diffOverwrites compares channel permission overwrites per role or member.
// Targets are reported in id order.
func diffOverwrites(before, after []*discordgo.PermissionOverwrite) []overwriteChange {
	index := func(list []*discordgo.PermissionOverwrite) map[string]*discordgo.PermissionOverwrite {
		out := make(map[string]*discordgo.PermissionOverwrite, len(list))
		for _, o := range list {
			if o != nil {
				out[o.ID] = o
			}
		}
		return out
	}
	was, is := index(before), index(after)

	targets := make(map[string]discordgo.PermissionOverwriteType)
	for id, o := range was {
		targets[id] = o.Type
	}
	for id, o := range is {
		targets[id] = o.Type
	}
	ids := make([]string, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []overwriteChange
	for _, id := range ids {
		var changes []permissionChange
		for _, p := range permissionNames {
			old, cur := overwriteAccess(was[id], p.bit), overwriteAccess(is[id], p.bit)
			if !sameAccess(old, cur) {
				changes = append(changes, permissionChange{Name: p.name, Access: cur})
			}
		}
		if len(changes) > 0 {
			out = append(out, overwriteChange{TargetID: id, Type: targets[id], Changes: changes})
		}
	}
	return out
}

func colorHex(color int) string {
	return fmt.Sprintf("#%06x", color&0xFFFFFF)
}

func roleMention(roleID string) string {
	return fmt.Sprintf("<@&%s>", roleID)
}

// describeRoleUpdate lists what changed on a role; empty when nothing we log did.
func describeRoleUpdate(before, after discordgo.Role) []string {
	var lines []string
	if before.Name != after.Name {
		lines = append(lines, fmt.Sprintf("- Name changed from `%s` to `%s`", before.Name, after.Name))
	}
	if before.Icon != after.Icon {
		lines = append(lines, "- Role icon changed")
	}
	if before.Color != after.Color {
		lines = append(lines, fmt.Sprintf("- Color changed from `%s` to `%s`", colorHex(before.Color), colorHex(after.Color)))
	}
	if changes := diffPermissions(before.Permissions, after.Permissions); len(changes) > 0 {
		lines = append(lines, "- Permissions updated:")
		for _, c := range changes {
			lines = append(lines, fmt.Sprintf("%s %s", accessEmoji(c.Access), humanPermission(c.Name)))
		}
	}
	return lines
}

// describeChannelUpdate renders overwrite and slowmode changes. roleName
// resolves role overwrite targets; unknown roles fall back to a mention.
func describeChannelUpdate(before, after *discordgo.Channel, roleName func(string) string) string {
	var b strings.Builder
	if before.Name != after.Name {
		fmt.Fprintf(&b, "\n\n### Renamed:\n`%s` -> `%s`", before.Name, after.Name)
	}
	if changes := diffOverwrites(before.PermissionOverwrites, after.PermissionOverwrites); len(changes) > 0 {
		b.WriteString("\n\n### Permissions Updated:")
		for _, target := range changes {
			label := moderation.Mention(target.TargetID)
			if target.Type == discordgo.PermissionOverwriteTypeRole {
				label = roleName(target.TargetID)
			}
			fmt.Fprintf(&b, "\n\n:arrow_right: **%s**", label)
			for _, c := range target.Changes {
				fmt.Fprintf(&b, "\n%s %s", accessEmoji(c.Access), humanPermission(c.Name))
			}
		}
	}
	if before.RateLimitPerUser != after.RateLimitPerUser {
		fmt.Fprintf(&b, "\n\n### Slowmode updated:\n%d seconds -> %d seconds", before.RateLimitPerUser, after.RateLimitPerUser)
	}
	return b.String()
}

// describeMemberUpdate covers nickname, timeout and server avatar changes.
func describeMemberUpdate(before, after *discordgo.Member) []string {
	var lines []string
	if before.Nick != after.Nick {
		lines = append(lines, fmt.Sprintf("🕵️ changed nickname from **%s** to **%s**", orNone(before.Nick), orNone(after.Nick)))
	}
	if !sameTime(before.CommunicationDisabledUntil, after.CommunicationDisabledUntil) {
		if after.CommunicationDisabledUntil != nil {
			lines = append(lines, fmt.Sprintf("⏰ timed out until **%s**", moderation.Timestamp(after.CommunicationDisabledUntil.Unix(), "f")))
		} else {
			lines = append(lines, "⏰ **timeout removed**")
		}
	}
	if before.Avatar != after.Avatar {
		lines = append(lines, "🖼 updated server avatar")
	}
	return lines
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

// roleDelta returns the role ids added and removed, in the member's order.
func roleDelta(before, after []string) (added, removed []string) {
	had := make(map[string]struct{}, len(before))
	for _, id := range before {
		had[id] = struct{}{}
	}
	has := make(map[string]struct{}, len(after))
	for _, id := range after {
		has[id] = struct{}{}
		if _, ok := had[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range before {
		if _, ok := has[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// describeDeletedMessage renders a cached message for the delete log.
func describeDeletedMessage(msg *discordgo.Message, guildID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "in %s by %s", moderation.ChannelMention(msg.ChannelID), moderation.Mention(msg.Author.ID))

	content := msg.Content
	if msg.Poll != nil {
		content += "\n**poll**"
		content += "\n_Question_: " + msg.Poll.Question.Text
		for _, answer := range msg.Poll.Answers {
			if answer.Media != nil {
				content += "\n_Answer_: " + answer.Media.Text
			}
		}
	}
	fmt.Fprintf(&b, "\n\n**deleted message**\n%s", content)

	if !msg.Timestamp.IsZero() {
		fmt.Fprintf(&b, "\n\n**originally posted**\n%s", moderation.Timestamp(msg.Timestamp.Unix(), "f"))
	}
	if ref := msg.MessageReference; ref != nil && ref.MessageID != "" {
		channelID := ref.ChannelID
		if channelID == "" {
			channelID = msg.ChannelID
		}
		fmt.Fprintf(&b, "\n\n**reply to**\n%s", moderation.MessageURL(guildID, channelID, ref.MessageID))
	}
	if domains := utils.LinkDomains(msg.Content); len(domains) > 0 {
		fmt.Fprintf(&b, "\n\n**linked domains**\n%s", strings.Join(domains, ", "))
	}
	if len(msg.Attachments) > 0 {
		names := make([]string, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			names = append(names, fmt.Sprintf("[%s](%s)", a.Filename, a.ProxyURL))
		}
		fmt.Fprintf(&b, "\n_(Attached: %s)_", strings.Join(names, ", "))
	}
	for _, sticker := range msg.StickerItems {
		fmt.Fprintf(&b, "\n_(Sticker attached: %s)_", sticker.Name)
	}
	return b.String()
}

// formatWindow renders a join window for the member log.
func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		return moderation.FormatDuration(d)
	}
	minutes := int64(d / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
