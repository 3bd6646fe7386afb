package bot

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func TestDiffPermissions(t *testing.T) {
	before := int64(1<<10 | 1<<11)
	after := int64(1<<10 | 1<<13)
	changes := diffPermissions(before, after)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %+v", changes)
	}
	if changes[0].Name != "send_messages" || *changes[0].Access {
		t.Fatalf("expected send_messages revoked, got %+v", changes[0])
	}
	if changes[1].Name != "manage_messages" || !*changes[1].Access {
		t.Fatalf("expected manage_messages granted, got %+v", changes[1])
	}
}

func TestDiffOverwrites(t *testing.T) {
	before := []*discordgo.PermissionOverwrite{
		{ID: "2", Type: discordgo.PermissionOverwriteTypeRole, Deny: 1 << 11},
	}
	after := []*discordgo.PermissionOverwrite{
		{ID: "2", Type: discordgo.PermissionOverwriteTypeRole, Allow: 1 << 10},
		{ID: "1", Type: discordgo.PermissionOverwriteTypeMember, Deny: 1 << 6},
	}

	changes := diffOverwrites(before, after)
	if len(changes) != 2 {
		t.Fatalf("expected 2 targets, got %+v", changes)
	}
	if changes[0].TargetID != "1" || len(changes[0].Changes) != 1 || *changes[0].Changes[0].Access {
		t.Fatalf("expected member deny add_reactions, got %+v", changes[0])
	}
	role := changes[1]
	if role.TargetID != "2" || len(role.Changes) != 2 {
		t.Fatalf("expected two role changes, got %+v", role)
	}
	if role.Changes[0].Name != "view_channel" || !*role.Changes[0].Access {
		t.Fatalf("expected view_channel allowed, got %+v", role.Changes[0])
	}
	if role.Changes[1].Name != "send_messages" || role.Changes[1].Access != nil {
		t.Fatalf("expected send_messages back to inherited, got %+v", role.Changes[1])
	}
}

func TestDescribeChannelUpdate(t *testing.T) {
	before := &discordgo.Channel{Name: "general", RateLimitPerUser: 0}
	after := &discordgo.Channel{
		Name:             "general",
		RateLimitPerUser: 30,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: "9", Type: discordgo.PermissionOverwriteTypeRole, Deny: 1 << 11},
		},
	}
	desc := describeChannelUpdate(before, after, func(string) string { return "Muted" })
	for _, want := range []string{"### Permissions Updated:", ":arrow_right: **Muted**", ":no_entry: Send messages", "0 seconds -> 30 seconds"} {
		if !strings.Contains(desc, want) {
			t.Fatalf("expected %q in %q", want, desc)
		}
	}
	if describeChannelUpdate(before, before, nil) != "" {
		t.Fatalf("unchanged channel should describe nothing")
	}
}

func TestDescribeRoleUpdate(t *testing.T) {
	before := discordgo.Role{Name: "Helper", Color: 0x3498db, Permissions: 0}
	after := discordgo.Role{Name: "Helpers", Color: 0xe74c3c, Permissions: 1 << 40}
	lines := describeRoleUpdate(before, after)
	want := []string{
		"- Name changed from `Helper` to `Helpers`",
		"- Color changed from `#3498db` to `#e74c3c`",
		"- Permissions updated:",
		":white_check_mark: Moderate members",
	}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("expected %v, got %v", want, lines)
	}
	if len(describeRoleUpdate(after, after)) != 0 {
		t.Fatalf("identical roles should not describe changes")
	}
}

func TestDescribeMemberUpdate(t *testing.T) {
	until := time.Unix(1700003600, 0)
	before := &discordgo.Member{Nick: ""}
	after := &discordgo.Member{Nick: "newnick", CommunicationDisabledUntil: &until, Avatar: "abc"}

	lines := describeMemberUpdate(before, after)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %v", lines)
	}
	if !strings.Contains(lines[0], "from **None** to **newnick**") {
		t.Fatalf("unexpected nickname line %q", lines[0])
	}
	if !strings.Contains(lines[1], "<t:1700003600:f>") {
		t.Fatalf("unexpected timeout line %q", lines[1])
	}

	lines = describeMemberUpdate(after, &discordgo.Member{Nick: "newnick", Avatar: "abc"})
	if len(lines) != 1 || !strings.Contains(lines[0], "timeout removed") {
		t.Fatalf("expected timeout removal, got %v", lines)
	}
}

func TestRoleDelta(t *testing.T) {
	added, removed := roleDelta([]string{"a", "b"}, []string{"b", "c", "d"})
	if !reflect.DeepEqual(added, []string{"c", "d"}) || !reflect.DeepEqual(removed, []string{"a"}) {
		t.Fatalf("unexpected delta %v %v", added, removed)
	}
}

func TestDescribeDeletedMessage(t *testing.T) {
	msg := &discordgo.Message{
		ID:        "30",
		ChannelID: "20",
		Content:   "check https://Evil.example/login",
		Author:    &discordgo.User{ID: "10", Username: "someone"},
		Timestamp: time.Unix(1700000000, 0),
		MessageReference: &discordgo.MessageReference{
			MessageID: "29",
		},
		Attachments: []*discordgo.MessageAttachment{
			{Filename: "cat.png", ProxyURL: "https://media.example/cat.png"},
		},
		StickerItems: []*discordgo.StickerItem{{Name: "wave"}},
	}
	desc := describeDeletedMessage(msg, "1")
	for _, want := range []string{
		"in <#20> by <@10>",
		"**deleted message**\ncheck https://Evil.example/login",
		"**originally posted**\n<t:1700000000:f>",
		"**reply to**\nhttps://discord.com/channels/1/20/29",
		"**linked domains**\nevil.example",
		"[cat.png](https://media.example/cat.png)",
		"Sticker attached: wave",
	} {
		if !strings.Contains(desc, want) {
			t.Fatalf("expected %q in %q", want, desc)
		}
	}
}

func TestFormatWindow(t *testing.T) {
	cases := map[time.Duration]string{
		10 * time.Minute: "10 minutes",
		time.Minute:      "1 minute",
		2 * time.Hour:    "2 hours",
	}
	for in, want := range cases {
		if got := formatWindow(in); got != want {
			t.Fatalf("%s: expected %q, got %q", in, want, got)
		}
	}
}

func TestRoleQueueCategories(t *testing.T) {
	got := roleQueueCategories([]string{"Member"}, []string{"New Account"})
	want := []string{"added:Member", "removed:New Account"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCommandDefinitions(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range commandDefinitions() {
		names[cmd.Name] = true
		if cmd.DefaultMemberPermissions == nil {
			t.Fatalf("%s should require a moderator permission", cmd.Name)
		}
	}
	for _, name := range []string{"warn", "warnings", "delwarn", "flag", "mute", "ban", "appeal", "modreport"} {
		if !names[name] {
			t.Fatalf("missing command %s", name)
		}
	}
}

func TestCommandOptionsUserPrefersMember(t *testing.T) {
	data := discordgo.ApplicationCommandInteractionData{
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "10"},
			{Name: "reason", Type: discordgo.ApplicationCommandOptionString, Value: "  spam  "},
		},
		Resolved: &discordgo.ApplicationCommandInteractionDataResolved{
			Users:   map[string]*discordgo.User{"10": {ID: "10", Username: "someone"}},
			Members: map[string]*discordgo.Member{"10": {Nick: "nick"}},
		},
	}
	opts := newCommandOptions(data)
	person := opts.User("user")
	if person.ID != "10" || person.Name != "nick" {
		t.Fatalf("unexpected person %+v", person)
	}
	if opts.String("reason") != "spam" {
		t.Fatalf("expected trimmed reason, got %q", opts.String("reason"))
	}
	if opts.String("missing") != "" || opts.Int("delete_message_days") != 0 {
		t.Fatalf("missing options should be zero values")
	}
}
