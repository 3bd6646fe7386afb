package bot

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func commandDefinitions() []*discordgo.ApplicationCommand {
	moderate := int64(discordgo.PermissionModerateMembers)
	ban := int64(discordgo.PermissionBanMembers)
	noDM := false

	userOption := func(description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: description,
			Required:    true,
		}
	}
	stringOption := func(name, description string, required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        name,
			Description: description,
			Required:    required,
		}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "warn",
			Description:              "Warn a user",
			DefaultMemberPermissions: &moderate,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to warn"),
				stringOption("reason", "Why the user is warned", true),
			},
		},
		{
			Name:                     "warnings",
			Description:              "Look up the warnings for a user",
			DefaultMemberPermissions: &moderate,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to look up"),
			},
		},
		{
			Name:                     "delwarn",
			Description:              "Delete a warning for a user",
			DefaultMemberPermissions: &moderate,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				stringOption("warn_id", "ID shown by /warnings", true),
			},
		},
		{
			Name:                     "flag",
			Description:              "Flag a user as suspicious",
			DefaultMemberPermissions: &moderate,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to flag"),
				stringOption("reason", "What looks suspicious", false),
			},
		},
		{
			Name:                     "mute",
			Description:              "Timeout a user",
			DefaultMemberPermissions: &moderate,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to time out"),
				stringOption("time", "Duration such as 10h or 3d", true),
				stringOption("reason", "Why the user is muted", true),
			},
		},
		{
			Name:                     "ban",
			Description:              "Ban a user",
			DefaultMemberPermissions: &ban,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to ban"),
				stringOption("reason", "Why the user is banned", true),
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "delete_message_days",
					Description: "Days of messages to delete (0-7)",
					Required:    false,
				},
			},
		},
		{
			Name:                     "appeal",
			Description:              "Log a Ban Appeal",
			DefaultMemberPermissions: &ban,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				stringOption("user", "User who appealed", true),
				stringOption("decision", "Outcome of the appeal", true),
				stringOption("notes", "Anything worth keeping", false),
			},
		},
		{
			Name:                     "modreport",
			Description:              "Summarize recent moderator actions",
			DefaultMemberPermissions: &moderate,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "period",
					Description: "day or week",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "day", Value: "day"},
						{Name: "week", Value: "week"},
					},
				},
			},
		},
	}
}

// registerCommands syncs the guild commands: existing ones are edited, new
// ones created, and stale ones deleted.
func (b *Bot) registerCommands() error {
	commands := commandDefinitions()
	appID := b.session.State.User.ID
	guildID := b.cfg.GuildID

	existing, err := b.session.ApplicationCommands(appID, guildID)
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, guildID, current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		if err := b.session.ApplicationCommandDelete(appID, guildID, cmd.ID); err != nil {
			b.logger.Warn("stale command not deleted", zap.String("command", cmd.Name), zap.Error(err))
		}
	}
	b.logger.Info("commands registered", zap.String("guild_id", guildID), zap.Int("count", len(commands)))
	return nil
}
