package bot

import (
	"context"
	"strings"

	"modwarden/internal/moderation"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type commandOptions struct {
	data    discordgo.ApplicationCommandInteractionData
	options map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func newCommandOptions(data discordgo.ApplicationCommandInteractionData) commandOptions {
	opts := commandOptions{data: data, options: make(map[string]*discordgo.ApplicationCommandInteractionDataOption)}
	for _, opt := range data.Options {
		opts.options[opt.Name] = opt
	}
	return opts
}

func (o commandOptions) String(name string) string {
	opt, ok := o.options[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionString {
		return ""
	}
	return strings.TrimSpace(opt.StringValue())
}

func (o commandOptions) Int(name string) int {
	opt, ok := o.options[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionInteger {
		return 0
	}
	return int(opt.IntValue())
}

// User resolves a user option from the interaction payload, preferring the
// guild member so nicknames and server avatars are shown.
func (o commandOptions) User(name string) moderation.Person {
	opt, ok := o.options[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionUser {
		return moderation.Person{}
	}
	id, _ := opt.Value.(string)
	if o.data.Resolved == nil {
		return moderation.Person{ID: id}
	}
	user := o.data.Resolved.Users[id]
	if user == nil {
		return moderation.Person{ID: id}
	}
	if member := o.data.Resolved.Members[id]; member != nil {
		// Resolved members carry no user object of their own.
		withUser := *member
		withUser.User = user
		return personFromMember(&withUser)
	}
	return personFromUser(user)
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if !b.isConfiguredGuild(interaction.GuildID) || interaction.Member == nil || interaction.Member.User == nil {
		return
	}

	data := interaction.ApplicationCommandData()
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		b.logger.Warn("interaction defer failed", zap.String("command", data.Name), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.RequestTimeout())
	defer cancel()

	inv := moderation.Invocation{
		Guild:     b.guild(),
		Moderator: personFromMember(interaction.Member),
		Reply:     &followup{session: session, interaction: interaction.Interaction},
	}
	opts := newCommandOptions(data)

	var err error
	switch data.Name {
	case "warn":
		err = b.moderation.Warn(ctx, inv, opts.User("user"), opts.String("reason"))
	case "warnings":
		err = b.moderation.Warnings(ctx, inv, opts.User("user"))
	case "delwarn":
		err = b.moderation.DelWarn(ctx, inv, opts.String("warn_id"))
	case "flag":
		err = b.moderation.Flag(ctx, inv, opts.User("user"), opts.String("reason"))
	case "mute":
		err = b.moderation.Mute(ctx, inv, opts.User("user"), opts.String("time"), opts.String("reason"))
	case "ban":
		err = b.moderation.Ban(ctx, inv, opts.User("user"), opts.String("reason"), opts.Int("delete_message_days"))
	case "appeal":
		err = b.moderation.Appeal(ctx, inv, opts.String("user"), opts.String("decision"), opts.String("notes"))
	case "modreport":
		err = b.moderation.Report(ctx, inv, opts.String("period"))
	default:
		_, err = inv.Reply.Respond(ctx, "Unknown command", nil)
	}
	if err != nil {
		b.logger.Error("command reply failed", zap.String("command", data.Name), zap.String("moderator_id", inv.Moderator.ID), zap.Error(err))
	}
}
