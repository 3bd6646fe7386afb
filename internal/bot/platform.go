package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"modwarden/internal/moderation"

	"github.com/bwmarrin/discordgo"
)

// platform carries out moderation side effects against the configured guild.
type platform struct {
	bot *Bot
}

func (p *platform) NotifyUser(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error {
	channel, err := p.bot.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	_, err = p.bot.session.ChannelMessageSendEmbed(channel.ID, embed, discordgo.WithContext(ctx))
	return err
}

func (p *platform) Timeout(ctx context.Context, userID string, until time.Time, _ string) error {
	guildID := p.bot.cfg.GuildID
	if _, err := p.bot.session.State.Member(guildID, userID); err != nil {
		if _, err := p.bot.session.GuildMember(guildID, userID, discordgo.WithContext(ctx)); err != nil {
			if isUnknownMember(err) {
				return moderation.ErrNotMember
			}
			return err
		}
	}
	return p.bot.session.GuildMemberTimeout(guildID, userID, &until, discordgo.WithContext(ctx))
}

func (p *platform) Ban(ctx context.Context, userID, reason string, deleteMessageDays int) error {
	return p.bot.session.GuildBanCreateWithReason(p.bot.cfg.GuildID, userID, reason, deleteMessageDays, discordgo.WithContext(ctx))
}

func (p *platform) ModLog(ctx context.Context, embed *discordgo.MessageEmbed) error {
	return p.bot.send(p.bot.cfg.Channels.ModLogs, embed, discordgo.WithContext(ctx))
}

func isUnknownMember(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMember {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

// followup answers a deferred interaction. The reply is not bound by the
// command deadline, so a timed out command still gets its answer.
type followup struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

func (f *followup) Respond(_ context.Context, content string, embed *discordgo.MessageEmbed) (moderation.MessageRef, error) {
	params := &discordgo.WebhookParams{Content: content}
	if embed != nil {
		params.Embeds = []*discordgo.MessageEmbed{embed}
	}
	if content == "" && embed == nil {
		return moderation.MessageRef{}, fmt.Errorf("empty reply")
	}
	msg, err := f.session.FollowupMessageCreate(f.interaction, true, params)
	if err != nil {
		return moderation.MessageRef{}, err
	}
	return moderation.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}
