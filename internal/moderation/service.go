// Package moderation implements the moderator commands on top of the warning
// store and a small platform surface.
//
// Within one command the steps run in a fixed order: the platform action,
// the record, the direct message to the user, the public reply, the link from
// the record to that reply, the moderation log. Every invocation produces
// exactly one reply.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"modwarden/internal/analytics"
	"modwarden/internal/modules/audit"
	"modwarden/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

const DatabaseErrorMessage = "I had a database error, I'm so sorry, please try again"

const (
	couldNotDM      = "\n\n_Could not DM user_"
	maxDeleteDays   = 7
	banNoticeDelay  = 500 * time.Millisecond
	reasonPrefixMute = "(MUTE) "
	reasonPrefixBan  = "(BAN) "
	reasonPrefixFlag = "(FLAG) "
)

// ErrNotMember is returned by Platform.Timeout when the user left the server.
var ErrNotMember = errors.New("user is not a member")

type Store interface {
	AddWarn(ctx context.Context, w storage.NewWarning) (string, error)
	DelWarn(ctx context.Context, warnID string) error
	ListWarns(ctx context.Context, userID int64) ([]storage.Warning, error)
	AddWarnMessageID(ctx context.Context, warnID string, channelID, messageID int64) error
	AddFlag(ctx context.Context, f storage.NewFlag) (string, error)
	GetFlag(ctx context.Context, userID int64) (*storage.Flag, error)
}

type Platform interface {
	// NotifyUser sends a direct message. Failure is expected when the user
	// has closed their DMs.
	NotifyUser(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error
	Timeout(ctx context.Context, userID string, until time.Time, reason string) error
	Ban(ctx context.Context, userID, reason string, deleteMessageDays int) error
	ModLog(ctx context.Context, embed *discordgo.MessageEmbed) error
}

type Auditor interface {
	Log(ctx context.Context, action, guildID, moderatorID, targetID, details string)
}

type Reporter interface {
	Report(ctx context.Context, guildID string, since time.Time) (analytics.Report, error)
}

// MessageRef identifies the reply that announced an action.
type MessageRef struct {
	ChannelID string
	MessageID string
}

type Responder interface {
	Respond(ctx context.Context, content string, embed *discordgo.MessageEmbed) (MessageRef, error)
}

// Invocation carries who ran a command, where, and how to answer it.
type Invocation struct {
	Guild     Guild
	Moderator Person
	Reply     Responder
}

type Service struct {
	store    Store
	platform Platform
	audit    Auditor
	reports  Reporter
	logger   *zap.Logger
	now      func() time.Time
	pause    func(ctx context.Context, d time.Duration)
}

func New(store Store, platform Platform, auditor Auditor, reports Reporter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		platform: platform,
		audit:    auditor,
		reports:  reports,
		logger:   logger,
		now:      time.Now,
		pause:    sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Service) Warn(ctx context.Context, inv Invocation, target Person, reason string) error {
	ids, err := parseIDs(inv, target)
	if err != nil {
		return s.replyError(ctx, inv, err)
	}

	warnID, err := s.store.AddWarn(ctx, ids.warning(s.now(), reason))
	if err != nil {
		return s.replyError(ctx, inv, err)
	}

	dm := GuildEmbed(ColorYellow, inv.Guild, fmt.Sprintf("### You have been warned on the %s Discord", inv.Guild.Name))
	AddField(dm, "Warning", reason)
	dmSent := s.notify(ctx, target, dm)

	response := UserEmbed(ColorYellow, target, target.Mention()+" warned")
	AddField(response, "reason", reason)
	if !dmSent {
		AppendDescription(response, couldNotDM)
	}
	ref, err := inv.Reply.Respond(ctx, "", response)
	if err != nil {
		return fmt.Errorf("reply to warn: %w", err)
	}
	s.link(ctx, warnID, ref)

	log := UserEmbed(ColorRed, target, fmt.Sprintf("%s has been warned by %s", target.Mention(), inv.Moderator.Mention()))
	AddField(log, "reason", reason)
	s.modLog(ctx, log)

	s.record(ctx, audit.ActionWarn, inv, target.ID, reason)
	return nil
}

func (s *Service) Warnings(ctx context.Context, inv Invocation, target Person) error {
	userID, err := parseSnowflake(target.ID, "user")
	if err != nil {
		return s.replyError(ctx, inv, err)
	}

	warnings, err := s.store.ListWarns(ctx, userID)
	if err != nil {
		return s.replyError(ctx, inv, err)
	}
	flag, err := s.store.GetFlag(ctx, userID)
	if err != nil {
		return s.replyError(ctx, inv, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Warnings for %s (%d):\n", target.Mention(), len(warnings))
	for _, w := range warnings {
		if w.Message != nil {
			link := MessageURL(inv.Guild.ID, formatID(w.Message.ChannelID), formatID(w.Message.MessageID))
			fmt.Fprintf(&b, "\n**ID: [%s](%s) | Moderator: %s**", w.ID, link, Mention(formatID(w.ModeratorID)))
		} else {
			fmt.Fprintf(&b, "\n**ID: %s | Moderator: %s**", w.ID, Mention(formatID(w.ModeratorID)))
		}
		fmt.Fprintf(&b, "\n%s - %s\n", w.Reason, Timestamp(w.Datestamp, "f"))
	}
	if flag != nil {
		fmt.Fprintf(&b, "\n🚩 Flagged by %s on %s", Mention(formatID(flag.ModeratorID)), Timestamp(flag.Datestamp, "f"))
	}

	if _, err := inv.Reply.Respond(ctx, "", UserEmbed(ColorYellow, target, b.String())); err != nil {
		return fmt.Errorf("reply to warnings: %w", err)
	}
	return nil
}

func (s *Service) DelWarn(ctx context.Context, inv Invocation, warnID string) error {
	warnID = strings.TrimSpace(warnID)
	if err := s.store.DelWarn(ctx, warnID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.reply(ctx, inv, fmt.Sprintf("No warning found with ID `%s`", warnID), nil)
		}
		return s.replyError(ctx, inv, err)
	}

	embed := &discordgo.MessageEmbed{
		Description: fmt.Sprintf("%s deleted", warnID),
		Timestamp:   s.now().Format(time.RFC3339),
	}
	if err := s.reply(ctx, inv, "", embed); err != nil {
		return err
	}
	s.record(ctx, audit.ActionDelWarn, inv, "", warnID)
	return nil
}

// Flag marks a user as suspicious. A reason, when given, is also kept as a
// warning so it shows up in the user's history.
func (s *Service) Flag(ctx context.Context, inv Invocation, target Person, reason string) error {
	ids, err := parseIDs(inv, target)
	if err != nil {
		return s.replyError(ctx, inv, err)
	}

	now := s.now()
	if _, err := s.store.AddFlag(ctx, storage.NewFlag{
		ServerID:    ids.server,
		UserID:      ids.user,
		ModeratorID: ids.moderator,
		Datestamp:   now.Unix(),
	}); err != nil {
		return s.replyError(ctx, inv, err)
	}

	reason = strings.TrimSpace(reason)
	description := target.Mention() + " flagged"
	var warnID string
	if reason != "" {
		description = fmt.Sprintf("%s flagged for: %s", target.Mention(), reason)
		warnID, err = s.store.AddWarn(ctx, ids.warning(now, reasonPrefixFlag+reason))
		if err != nil {
			description += "\n\n_Error logging flag reason to warns_"
		}
	}

	ref, err := inv.Reply.Respond(ctx, "", UserEmbed(ColorYellow, target, description))
	if err != nil {
		return fmt.Errorf("reply to flag: %w", err)
	}
	s.link(ctx, warnID, ref)

	log := UserEmbed(ColorYellow, target, fmt.Sprintf("%s has been flagged by %s", target.Mention(), inv.Moderator.Mention()))
	if reason != "" {
		AddField(log, "reason", reason)
	}
	s.modLog(ctx, log)

	s.record(ctx, audit.ActionFlag, inv, target.ID, reason)
	return nil
}

func (s *Service) Mute(ctx context.Context, inv Invocation, target Person, rawDuration, reason string) error {
	duration, err := ParseDuration(rawDuration)
	if err != nil {
		return s.replyError(ctx, inv, err)
	}
	ids, err := parseIDs(inv, target)
	if err != nil {
		return s.replyError(ctx, inv, err)
	}

	now := s.now()
	if err := s.platform.Timeout(ctx, target.ID, now.Add(duration), reason); err != nil {
		if errors.Is(err, ErrNotMember) {
			return s.reply(ctx, inv, "User no longer on the server?", nil)
		}
		s.logger.Warn("timeout failed", zap.String("user_id", target.ID), zap.Error(err))
		return s.reply(ctx, inv, fmt.Sprintf("I couldn't time out %s, please try again", target.Mention()), nil)
	}

	warnID, recordErr := s.store.AddWarn(ctx, ids.warning(now, reasonPrefixMute+reason))

	dm := GuildEmbed(ColorRed, inv.Guild, fmt.Sprintf("### You have been muted on the %s Discord", inv.Guild.Name))
	AddField(dm, "Duration", FormatDuration(duration))
	AddField(dm, "Reason", reason)
	dmSent := s.notify(ctx, target, dm)

	shown := strings.TrimSpace(rawDuration)
	response := UserEmbed(ColorRed, target, fmt.Sprintf("Timed out %s for %s", target.Mention(), shown))
	AddField(response, "reason", reason)
	if !dmSent {
		AppendDescription(response, couldNotDM)
	}
	if recordErr != nil {
		AppendDescription(response, "\n\n_Error logging mute to warns_")
	}
	ref, err := inv.Reply.Respond(ctx, "", response)
	if err != nil {
		return fmt.Errorf("reply to mute: %w", err)
	}
	s.link(ctx, warnID, ref)

	log := UserEmbed(ColorRed, target, fmt.Sprintf("%s has been timed out for %s by %s", target.Mention(), shown, inv.Moderator.Mention()))
	AddField(log, "reason", reason)
	s.modLog(ctx, log)

	s.record(ctx, audit.ActionMute, inv, target.ID, FormatDuration(duration)+": "+reason)
	return nil
}

// Ban notifies the user before banning, since a banned user shares no server
// with the bot and can no longer be messaged.
func (s *Service) Ban(ctx context.Context, inv Invocation, target Person, reason string, deleteMessageDays int) error {
	if deleteMessageDays < 0 || deleteMessageDays > maxDeleteDays {
		return s.replyError(ctx, inv, invalid("delete_message_days must be between 0 and %d", maxDeleteDays))
	}
	ids, err := parseIDs(inv, target)
	if err != nil {
		return s.replyError(ctx, inv, err)
	}

	dm := GuildEmbed(ColorRed, inv.Guild, fmt.Sprintf("### You have been banned from the %s Discord", inv.Guild.Name))
	AddField(dm, "Reason", reason)
	dmSent := s.notify(ctx, target, dm)
	if dmSent {
		s.pause(ctx, banNoticeDelay)
	}

	if err := s.platform.Ban(ctx, target.ID, reason, deleteMessageDays); err != nil {
		s.logger.Warn("ban failed", zap.String("user_id", target.ID), zap.Error(err))
		return s.reply(ctx, inv, fmt.Sprintf("I couldn't ban %s, please try again", target.Mention()), nil)
	}

	warnID, recordErr := s.store.AddWarn(ctx, ids.warning(s.now(), reasonPrefixBan+reason))

	response := UserEmbed(ColorRed, target, "Banned "+target.Mention())
	AddField(response, "reason", reason)
	if !dmSent {
		AppendDescription(response, couldNotDM)
	}
	if recordErr != nil {
		AppendDescription(response, "\n\n_Error logging ban to warns_")
	}
	ref, err := inv.Reply.Respond(ctx, "", response)
	if err != nil {
		return fmt.Errorf("reply to ban: %w", err)
	}
	s.link(ctx, warnID, ref)

	log := UserEmbed(ColorRed, target, fmt.Sprintf("%s has been banned by %s", target.Mention(), inv.Moderator.Mention()))
	AddField(log, "reason", reason)
	s.modLog(ctx, log)

	s.record(ctx, audit.ActionBan, inv, target.ID, reason)
	return nil
}

// Appeal posts the outcome of a ban appeal. Nothing is stored as a warning.
func (s *Service) Appeal(ctx context.Context, inv Invocation, user, decision, notes string) error {
	embed := UserEmbed(ColorBlue, inv.Moderator, fmt.Sprintf("### Ban appeal for __%s__", user))
	AddField(embed, "Decision", decision)
	AddField(embed, "Notes", notes)
	if err := s.reply(ctx, inv, "", embed); err != nil {
		return err
	}
	s.record(ctx, audit.ActionAppeal, inv, "", user+": "+decision)
	return nil
}

var reportActions = []string{
	audit.ActionWarn,
	audit.ActionMute,
	audit.ActionBan,
	audit.ActionFlag,
	audit.ActionDelWarn,
	audit.ActionAppeal,
}

// Report summarizes moderator activity over the last day or week.
func (s *Service) Report(ctx context.Context, inv Invocation, period string) error {
	var window time.Duration
	var label string
	switch period {
	case "", "week":
		window, label = 7*24*time.Hour, "7 days"
	case "day":
		window, label = 24*time.Hour, "24 hours"
	default:
		return s.replyError(ctx, inv, invalid("Unknown period: %s", period))
	}
	if s.reports == nil {
		return s.reply(ctx, inv, "Reports are not available", nil)
	}

	report, err := s.reports.Report(ctx, inv.Guild.ID, s.now().Add(-window))
	if err != nil {
		return s.replyError(ctx, inv, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### Moderation report (last %s)\n", label)
	if report.Total == 0 {
		b.WriteString("\nNo moderator actions recorded.")
	} else {
		for _, action := range reportActions {
			if n := report.ByAction[action]; n > 0 {
				fmt.Fprintf(&b, "\n**%s**: %d", action, n)
			}
		}
		b.WriteString("\n\n**Most active moderators**")
		for _, row := range report.TopModerators(5) {
			fmt.Fprintf(&b, "\n%s - %d", Mention(row.ModeratorID), row.Count)
		}
	}
	return s.reply(ctx, inv, "", GuildEmbed(ColorBlurple, inv.Guild, b.String()))
}

// notify reports whether the user was reached. Only the DM call's own error is
// considered; it is expected for users who block DMs.
func (s *Service) notify(ctx context.Context, target Person, embed *discordgo.MessageEmbed) bool {
	if err := s.platform.NotifyUser(ctx, target.ID, embed); err != nil {
		s.logger.Debug("could not DM user", zap.String("user_id", target.ID), zap.Error(err))
		return false
	}
	return true
}

// link records which reply announced a warning. The link is supplementary, so
// failures are only logged.
func (s *Service) link(ctx context.Context, warnID string, ref MessageRef) {
	if warnID == "" {
		return
	}
	channelID, err := parseSnowflake(ref.ChannelID, "channel")
	if err != nil {
		s.logger.Warn("reply has no channel id", zap.String("warn_id", warnID), zap.Error(err))
		return
	}
	messageID, err := parseSnowflake(ref.MessageID, "message")
	if err != nil {
		s.logger.Warn("reply has no message id", zap.String("warn_id", warnID), zap.Error(err))
		return
	}
	if err := s.store.AddWarnMessageID(ctx, warnID, channelID, messageID); err != nil {
		s.logger.Warn("warning not linked to reply", zap.String("warn_id", warnID), zap.Error(err))
	}
}

func (s *Service) modLog(ctx context.Context, embed *discordgo.MessageEmbed) {
	if err := s.platform.ModLog(ctx, embed); err != nil {
		s.logger.Warn("mod log post failed", zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, action string, inv Invocation, targetID, details string) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, action, inv.Guild.ID, inv.Moderator.ID, targetID, details)
}

func (s *Service) reply(ctx context.Context, inv Invocation, content string, embed *discordgo.MessageEmbed) error {
	if _, err := inv.Reply.Respond(ctx, content, embed); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

// replyError answers a failed command: validation problems verbatim, anything
// else with the generic database apology.
func (s *Service) replyError(ctx context.Context, inv Invocation, cause error) error {
	var verr *ValidationError
	if errors.As(cause, &verr) {
		return s.reply(ctx, inv, verr.Message, nil)
	}
	if !errors.Is(cause, storage.ErrDatabase) {
		s.logger.Error("command failed", zap.Error(cause))
	}
	return s.reply(ctx, inv, DatabaseErrorMessage, nil)
}

type actionIDs struct {
	server, user, moderator int64
}

func (ids actionIDs) warning(at time.Time, reason string) storage.NewWarning {
	return storage.NewWarning{
		ServerID:    ids.server,
		UserID:      ids.user,
		ModeratorID: ids.moderator,
		Datestamp:   at.Unix(),
		Reason:      reason,
	}
}

func parseIDs(inv Invocation, target Person) (actionIDs, error) {
	var ids actionIDs
	var err error
	if ids.server, err = parseSnowflake(inv.Guild.ID, "server"); err != nil {
		return ids, err
	}
	if ids.user, err = parseSnowflake(target.ID, "user"); err != nil {
		return ids, err
	}
	if ids.moderator, err = parseSnowflake(inv.Moderator.ID, "moderator"); err != nil {
		return ids, err
	}
	return ids, nil
}

func parseSnowflake(raw, what string) (int64, error) {
	id, err := snowflake.Parse(raw)
	if err != nil {
		return 0, invalid("Invalid %s id: %s", what, raw)
	}
	return int64(id), nil
}

func formatID(id int64) string {
	return snowflake.ID(id).String()
}
