package moderation

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	ColorRed     = 0xE74C3C
	ColorDarkRed = 0x992D22
	ColorGreen   = 0x2ECC71
	ColorBlue    = 0x3498DB
	ColorYellow  = 0xFEE75C
	ColorBlurple = 0x5865F2
)

// Embed descriptions are capped by the platform.
const maxDescription = 4096

// Person is a user as shown in an embed header.
type Person struct {
	ID        string
	Name      string
	AvatarURL string
}

// Guild is the server as shown in an embed header.
type Guild struct {
	ID      string
	Name    string
	IconURL string
}

func (p Person) Mention() string {
	return Mention(p.ID)
}

func Mention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

func ChannelMention(channelID string) string {
	return fmt.Sprintf("<#%s>", channelID)
}

// Timestamp renders a unix time with the client-side formatter, style "f" or "R".
func Timestamp(unix int64, style string) string {
	return fmt.Sprintf("<t:%d:%s>", unix, style)
}

func MessageURL(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

// UserEmbed builds an embed headed by a user: name and avatar as author and
// thumbnail, the id in the footer.
func UserEmbed(color int, p Person, description string) *discordgo.MessageEmbed {
	embed := baseEmbed(color, description)
	embed.Author = &discordgo.MessageEmbedAuthor{Name: p.Name, IconURL: p.AvatarURL}
	if p.AvatarURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: p.AvatarURL}
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "User ID: " + p.ID}
	return embed
}

func GuildEmbed(color int, g Guild, description string) *discordgo.MessageEmbed {
	embed := baseEmbed(color, description)
	embed.Author = &discordgo.MessageEmbedAuthor{Name: g.Name, IconURL: g.IconURL}
	if g.IconURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: g.IconURL}
	}
	return embed
}

func baseEmbed(color int, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       color,
		Description: Truncate(description, maxDescription),
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func AddField(embed *discordgo.MessageEmbed, name, value string) {
	if value == "" {
		value = "_none_"
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: name, Value: Truncate(value, 1024)})
}

// AppendDescription adds text to an embed while keeping it within limits.
func AppendDescription(embed *discordgo.MessageEmbed, text string) {
	embed.Description = Truncate(embed.Description+text, maxDescription)
}

// Truncate cuts s to at most limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
