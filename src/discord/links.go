package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/links"
	"github.com/oooz/oooz-bot/src/logging"
)

// LinkBoard is the curated task channel.
type LinkBoard struct {
	s       Session
	history *History
	guild   func() string
	channel func() string
	self    func() string
}

var _ links.Board = (*LinkBoard)(nil)

// NewLinkBoard reads the configured channel. self returns the bot's user id.
func NewLinkBoard(s Session, guild, channel, self func() string) *LinkBoard {
	return &LinkBoard{s: s, history: NewHistory(s, channel), guild: guild, channel: channel, self: self}
}

func (b *LinkBoard) MessagesAfter(ctx context.Context, after time.Time) ([]links.Message, error) {
	raw, err := b.history.Raw(ctx, after)
	if err != nil {
		return nil, err
	}
	self := b.self()
	out := make([]links.Message, 0, len(raw))
	for _, m := range raw {
		msg := links.Message{ID: m.ID, Content: m.Content, Created: m.Timestamp}
		if m.Author != nil {
			msg.Author = m.Author.ID
			msg.Name = displayName(m.Author)
			msg.Avatar = m.Author.AvatarURL("")
			msg.Bot = m.Author.Bot
			msg.Own = m.Author.ID == self
		}
		out = append(out, msg)
	}
	return out, nil
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func (b *LinkBoard) Delete(ctx context.Context, id string) error {
	return b.history.Delete(ctx, id)
}

func (b *LinkBoard) Publish(_ context.Context, p links.Post) (string, string, error) {
	channel := b.channel()
	embed := &discordgo.MessageEmbed{
		Title:       truncate(p.Title, 256),
		URL:         p.URL,
		Description: truncate(p.Description, 4096),
		Footer:      &discordgo.MessageEmbedFooter{Text: p.Author, IconURL: p.Avatar},
	}
	msg, err := b.s.ChannelMessageSendComplex(channel, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}})
	if err != nil {
		return "", "", fmt.Errorf("discord: publish to %s: %w", channel, err)
	}
	for _, r := range links.Reactions {
		if err := b.s.MessageReactionAdd(channel, msg.ID, r); err != nil {
			return "", "", fmt.Errorf("discord: react on %s: %w", msg.ID, err)
		}
	}
	return msg.ID, fmt.Sprintf("https://discord.com/channels/%s/%s/%s", b.guild(), channel, msg.ID), nil
}

func (b *LinkBoard) RemoveReaction(_ context.Context, id, emoji, user string) error {
	err := b.s.MessageReactionRemove(b.channel(), id, emoji, user)
	if err != nil && !logging.IsNotFound(err) {
		return fmt.Errorf("discord: remove reaction on %s: %w", id, err)
	}
	return nil
}

// DM sends content to user, with attachment as message.md when not empty.
func (b *LinkBoard) DM(_ context.Context, user, content, attachment string) error {
	ch, err := b.s.UserChannelCreate(user)
	if err != nil {
		return fmt.Errorf("discord: dm %s: %w", user, err)
	}
	send := &discordgo.MessageSend{Content: content}
	if attachment != "" {
		send.Files = []*discordgo.File{{Name: "message.md", ContentType: "text/markdown", Reader: strings.NewReader(attachment)}}
	}
	_, err = b.s.ChannelMessageSendComplex(ch.ID, send)
	return err
}
