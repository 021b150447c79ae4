package discord

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/counting"
	"github.com/oooz/oooz-bot/src/logging"
	"github.com/oooz/oooz-bot/src/reminders/atcoder"
	"github.com/oooz/oooz-bot/src/reminders/codeforces"
)

const (
	historyPage  = 100
	discordEpoch = 1420070400000
)

// SnowflakeAt returns the smallest snowflake that could be created at t.
func SnowflakeAt(t time.Time) string {
	ms := t.UnixMilli() - discordEpoch
	if ms < 0 {
		ms = 0
	}
	return strconv.FormatInt(ms<<22, 10)
}

// Poster sends plain text, split to fit and with link previews suppressed.
type Poster struct {
	s Session
}

var (
	_ codeforces.Poster = (*Poster)(nil)
	_ atcoder.Poster    = (*Poster)(nil)
)

func NewPoster(s Session) *Poster { return &Poster{s: s} }

func (p *Poster) Send(ctx context.Context, channel, content string) error {
	for _, chunk := range SplitMessage(WrapURLsNoEmbed(content), MaxDiscordMessageLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := p.s.ChannelMessageSendComplex(channel, &discordgo.MessageSend{Content: chunk}); err != nil {
			return fmt.Errorf("discord: send to %s: %w", channel, err)
		}
	}
	return nil
}

// History reads a channel oldest first.
type History struct {
	s       Session
	channel func() string
}

var _ counting.Channel = (*History)(nil)

func NewHistory(s Session, channel func() string) *History {
	return &History{s: s, channel: channel}
}

// Raw returns the messages posted after t, oldest first.
func (h *History) Raw(ctx context.Context, after time.Time) ([]*discordgo.Message, error) {
	channel := h.channel()
	cursor := SnowflakeAt(after)
	var out []*discordgo.Message
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := h.s.ChannelMessages(channel, historyPage, "", cursor, "")
		if err != nil {
			return nil, fmt.Errorf("discord: history of %s: %w", channel, err)
		}
		slices.SortFunc(page, func(a, b *discordgo.Message) int { return compareIDs(a.ID, b.ID) })
		for _, m := range page {
			if m.Timestamp.After(after) {
				out = append(out, m)
			}
		}
		if len(page) < historyPage {
			return out, nil
		}
		cursor = page[len(page)-1].ID
	}
}

func (h *History) MessagesAfter(ctx context.Context, after time.Time) ([]counting.Message, error) {
	raw, err := h.Raw(ctx, after)
	if err != nil {
		return nil, err
	}
	out := make([]counting.Message, 0, len(raw))
	for _, m := range raw {
		if m.Author != nil && m.Author.Bot {
			continue
		}
		out = append(out, counting.Message{ID: m.ID, Content: m.Content, Created: m.Timestamp})
	}
	return out, nil
}

// Delete removes a message. One that is already gone counts as deleted.
func (h *History) Delete(_ context.Context, id string) error {
	err := h.s.ChannelMessageDelete(h.channel(), id)
	if err != nil && !logging.IsNotFound(err) {
		return fmt.Errorf("discord: delete %s: %w", id, err)
	}
	return nil
}

// Purge deletes every message of the channel.
func (h *History) Purge(ctx context.Context) (int, error) {
	msgs, err := h.Raw(ctx, time.Unix(0, discordEpoch*int64(time.Millisecond)))
	if err != nil {
		return 0, err
	}
	for i, m := range msgs {
		if err := h.Delete(ctx, m.ID); err != nil {
			return i, err
		}
	}
	return len(msgs), nil
}

// compareIDs orders snowflakes numerically.
func compareIDs(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
