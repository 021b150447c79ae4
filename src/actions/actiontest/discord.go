package actiontest

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/discord"
)

// BotID is the user id of the bot in the fake guild.
const BotID = "999"

var _ discord.Session = (*Discord)(nil)

// Discord is an in-memory guild: channels with message history, members
// and direct messages.
type Discord struct {
	mu       sync.Mutex
	now      func() time.Time
	next     int
	channels map[string][]*discordgo.Message
	members  map[string]*discordgo.Member
	// DMs holds the direct messages sent to each user.
	DMs map[string][]string
	// Deleted lists every deleted message id.
	Deleted []string
	// Reactions logs reactions as "+msg emoji" and "-msg emoji user".
	Reactions []string
}

func NewDiscord(now func() time.Time) *Discord {
	return &Discord{
		now:      now,
		next:     5000,
		channels: map[string][]*discordgo.Message{},
		members:  map[string]*discordgo.Member{},
		DMs:      map[string][]string{},
	}
}

func notFound(code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusNotFound},
		Message:  &discordgo.APIErrorMessage{Code: code},
	}
}

func (d *Discord) add(channel string, author *discordgo.User, content string, attachments []*discordgo.MessageAttachment) *discordgo.Message {
	d.next++
	base, _ := strconv.ParseInt(discord.SnowflakeAt(d.now()), 10, 64)
	m := &discordgo.Message{
		ID:          strconv.FormatInt(base+int64(d.next), 10),
		ChannelID:   channel,
		Content:     content,
		Author:      author,
		Timestamp:   d.now(),
		Attachments: attachments,
	}
	d.channels[channel] = append(d.channels[channel], m)
	return m
}

// Post simulates a user writing in channel.
func (d *Discord) Post(channel, user, content string, attachments ...*discordgo.MessageAttachment) *discordgo.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.add(channel, &discordgo.User{ID: user}, content, attachments)
}

// Messages returns the contents of channel, oldest first.
func (d *Discord) Messages(channel string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, m := range d.channels[channel] {
		out = append(out, m.Content)
	}
	return out
}

// AddMember joins a member to the guild.
func (d *Discord) AddMember(m *discordgo.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.User.ID] = m
}

func (d *Discord) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if user, ok := strings.CutPrefix(channelID, "dm-"); ok {
		d.DMs[user] = append(d.DMs[user], data.Content)
	}
	m := d.add(channelID, &discordgo.User{ID: BotID, Bot: true}, data.Content, nil)
	m.Embeds = data.Embeds
	return m, nil
}

// Embeds returns the embeds posted to channel, oldest first.
func (d *Discord) Embeds(channel string) []*discordgo.MessageEmbed {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*discordgo.MessageEmbed
	for _, m := range d.channels[channel] {
		out = append(out, m.Embeds...)
	}
	return out
}

func (d *Discord) MessageReactionAdd(_, messageID, emojiID string, _ ...discordgo.RequestOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Reactions = append(d.Reactions, "+"+messageID+" "+emojiID)
	return nil
}

func (d *Discord) MessageReactionRemove(_, messageID, emojiID, userID string, _ ...discordgo.RequestOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Reactions = append(d.Reactions, "-"+messageID+" "+emojiID+" "+userID)
	return nil
}

func (d *Discord) ChannelMessageEditComplex(e *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.channels[e.Channel] {
		if m.ID == e.ID {
			if e.Content != nil {
				m.Content = *e.Content
			}
			return m, nil
		}
	}
	return nil, notFound(discordgo.ErrCodeUnknownMessage)
}

func (d *Discord) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	msgs := d.channels[channelID]
	for i, m := range msgs {
		if m.ID == messageID {
			d.channels[channelID] = slices.Delete(msgs, i, i+1)
			d.Deleted = append(d.Deleted, messageID)
			return nil
		}
	}
	return notFound(discordgo.ErrCodeUnknownMessage)
}

// ChannelMessages returns the oldest limit messages after afterID, newest
// first, like Discord does.
func (d *Discord) ChannelMessages(channelID string, limit int, _, afterID, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	after, _ := strconv.ParseInt(afterID, 10, 64)
	var page []*discordgo.Message
	for _, m := range d.channels[channelID] {
		if id, _ := strconv.ParseInt(m.ID, 10, 64); id > after && len(page) < limit {
			page = append(page, m)
		}
	}
	slices.Reverse(page)
	return page, nil
}

func (d *Discord) GuildMember(_, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[userID]
	if !ok {
		return nil, notFound(discordgo.ErrCodeUnknownMember)
	}
	return m, nil
}

func (d *Discord) GuildMembers(_, after string, limit int, _ ...discordgo.RequestOption) ([]*discordgo.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]int, 0, len(d.members))
	for id := range d.members {
		n, _ := strconv.Atoi(id)
		ids = append(ids, n)
	}
	slices.Sort(ids)
	from, _ := strconv.Atoi(after)
	var out []*discordgo.Member
	for _, id := range ids {
		if id > from && len(out) < limit {
			out = append(out, d.members[strconv.Itoa(id)])
		}
	}
	return out, nil
}

func (d *Discord) GuildMemberRoleAdd(_, userID, roleID string, _ ...discordgo.RequestOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[userID]
	if !ok {
		return notFound(discordgo.ErrCodeUnknownMember)
	}
	if !slices.Contains(m.Roles, roleID) {
		m.Roles = append(m.Roles, roleID)
	}
	return nil
}

func (d *Discord) GuildMemberRoleRemove(_, userID, roleID string, _ ...discordgo.RequestOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[userID]
	if !ok {
		return notFound(discordgo.ErrCodeUnknownMember)
	}
	m.Roles = slices.DeleteFunc(m.Roles, func(r string) bool { return r == roleID })
	return nil
}

func (d *Discord) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}
