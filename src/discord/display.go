package discord

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/logging"
	"github.com/oooz/oooz-bot/src/sugestie"
)

const (
	colorReviewing = 0x3B82F6
	colorVoting    = 0xF39C12
	colorPassed    = 0x2ECC71
	colorRejected  = 0xE74C3C
	colorAnnulled  = 0x7F8C8D

	maxEmbedFields = 25
	maxFieldValue  = 1024
)

// Display draws proposals as embeds with buttons.
type Display struct {
	s Session
}

var _ sugestie.Display = (*Display)(nil)

func NewDisplay(s Session) *Display { return &Display{s: s} }

func (d *Display) PostProposal(_ context.Context, channel string, v sugestie.View) (string, error) {
	msg := &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{ProposalEmbed(v)},
		Components:      ProposalComponents(v),
		AllowedMentions: noMentions,
	}
	if v.Image != nil {
		name := "image." + imageExt(v.Image.Format)
		msg.Files = []*discordgo.File{{
			Name:        name,
			ContentType: "image/" + imageExt(v.Image.Format),
			Reader:      bytes.NewReader(v.Image.Data),
		}}
		msg.Embeds[0].Image = &discordgo.MessageEmbedImage{URL: "attachment://" + name}
	}
	sent, err := d.s.ChannelMessageSendComplex(channel, msg)
	if err != nil {
		return "", fmt.Errorf("discord: post proposal: %w", err)
	}
	return sent.ID, nil
}

func (d *Display) EditProposal(_ context.Context, channel, messageID string, v sugestie.View) error {
	embed := ProposalEmbed(v)
	if v.Image != nil {
		embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://image." + imageExt(v.Image.Format)}
	}
	embeds := []*discordgo.MessageEmbed{embed}
	components := ProposalComponents(v)
	_, err := d.s.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channel,
		Embeds:     &embeds,
		Components: &components,
	})
	return classify(err)
}

func (d *Display) DeleteProposal(_ context.Context, channel, messageID string) error {
	return classify(d.s.ChannelMessageDelete(channel, messageID))
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if logging.IsNotFound(err) {
		return fmt.Errorf("%w: %v", sugestie.ErrMessageMissing, err)
	}
	return err
}

func imageExt(format string) string {
	format = strings.ToLower(strings.TrimPrefix(format, "image/"))
	if format == "" || format == "jpg" {
		return "jpeg"
	}
	return format
}

// ProposalEmbed renders the proposal body and status.
func ProposalEmbed(v sugestie.View) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       "Sugestia",
		Description: v.Text,
		Timestamp:   v.Created.Format("2006-01-02T15:04:05Z07:00"),
		Color:       phaseColor(v.Phase),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Autor", Value: MentionUser(v.Author), Inline: true},
			{Name: "Status", Value: Status(v)},
		},
	}
	for _, c := range v.Comments {
		if len(e.Fields) == maxEmbedFields {
			break
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  "Komentarz",
			Value: truncate(MentionUser(c.Author)+": "+c.Text, maxFieldValue),
		})
	}
	return e
}

// Status describes the phase of v in a few lines.
func Status(v sugestie.View) string {
	var b strings.Builder
	switch v.Phase {
	case sugestie.Reviewing:
		fmt.Fprintf(&b, "Trwa **komentowanie**, które skończy się %s. Głosowanie potrwa do %s. 💬",
			Timestamp(v.ReviewEnd, "R"), Timestamp(v.VoteEnd, ""))
	case sugestie.Voting:
		fmt.Fprintf(&b, "**Głosowanie jeszcze trwa** i skończy się %s. ❔", Timestamp(v.VoteEnd, "R"))
	case sugestie.Annulled:
		fmt.Fprintf(&b, "Sugestia **została unieważniona** %s z powodu `%s`. 🚯",
			Timestamp(v.Annulled.Time, ""), Debacktick(v.Annulled.Text))
	case sugestie.Rejected:
		fmt.Fprintf(&b, "Głosowanie zakończyło się %s wynikiem **negatywnym**. ❌", Timestamp(v.VoteEnd, ""))
	case sugestie.Passed:
		fmt.Fprintf(&b, "Głosowanie zakończyło się %s wynikiem **pozytywnym**. ✅\n", Timestamp(v.VoteEnd, ""))
		b.WriteString("Sugestia **nie została jeszcze wykonana** przez administrację. ❓")
	case sugestie.Done:
		fmt.Fprintf(&b, "Głosowanie zakończyło się %s wynikiem **pozytywnym**. ✅\n", Timestamp(v.VoteEnd, ""))
		fmt.Fprintf(&b, "Sugestia **została wykonana** %s z opisem zmian `%s` ✅",
			Timestamp(v.Done.Time, ""), Debacktick(v.Done.Text))
	}
	return b.String()
}

func phaseColor(p sugestie.Phase) int {
	switch p {
	case sugestie.Reviewing:
		return colorReviewing
	case sugestie.Voting:
		return colorVoting
	case sugestie.Passed, sugestie.Done:
		return colorPassed
	case sugestie.Rejected:
		return colorRejected
	default:
		return colorAnnulled
	}
}

// ProposalComponents turns the view's buttons into one action row.
func ProposalComponents(v sugestie.View) []discordgo.MessageComponent {
	buttons := make([]discordgo.MessageComponent, 0, len(v.Buttons))
	for _, b := range v.Buttons {
		label := b.Label
		if _, vote := sugestie.ButtonChoice(b.ID); vote || b.Count > 0 {
			label = fmt.Sprintf("%s (%d)", b.Label, b.Count)
		}
		buttons = append(buttons, discordgo.Button{
			CustomID: b.ID,
			Label:    label,
			Style:    buttonStyle(b.Style),
			Disabled: b.Disabled,
		})
	}
	if len(buttons) == 0 {
		return []discordgo.MessageComponent{}
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func buttonStyle(s sugestie.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case sugestie.StylePrimary:
		return discordgo.PrimaryButton
	case sugestie.StyleSuccess:
		return discordgo.SuccessButton
	case sugestie.StyleDanger:
		return discordgo.DangerButton
	default:
		return discordgo.SecondaryButton
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - len("…")
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
