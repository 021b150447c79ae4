// Package rules serves /rules: showing, versioning and posting the server
// regulations.
package rules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/access"
	"github.com/oooz/oooz-bot/src/actions/core"
	"github.com/oooz/oooz-bot/src/discord"
	engine "github.com/oooz/oooz-bot/src/rules"
	"github.com/oooz/oooz-bot/src/sugestie"
	"github.com/oooz/oooz-bot/src/webclient"
)

const (
	prefix      = "rules"
	maxOptions  = 25
	maxFile     = 1 << 20
	webAttempts = 3
)

var (
	errNoChannel = errors.New("rules: no rules channel")

	textNoRules = "Nie został jeszcze ustanowiony żaden regulamin… 🤨"
	textSet     = "Pomyślnie ustanowiono nowy regulamin. 🫡"
)

var _ core.Module = (*Module)(nil)

type Module struct {
	rt      *core.Runtime
	rules   *engine.Rules
	prompts *core.Prompts
	log     *slog.Logger

	// rulesChannel finds the guild's rules channel.
	rulesChannel func() (string, error)
	// fetch downloads an attachment.
	fetch func(ctx context.Context, url string) ([]byte, error)

	runtimeCtx context.Context
	cancel     context.CancelFunc
	remove     func()
}

func NewModule(rt *core.Runtime) *Module {
	m := &Module{
		rt:         rt,
		rules:      rt.Rules,
		prompts:    core.NewPrompts(rt.Now),
		log:        rt.Logger.With("component", "rules"),
		runtimeCtx: context.Background(),
	}
	m.rulesChannel = m.guildRulesChannel
	m.fetch = func(ctx context.Context, url string) ([]byte, error) {
		data, _, err := webclient.GetBytes(ctx, rt.Web, url, webAttempts, maxFile)
		return data, err
	}
	rt.Console.Scope("rules").Register("resend", "", "reposts the rules channel", func(ctx context.Context, _ string) (any, error) {
		return nil, m.resend(ctx)
	})
	return m
}

func (m *Module) Name() string { return "rules" }

func (m *Module) Start(ctx context.Context) error {
	m.runtimeCtx, m.cancel = context.WithCancel(ctx)
	m.remove = m.rt.Listen(m.onInteractionCreate)
	return nil
}

func (m *Module) Stop(context.Context) {
	if m.remove != nil {
		m.remove()
	}
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Module) guildRulesChannel() (string, error) {
	s := m.rt.Session
	if s == nil {
		return "", errNoChannel
	}
	id := m.rt.Cfg().Guild
	g, err := s.State.Guild(id)
	if err != nil {
		if g, err = s.Guild(id); err != nil {
			return "", fmt.Errorf("rules: guild %s: %w", id, err)
		}
	}
	if g.RulesChannelID == "" {
		return "", errNoChannel
	}
	return g.RulesChannelID, nil
}

func (m *Module) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	m.handle(m.rt.Session, i.Interaction)
}

func (m *Module) handle(r discord.Responder, i *discordgo.Interaction) {
	var err error
	switch core.CommandName(i) {
	case discord.CommandRules:
		err = m.command(r, i)
	case "":
		id := core.ComponentID(i)
		if i.Type != discordgo.InteractionMessageComponent || !strings.HasPrefix(id, prefix+":") {
			return
		}
		err = m.component(r, i, id)
	default:
		return
	}
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrNoRules):
		if rerr := discord.ReplyEphemeral(r, i, textNoRules); rerr != nil {
			m.log.Warn("could not report failure", "interaction", i.ID, "error", rerr)
		}
	default:
		core.Fail(r, i, err, m.log)
	}
}

func rulesFile(text string) *discordgo.File {
	return &discordgo.File{Name: "rules.md", ContentType: "text/markdown", Reader: strings.NewReader(text + "\n")}
}

func replyFile(r discord.Responder, i *discordgo.Interaction, content, text string) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Files:   []*discordgo.File{rulesFile(text)},
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (m *Module) command(r discord.Responder, i *discordgo.Interaction) error {
	ctx := m.runtimeCtx
	actor := discord.Actor(i)
	sub, opts := discord.Subcommand(i.ApplicationCommandData())
	switch sub {
	case "show":
		v, err := m.rules.Current(ctx)
		if err != nil {
			return err
		}
		return replyFile(r, i, "Załączam regulamin obowiązujący na serwerze. 😉", v.Text)
	case "history":
		h := m.rules.History(ctx)
		if len(h) == 0 {
			return engine.ErrNoRules
		}
		options := make([]discordgo.SelectMenuOption, 0, min(len(h), maxOptions))
		for k := len(h) - 1; k >= 0 && len(options) < maxOptions; k-- {
			options = append(options, discordgo.SelectMenuOption{
				Label: discord.FormatTime(h[k].Time),
				Value: h[k].Time.UTC().Format(time.RFC3339Nano),
			})
		}
		return discord.ReplySelect(r, i, "Którą wersję regulaminu chcesz zobaczyć?", core.CustomID(prefix, "history", i.ID), options, true)
	case "resend":
		if err := actor.RequireStaff(m.rt.Cfg().StaffRoles); err != nil {
			return err
		}
		if _, err := m.rules.Current(ctx); err != nil {
			return err
		}
		if err := discord.DeferEphemeral(r, i); err != nil {
			return err
		}
		return discord.EditReply(r, i, m.resendText(ctx))
	case "set":
		if err := actor.RequireStaff(m.rt.Cfg().StaffRoles); err != nil {
			return err
		}
		return m.set(r, i, actor, opts)
	}
	return fmt.Errorf("rules: unknown subcommand %q", sub)
}

func (m *Module) resendText(ctx context.Context) string {
	err := m.resend(ctx)
	switch {
	case err == nil:
		return "Pomyślnie zaaktualizowano kanał z regulaminem. 🫡"
	case errors.Is(err, errNoChannel):
		return "Nie został jeszcze ustawiony żaden kanał z zasadami… 🤨"
	default:
		m.log.Error("resending rules failed", "error", err)
		return "Coś poszło nie tak… 😵"
	}
}

// resend replaces the contents of the rules channel with the current rules.
func (m *Module) resend(ctx context.Context) error {
	v, err := m.rules.Current(ctx)
	if err != nil {
		return err
	}
	channel, err := m.rulesChannel()
	if err != nil {
		return err
	}
	purged, err := discord.NewHistory(m.rt.Discord, func() string { return channel }).Purge(ctx)
	if err != nil {
		return err
	}
	fragments := engine.Fragments(v.Text)
	for _, f := range fragments {
		_, err := m.rt.Discord.ChannelMessageSendComplex(channel, &discordgo.MessageSend{
			Content:         f,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		})
		if err != nil {
			return fmt.Errorf("rules: post fragment: %w", err)
		}
	}
	m.log.Info("rules channel updated", "channel", channel, "purged", purged, "fragments", len(fragments))
	return nil
}

func (m *Module) set(r discord.Responder, i *discordgo.Interaction, actor access.Actor, opts discord.Options) error {
	ctx := m.runtimeCtx
	data := i.ApplicationCommandData()
	var attachment *discordgo.MessageAttachment
	if data.Resolved != nil {
		attachment = data.Resolved.Attachments[opts.ID("text")]
	}
	if attachment == nil {
		return access.Deny(access.EmptyText)
	}
	raw, err := m.fetch(ctx, attachment.URL)
	if err != nil {
		return fmt.Errorf("rules: download %s: %w", attachment.Filename, err)
	}
	if !utf8.Valid(raw) || bytes.IndexByte(raw, 0) >= 0 {
		return discord.ReplyEphemeral(r, i, "Załączony regulamin musi być plikiem tekstowym… 🤨")
	}
	text := engine.Normalize(string(raw))
	if text == "" {
		return discord.ReplyEphemeral(r, i, "Regulamin nie może być pusty… 🤨")
	}
	for _, f := range engine.Fragments(text) {
		if utf8.RuneCountInString(f) > engine.MaxFragment {
			return discord.ReplyEphemeral(r, i, "Regulamin nie może zawierać paragrafy dłuższe niż ~2000 znaków. 😊")
		}
	}

	n := opts.Int("ile_sugestii")
	if n == 0 {
		return m.establish(r, i, actor, text, nil, false)
	}
	pending := m.rt.Sugestie.List(ctx, sugestie.Pending)
	if len(pending) < n {
		return discord.ReplyEphemeral(r, i, fmt.Sprintf("Nie ma co najmniej **%d** sugestii, które zostały jeszcze do wykonania… 🤨", n))
	}
	options := make([]discordgo.SelectMenuOption, 0, min(len(pending), maxOptions))
	for k := len(pending) - 1; k >= 0 && len(options) < maxOptions; k-- {
		p := pending[k]
		label := strings.Join(strings.Fields(p.Text), " ")
		if label == "" {
			label = "(obraz)"
		}
		options = append(options, discordgo.SelectMenuOption{
			Label:       discord.LimitLen(label),
			Value:       p.ID,
			Description: discord.FormatTime(p.ReviewEnd),
		})
	}
	m.prompts.Put(i.ID, core.Prompt{User: actor.ID, Text: text})
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "Z którymi sugestiami jest powiązana ta zmiana regulaminu?",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.SelectMenu{
						CustomID:  core.CustomID(prefix, "set", i.ID),
						MinValues: &n,
						MaxValues: n,
						Options:   options,
					},
				}},
			},
		},
	})
}

// establish records the rules and reposts the channel. update replaces the
// select menu message instead of answering anew.
func (m *Module) establish(r discord.Responder, i *discordgo.Interaction, actor access.Actor, text string, proposals []string, update bool) error {
	if _, err := m.rules.Set(m.runtimeCtx, actor, text, proposals); err != nil {
		return err
	}
	var err error
	if update {
		err = discord.UpdateMessage(r, i, textSet)
	} else {
		err = discord.Reply(r, i, textSet)
	}
	if rerr := m.resend(m.runtimeCtx); rerr != nil {
		m.log.Error("resending rules failed", "error", rerr)
	}
	return err
}

func (m *Module) component(r discord.Responder, i *discordgo.Interaction, id string) error {
	parts, ok := core.SplitCustomID(id, 3)
	if !ok {
		return nil
	}
	values := i.MessageComponentData().Values
	if len(values) == 0 {
		return discord.Defer(r, i)
	}
	switch parts[1] {
	case "history":
		t, err := time.Parse(time.RFC3339Nano, values[0])
		if err != nil {
			return fmt.Errorf("rules: bad version key %q: %w", values[0], err)
		}
		v, err := m.rules.At(m.runtimeCtx, t)
		if err != nil {
			return err
		}
		return replyFile(r, i, fmt.Sprintf("Załączam regulamin z dnia %s. 😉", discord.Timestamp(v.Time, "")), v.Text)
	case "set":
		actor := discord.Actor(i)
		prompt, ok := m.prompts.Take(parts[2], actor.ID)
		if !ok {
			return discord.ReplyEphemeral(r, i, "To menu już wygasło, użyj komendy jeszcze raz. ⏱️")
		}
		return m.establish(r, i, actor, prompt.Text, values, true)
	}
	return nil
}
