// Package sugestie connects the proposal engine to Discord: it turns messages
// in the proposals channel into proposals and handles the vote and comment
// buttons and the /sugestie command.
package sugestie

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/access"
	"github.com/oooz/oooz-bot/src/actions/core"
	"github.com/oooz/oooz-bot/src/discord"
	engine "github.com/oooz/oooz-bot/src/sugestie"
	"github.com/oooz/oooz-bot/src/webclient"
)

const (
	prefix      = "sugestie"
	maxImage    = 8 << 20
	webAttempts = 3
)

var _ core.Module = (*Module)(nil)

type Module struct {
	rt      *core.Runtime
	engine  *engine.Engine
	history *discord.History
	prompts *core.Prompts
	log     *slog.Logger

	runtimeCtx context.Context
	cancel     context.CancelFunc
	remove     func()

	// cleaning keeps two cleanups from reposting the same message.
	cleaning sync.Mutex
}

func NewModule(rt *core.Runtime) *Module {
	m := &Module{
		rt:      rt,
		engine:  rt.Sugestie,
		history: discord.NewHistory(rt.Discord, func() string { return rt.Cfg().Sugestie.Channel }),
		prompts: core.NewPrompts(rt.Now),
		log:     rt.Logger.With("component", "sugestie"),
	}
	rt.Console.Scope("sugestie").Register("update_all", "", "updates all sugestie", func(ctx context.Context, _ string) (any, error) {
		return nil, m.engine.UpdateAll(ctx)
	})
	return m
}

func (m *Module) Name() string { return "sugestie" }

func (m *Module) Start(ctx context.Context) error {
	m.runtimeCtx, m.cancel = context.WithCancel(ctx)
	m.remove = m.rt.Listen(m.onReady, m.onMessageCreate, m.onInteractionCreate)
	return m.engine.Start(m.runtimeCtx)
}

func (m *Module) Stop(context.Context) {
	if m.remove != nil {
		m.remove()
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.engine.Stop()
}

func (m *Module) onReady(s *discordgo.Session, r *discordgo.Ready) {
	m.log.Info("cleaning proposals channel")
	if err := m.clean(m.runtimeCtx, r.User.ID); err != nil {
		m.log.Error("cleaning proposals channel failed", "error", err)
		return
	}
	m.log.Info("sugestie is ready")
}

func (m *Module) onMessageCreate(s *discordgo.Session, msg *discordgo.MessageCreate) {
	channel := m.rt.Cfg().Sugestie.Channel
	if channel == "" || msg.ChannelID != channel || msg.Author == nil || msg.Author.ID == s.State.User.ID {
		return
	}
	m.log.Debug("cleaning proposals channel after a new message")
	if err := m.clean(m.runtimeCtx, s.State.User.ID); err != nil {
		m.log.Error("cleaning proposals channel failed", "error", err)
	}
}

// clean replaces every message posted since the last cleanup with a
// proposal.
func (m *Module) clean(ctx context.Context, self string) error {
	cfg := m.rt.Cfg().Sugestie
	if cfg.Channel == "" {
		return nil
	}
	m.cleaning.Lock()
	defer m.cleaning.Unlock()

	msgs, err := m.history.Raw(ctx, m.engine.CleanCursor(ctx))
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if msg.Author == nil || msg.Author.ID == self {
			continue
		}
		if err := m.history.Delete(ctx, msg.ID); err != nil {
			return err
		}
		if !msg.Author.Bot {
			m.intake(ctx, cfg.Channel, cfg.PingRole, msg)
		}
		if err := m.engine.AdvanceCleanCursor(ctx, msg.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) intake(ctx context.Context, channel, pingRole string, msg *discordgo.Message) {
	sub := engine.Submission{Channel: channel, Author: msg.Author.ID, Text: msg.Content}
	img, err := m.image(ctx, msg.Attachments)
	if err != nil {
		m.log.Warn("could not download proposal image", "message", msg.ID, "error", err)
	}
	sub.Image = img

	p, err := m.engine.Submit(ctx, sub)
	if err != nil {
		if d, ok := access.AsDenied(err); ok {
			m.log.Info("ignoring message", "message", msg.ID, "reason", d.Reason)
			return
		}
		m.log.Error("could not create proposal", "message", msg.ID, "error", err)
		return
	}
	if pingRole != "" {
		_, err := m.rt.Discord.ChannelMessageSendComplex(channel, &discordgo.MessageSend{
			Content:         discord.MentionRole(pingRole),
			AllowedMentions: &discordgo.MessageAllowedMentions{Roles: []string{pingRole}},
		})
		if err != nil {
			m.log.Warn("could not ping proposal role", "id", p.ID, "error", err)
		}
	}
}

func (m *Module) image(ctx context.Context, attachments []*discordgo.MessageAttachment) (*engine.Image, error) {
	for _, a := range attachments {
		if !strings.HasPrefix(a.ContentType, "image/") {
			continue
		}
		data, ct, err := webclient.GetBytes(ctx, m.rt.Web, a.URL, webAttempts, maxImage)
		if err != nil {
			return nil, err
		}
		if ct == "" || !strings.HasPrefix(ct, "image/") {
			ct = a.ContentType
		}
		return &engine.Image{Data: data, Format: strings.TrimPrefix(ct, "image/")}, nil
	}
	return nil, nil
}

func (m *Module) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	m.handle(s, i.Interaction)
}

// handle routes one interaction. It ignores those of other modules.
func (m *Module) handle(r discord.Responder, i *discordgo.Interaction) {
	var err error
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if i.ApplicationCommandData().Name != discord.CommandSugestie {
			return
		}
		err = m.command(r, i)
	case discordgo.InteractionMessageComponent:
		id := i.MessageComponentData().CustomID
		if !strings.HasPrefix(id, "sugestia:") && !strings.HasPrefix(id, prefix+":") {
			return
		}
		err = m.component(r, i, id)
	case discordgo.InteractionModalSubmit:
		id := i.ModalSubmitData().CustomID
		if !strings.HasPrefix(id, prefix+":") {
			return
		}
		err = m.modal(r, i, id)
	default:
		return
	}
	if err != nil {
		m.fail(r, i, err)
	}
}

// fail answers with the denial text or a generic error.
func (m *Module) fail(r discord.Responder, i *discordgo.Interaction, err error) {
	if errors.Is(err, engine.ErrNotFound) {
		if rerr := discord.ReplyEphemeral(r, i, "Ta sugestia już nie istnieje… 🤨"); rerr != nil {
			m.log.Warn("could not report failure", "interaction", i.ID, "error", rerr)
		}
		return
	}
	core.Fail(r, i, err, m.log)
}

var voteReplies = map[engine.Choice]string{
	engine.For:     "Pomyślnie zagłosowano **za** sugestią. 🫡",
	engine.Abstain: "Pomyślnie **wstrzymano się** od głosu. 🫡",
	engine.Against: "Pomyślnie zagłosowano **przeciw** sugestii. 🫡",
}

var changeReplies = map[engine.Choice]string{
	engine.For:     "Pomyślnie zmieniono głos na **za** sugestią. 🫡",
	engine.Abstain: "Pomyślnie zmieniono głos na **wstrzymanie się** od głosu. 🫡",
	engine.Against: "Pomyślnie zmieniono głos na **przeciw** sugestii. 🫡",
}

func (m *Module) component(r discord.Responder, i *discordgo.Interaction, id string) error {
	ctx := m.runtimeCtx
	actor := discord.Actor(i)
	if choice, ok := engine.ButtonChoice(id); ok {
		if discord.IsBot(i) {
			return discord.ReplyEphemeral(r, i, "Boty nie mogą głosować nad sugestiami… 🤨")
		}
		res, err := m.engine.Vote(ctx, i.Message.ID, actor, choice)
		if err != nil {
			return err
		}
		if res.Changed {
			return discord.ReplyEphemeral(r, i, changeReplies[choice])
		}
		return discord.ReplyEphemeral(r, i, voteReplies[choice])
	}

	switch id {
	case engine.ButtonComment:
		p, err := m.engine.Get(ctx, i.Message.ID)
		if err != nil {
			return err
		}
		if p.Phase(m.rt.Now()) != engine.Reviewing {
			return access.Deny(access.ReviewClosed)
		}
		return discord.Modal(r, i, core.CustomID(prefix, "comment", p.ID), "Komentarz do sugestii",
			"Treść komentarza", p.Comments[actor.ID], engine.MaxCommentLength)
	case engine.ButtonUncomment:
		if err := m.engine.DeleteComment(ctx, i.Message.ID, actor); err != nil {
			return err
		}
		return discord.ReplyEphemeral(r, i, "Pomyślnie usunięto komentarz. 🫡")
	}

	parts, ok := core.SplitCustomID(id, 3)
	if !ok {
		return nil
	}
	values := i.MessageComponentData().Values
	if len(values) == 0 {
		return discord.Defer(r, i)
	}
	prompt, ok := m.prompts.Take(parts[2], actor.ID)
	if !ok {
		return discord.ReplyEphemeral(r, i, "To menu już wygasło, użyj komendy jeszcze raz. ⏱️")
	}
	return m.picked(r, i, parts[1], values[0], actor, prompt)
}

func (m *Module) modal(r discord.Responder, i *discordgo.Interaction, id string) error {
	parts, ok := core.SplitCustomID(id, 3)
	if !ok || parts[1] != "comment" {
		return nil
	}
	replaced, err := m.engine.Comment(m.runtimeCtx, parts[2], discord.Actor(i), discord.ModalText(i.ModalSubmitData()))
	if err != nil {
		return err
	}
	if replaced {
		return discord.ReplyEphemeral(r, i, "Pomyślnie zmieniono komentarz. 🫡")
	}
	return discord.ReplyEphemeral(r, i, "Pomyślnie dodano komentarz. 🫡")
}

func (m *Module) command(r discord.Responder, i *discordgo.Interaction) error {
	ctx := m.runtimeCtx
	actor := discord.Actor(i)
	staffRoles := m.rt.Cfg().StaffRoles
	sub, opts := discord.Subcommand(i.ApplicationCommandData())

	var (
		list      []*engine.Proposal
		empty     string
		question  string
		text      string
		ephemeral bool
		emoji     = true
	)
	switch sub {
	case "show":
		list = m.engine.List(ctx, engine.All)
		empty = "Nie zostały jeszcze przedłożone żadne sugestie… 🤨"
		question = "Którą sugestię chcesz zobaczyć?"
		ephemeral = true
	case "done":
		if err := actor.RequireStaff(staffRoles); err != nil {
			return err
		}
		text = strings.TrimSpace(opts.String("changes"))
		list = m.engine.List(ctx, engine.Pending)
		empty = "Nie ma żadnych sugestii, które zostały jeszcze do wykonania… 🤨"
		question = fmt.Sprintf("Którą sugestię chcesz oznaczyć jako wykonaną z opisem zmian `%s`?", discord.Debacktick(text))
		emoji = false
	case "annul":
		if err := actor.RequireStaff(staffRoles); err != nil {
			return err
		}
		text = strings.TrimSpace(opts.String("reason"))
		list = m.engine.List(ctx, engine.Annullable)
		empty = "Nie ma żadnych sugestii, które możesz unieważnić… 🤨"
		question = fmt.Sprintf("Którą sugestię chcesz unieważnić z powodu `%s`?", discord.Debacktick(text))
	case "erase":
		list = m.engine.List(ctx, m.engine.ErasableBy(actor))
		empty = "Nie ma żadnych sugestii, które możesz usunąć… 🤨"
		question = "Którą sugestię chcesz usunąć? Tej operacji nie da się cofnąć."
		ephemeral = true
	default:
		return fmt.Errorf("sugestie: unknown subcommand %q", sub)
	}
	if (sub == "done" || sub == "annul") && text == "" {
		return access.Deny(access.EmptyText)
	}
	if len(list) == 0 {
		return discord.ReplyEphemeral(r, i, empty)
	}
	m.prompts.Put(i.ID, core.Prompt{User: actor.ID, Text: text})
	return discord.ReplySelect(r, i, question, core.CustomID(prefix, sub, i.ID), options(list, emoji), ephemeral)
}

// picked carries out the action chosen in a select menu opened by command.
func (m *Module) picked(r discord.Responder, i *discordgo.Interaction, action, id string, actor access.Actor, prompt core.Prompt) error {
	ctx := m.runtimeCtx
	guild := m.rt.Cfg().Guild
	switch action {
	case "show":
		p, err := m.engine.Get(ctx, id)
		if err != nil {
			return err
		}
		return discord.ReplyEphemeral(r, i, describe(guild, p, m.rt.Now()))
	case "done":
		if err := m.engine.MarkDone(ctx, id, actor, prompt.Text); err != nil {
			return err
		}
		return discord.UpdateMessage(r, i, fmt.Sprintf("Pomyślnie oznaczono sugestię %s jako wykonaną z opisem zmian `%s`! 🥳",
			discord.MessageLink(guild, m.rt.Cfg().Sugestie.Channel, id), discord.Debacktick(prompt.Text)))
	case "annul":
		if err := m.engine.Annul(ctx, id, actor, prompt.Text); err != nil {
			return err
		}
		return discord.UpdateMessage(r, i, fmt.Sprintf("Pomyślnie unieważniono sugestię %s z powodu `%s`. 🙄",
			discord.MessageLink(guild, m.rt.Cfg().Sugestie.Channel, id), discord.Debacktick(prompt.Text)))
	case "erase":
		if err := m.engine.Erase(ctx, id, actor); err != nil {
			return err
		}
		return discord.UpdateMessage(r, i, "Pomyślnie usunięto sugestię. 🗑️")
	}
	return fmt.Errorf("sugestie: unknown action %q", action)
}
