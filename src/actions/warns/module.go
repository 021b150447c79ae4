// Package warns exposes the warning engine through /warn, /unwarn, /warns,
// /link, /unlink and the user context menus.
package warns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/access"
	"github.com/oooz/oooz-bot/src/actions/core"
	"github.com/oooz/oooz-bot/src/discord"
	engine "github.com/oooz/oooz-bot/src/warns"
)

const (
	prefix     = "warns"
	maxOptions = 25
)

var _ core.Module = (*Module)(nil)

type Module struct {
	rt      *core.Runtime
	engine  *engine.Engine
	prompts *core.Prompts
	log     *slog.Logger

	runtimeCtx context.Context
	cancel     context.CancelFunc
	remove     func()
}

func NewModule(rt *core.Runtime) *Module {
	m := &Module{
		rt:         rt,
		engine:     rt.Warns,
		prompts:    core.NewPrompts(rt.Now),
		log:        rt.Logger.With("component", "warns"),
		runtimeCtx: context.Background(),
	}
	scope := rt.Console.Scope("warns")
	scope.Register("recompute_all", "", "recomputes warn expiry for all users", func(ctx context.Context, _ string) (any, error) {
		return nil, m.engine.RecomputeAll(ctx)
	})
	scope.Register("update_roles", "", "updates warn roles for all users", func(ctx context.Context, _ string) (any, error) {
		return nil, m.engine.UpdateRoles(ctx)
	})
	return m
}

func (m *Module) Name() string { return "warns" }

func (m *Module) Start(ctx context.Context) error {
	m.runtimeCtx, m.cancel = context.WithCancel(ctx)
	m.remove = m.rt.Listen(m.onInteractionCreate)
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

func (m *Module) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	m.handle(m.rt.Session, i.Interaction)
}

func (m *Module) handle(r discord.Responder, i *discordgo.Interaction) {
	var err error
	switch name := core.CommandName(i); name {
	case discord.CommandWarn:
		_, opts := discord.Subcommand(i.ApplicationCommandData())
		err = m.warn(r, i, opts.ID("member"), opts.String("reason"))
	case discord.MenuWarn:
		err = m.warnModal(r, i, core.UserOption(i, ""))
	case discord.CommandUnwarn:
		err = m.unwarn(r, i, core.UserOption(i, "member"))
	case discord.CommandWarns, discord.MenuWarns:
		user := core.UserOption(i, "user")
		if user == "" {
			user = discord.Actor(i).ID
		}
		err = m.list(r, i, user)
	case discord.CommandLink:
		_, opts := discord.Subcommand(i.ApplicationCommandData())
		a, b := opts.ID("user"), opts.ID("other")
		if err = m.engine.Link(m.runtimeCtx, discord.Actor(i), a, b); err == nil {
			err = discord.ReplyEphemeral(r, i, fmt.Sprintf("Pomyślnie połączono konta %s i %s. 🔗",
				discord.MentionUser(a), discord.MentionUser(b)))
		}
	case discord.CommandUnlink:
		user := core.UserOption(i, "user")
		if err = m.engine.Unlink(m.runtimeCtx, discord.Actor(i), user); err == nil {
			err = discord.ReplyEphemeral(r, i, fmt.Sprintf("Pomyślnie odłączono konto %s. ✂️", discord.MentionUser(user)))
		}
	case "":
		id := core.ComponentID(i)
		if !strings.HasPrefix(id, prefix+":") {
			return
		}
		err = m.component(r, i, id)
	default:
		return
	}
	if err != nil {
		m.fail(r, i, err)
	}
}

func (m *Module) fail(r discord.Responder, i *discordgo.Interaction, err error) {
	if d, ok := access.AsDenied(err); ok && d.Reason == access.NoWarnings && d.Detail != "" {
		if rerr := discord.ReplyEphemeral(r, i, angel(d.Detail)); rerr != nil {
			m.log.Warn("could not report failure", "interaction", i.ID, "error", rerr)
		}
		return
	}
	if errors.Is(err, engine.ErrNotFound) {
		err = access.Deny(access.NotFound)
	}
	core.Fail(r, i, err, m.log)
}

func angel(user string) string {
	return fmt.Sprintf("%s jest grzeczny jak aniołek i nie nazbierał jeszcze żadnych warnów! 😇", discord.MentionUser(user))
}

func (m *Module) warn(r discord.Responder, i *discordgo.Interaction, user, reason string) error {
	w, count, err := m.engine.Add(m.runtimeCtx, discord.Actor(i), user, reason)
	if w.Time.IsZero() {
		return err
	}
	if err != nil {
		m.log.Warn("warning added but roles not synced", "user", user, "error", err)
	}
	return discord.ReplyPing(r, i, fmt.Sprintf("%s właśnie dostał swojego **%d-ego** warna za `%s`! 😒",
		discord.MentionUser(user), count, discord.Debacktick(w.Reason)))
}

func (m *Module) warnModal(r discord.Responder, i *discordgo.Interaction, user string) error {
	if err := discord.Actor(i).RequireStaff(m.rt.Cfg().StaffRoles); err != nil {
		return err
	}
	return discord.Modal(r, i, core.CustomID(prefix, "warn", user), "Zwarnuj", "Powód", "", 1000)
}

func (m *Module) unwarn(r discord.Responder, i *discordgo.Interaction, user string) error {
	actor := discord.Actor(i)
	if err := actor.RequireStaff(m.rt.Cfg().StaffRoles); err != nil {
		return err
	}
	ws := m.engine.Warnings(m.runtimeCtx, user)
	if len(ws) == 0 {
		return access.Deny(access.NoWarnings, user)
	}
	opts := make([]discordgo.SelectMenuOption, 0, min(len(ws), maxOptions))
	for k := len(ws) - 1; k >= 0 && len(opts) < maxOptions; k-- {
		w := ws[k]
		opts = append(opts, discordgo.SelectMenuOption{
			Label:       discord.LimitLen(w.Reason),
			Value:       w.Time.UTC().Format(time.RFC3339Nano),
			Description: discord.FormatTime(w.Time),
		})
	}
	m.prompts.Put(i.ID, core.Prompt{User: actor.ID, Extra: []string{user}})
	return discord.ReplySelect(r, i, fmt.Sprintf("Którego warna chcesz odebrać użytkownikowi %s?", discord.MentionUser(user)),
		core.CustomID(prefix, "unwarn", i.ID), opts, false)
}

func (m *Module) list(r discord.Responder, i *discordgo.Interaction, user string) error {
	ws := m.engine.Warnings(m.runtimeCtx, user)
	if len(ws) == 0 {
		return access.Deny(access.NoWarnings, user)
	}
	mention := discord.MentionUser(user)
	headers := []string{
		"%s ma już na swoim koncie parę złych uczynków… 😔\n",
		"Do %s nie przyjdzie Mikołaj w tym roku… 😕\n",
		"Na %s czeka już tylko czyściec… 😩\n",
	}
	var b strings.Builder
	fmt.Fprintf(&b, headers[rand.IntN(len(headers))], mention)
	for _, w := range ws {
		if w.Active() {
			fmt.Fprintf(&b, "- `%s` w dniu %s\n", discord.Debacktick(w.Reason), discord.Timestamp(w.Time, ""))
		} else {
			fmt.Fprintf(&b, "- ~~`%s` w dniu %s~~ (wygasł %s)\n", discord.Debacktick(w.Reason),
				discord.Timestamp(w.Time, ""), discord.Timestamp(*w.Expired, ""))
		}
	}
	fmt.Fprintf(&b, "Aktywne warny: **%d**", m.engine.ActiveCount(m.runtimeCtx, user))
	return discord.ReplyEphemeral(r, i, b.String())
}

func (m *Module) component(r discord.Responder, i *discordgo.Interaction, id string) error {
	parts, ok := core.SplitCustomID(id, 3)
	if !ok {
		return nil
	}
	actor := discord.Actor(i)
	switch parts[1] {
	case "warn":
		if i.Type != discordgo.InteractionModalSubmit {
			return nil
		}
		return m.warn(r, i, parts[2], discord.ModalText(i.ModalSubmitData()))
	case "unwarn":
		values := i.MessageComponentData().Values
		if len(values) == 0 {
			return discord.Defer(r, i)
		}
		prompt, ok := m.prompts.Take(parts[2], actor.ID)
		if !ok || len(prompt.Extra) != 1 {
			return discord.ReplyEphemeral(r, i, "To menu już wygasło, użyj komendy jeszcze raz. ⏱️")
		}
		issued, err := time.Parse(time.RFC3339Nano, values[0])
		if err != nil {
			return fmt.Errorf("warns: bad warning key %q: %w", values[0], err)
		}
		user := prompt.Extra[0]
		w, err := m.engine.Remove(m.runtimeCtx, actor, user, issued)
		if w.Time.IsZero() {
			return err
		}
		if err != nil {
			m.log.Warn("warning removed but roles not synced", "user", user, "error", err)
		}
		return discord.UpdateMessage(r, i, fmt.Sprintf("Pomyślnie odebrano warna `%s` z dnia %s użytkownikowi %s! 🥳",
			discord.Debacktick(w.Reason), discord.Timestamp(w.Time, ""), discord.MentionUser(user)))
	}
	return nil
}
