// Package xp awards experience for chat messages and serves /xp.
package xp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/actions/core"
	"github.com/oooz/oooz-bot/src/discord"
	engine "github.com/oooz/oooz-bot/src/xp"
)

const leaderboardSize = 10

var _ core.Module = (*Module)(nil)

type Module struct {
	rt     *core.Runtime
	engine *engine.Engine
	log    *slog.Logger

	runtimeCtx context.Context
	cancel     context.CancelFunc
	remove     func()
}

func NewModule(rt *core.Runtime) *Module {
	m := &Module{
		rt:         rt,
		engine:     rt.XP,
		log:        rt.Logger.With("component", "xp"),
		runtimeCtx: context.Background(),
	}
	rt.Console.Scope("xp").Register("update_roles", "", "updates XP roles for all members", func(ctx context.Context, _ string) (any, error) {
		return nil, m.updateRoles(ctx)
	})
	return m
}

func (m *Module) Name() string { return "xp" }

func (m *Module) Start(ctx context.Context) error {
	m.runtimeCtx, m.cancel = context.WithCancel(ctx)
	m.remove = m.rt.Listen(m.onMessageCreate, m.onInteractionCreate)
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

func (m *Module) updateRoles(ctx context.Context) error {
	if m.rt.Guild == nil {
		return errors.New("xp: not connected to a guild")
	}
	members, err := m.rt.Guild.Humans(ctx)
	if err != nil {
		return err
	}
	return m.engine.UpdateRoles(ctx, members)
}

func (m *Module) onMessageCreate(s *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.GuildID == "" || msg.GuildID != m.rt.Cfg().Guild {
		return
	}
	category := ""
	if ch, err := s.State.Channel(msg.ChannelID); err == nil {
		category = ch.ParentID
	}
	announcement, err := m.gain(m.runtimeCtx, engine.Message{
		User:     msg.Author.ID,
		Channel:  msg.ChannelID,
		Category: category,
		Bot:      msg.Author.Bot,
	})
	if err != nil {
		m.log.Error("xp gain failed", "user", msg.Author.ID, "error", err)
	}
	channel := m.rt.Cfg().XP.Channel
	if announcement == "" || channel == "" {
		return
	}
	if _, err := s.ChannelMessageSend(channel, announcement); err != nil {
		m.log.Warn("could not announce level up", "user", msg.Author.ID, "error", err)
	}
}

var levelUps = []string{
	"%s nie ma życia i dzięki temu jest już na poziomie %d! 🥳",
	"%s właśnie wszedł na wyższy poziom %d! 🥳",
	"%s zdobył kolejny poziom %d. Brawo! 🥳",
	"%s zdobył kolejny poziom %d. Moje kondolencje. 🥳",
}

// gain awards msg and returns the level up announcement, if any.
func (m *Module) gain(ctx context.Context, msg engine.Message) (string, error) {
	g, err := m.engine.OnMessage(ctx, msg)
	if err != nil || !g.LevelUp {
		return "", err
	}
	return fmt.Sprintf(levelUps[rand.IntN(len(levelUps))], discord.MentionUser(msg.User), g.Level), nil
}

func (m *Module) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	m.handle(m.rt.Session, i.Interaction)
}

func (m *Module) handle(r discord.Responder, i *discordgo.Interaction) {
	var err error
	switch core.CommandName(i) {
	case discord.CommandXP:
		sub, _ := discord.Subcommand(i.ApplicationCommandData())
		switch sub {
		case "show":
			err = m.show(r, i)
		case "leaderboard":
			err = discord.ReplyEphemeral(r, i, m.leaderboard())
		case "roles":
			err = discord.ReplyEphemeral(r, i, m.roles())
		default:
			err = fmt.Errorf("xp: unknown subcommand %q", sub)
		}
	case discord.MenuXP:
		err = m.show(r, i)
	default:
		return
	}
	if err != nil {
		core.Fail(r, i, err, m.log)
	}
}

func (m *Module) show(r discord.Responder, i *discordgo.Interaction) error {
	caller := discord.Actor(i).ID
	user := core.UserOption(i, "user")
	if user == "" {
		user = caller
	}
	if u := resolvedUser(i, user); u != nil && u.Bot {
		return discord.ReplyEphemeral(r, i, fmt.Sprintf("%s jest botem i nie może zbierać XP… 😐", discord.MentionUser(user)))
	}
	st := m.engine.Show(m.runtimeCtx, user)
	if user == caller {
		return discord.ReplyEphemeral(r, i, fmt.Sprintf("Masz %d XP i tym samym poziom %d. Do następnego brakuje ci jeszcze %d XP. 📈",
			st.XP, st.Level, st.Missing))
	}
	return discord.ReplyEphemeral(r, i, fmt.Sprintf("%s ma %d XP i tym samym poziom %d. Do następnego brakuje mu jeszcze %d XP. 📈",
		discord.MentionUser(user), st.XP, st.Level, st.Missing))
}

func resolvedUser(i *discordgo.Interaction, id string) *discordgo.User {
	data := i.ApplicationCommandData()
	if data.Resolved == nil {
		return nil
	}
	return data.Resolved.Users[id]
}

func (m *Module) leaderboard() string {
	var b strings.Builder
	b.WriteString("Ranking 10 użytkowników z najwyższym XP: 🏆\n")
	for n, st := range m.engine.Leaderboard(m.runtimeCtx, leaderboardSize) {
		fmt.Fprintf(&b, "%d. %s z %d XP i poziomem %d\n", n+1, discord.MentionUser(st.User), st.XP, st.Level)
	}
	return b.String()
}

func (m *Module) roles() string {
	roles := m.rt.Cfg().XP.Roles
	if len(roles) == 0 {
		return "Niestety nie ma żadnych ról, które mógłbyś dostać za XP. 😭"
	}
	var b strings.Builder
	b.WriteString("Za zdobywanie kolejnych poziomów możesz dostać następujące role: 💰\n")
	for _, r := range roles {
		fmt.Fprintf(&b, "- %s za poziom %d\n", discord.MentionRole(r.Role), r.Level)
	}
	return b.String()
}
