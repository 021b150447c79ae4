// Package misc holds the small commands: /alarm, /ping and role refreshes.
package misc

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/actions/core"
	"github.com/oooz/oooz-bot/src/discord"
)

const (
	alarmKey = "alarm"
	alarmGIF = "https://c.tenor.com/EDeg5ifIrjQAAAAC/alarm-better-discord.gif"
)

var alarmEmoji = []string{"😟", "😖", "😱", "😮", "😵", "😵‍💫", "🥴"}

var _ core.Module = (*Module)(nil)

type Module struct {
	rt  *core.Runtime
	log *slog.Logger

	// guild describes the configured guild.
	guild func() (*discordgo.Guild, error)
	// latency is the gateway heartbeat round trip.
	latency func() time.Duration

	runtimeCtx context.Context
	cancel     context.CancelFunc
	remove     func()
}

func NewModule(rt *core.Runtime) *Module {
	m := &Module{
		rt:         rt,
		log:        rt.Logger.With("component", "misc"),
		runtimeCtx: context.Background(),
	}
	m.guild = m.lookupGuild
	m.latency = func() time.Duration {
		if rt.Session == nil {
			return 0
		}
		return rt.Session.HeartbeatLatency()
	}
	return m
}

func (m *Module) Name() string { return "misc" }

func (m *Module) Start(ctx context.Context) error {
	m.runtimeCtx, m.cancel = context.WithCancel(ctx)
	m.remove = m.rt.Listen(m.onInteractionCreate, m.onGuildMemberAdd, m.onGuildMemberRemove)
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

func (m *Module) lookupGuild() (*discordgo.Guild, error) {
	s := m.rt.Session
	if s == nil {
		return nil, fmt.Errorf("misc: not connected")
	}
	id := m.rt.Cfg().Guild
	if g, err := s.State.Guild(id); err == nil {
		return g, nil
	}
	return s.Guild(id)
}

func (m *Module) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	m.handle(m.rt.Session, i.Interaction)
}

func (m *Module) onGuildMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.Member == nil || e.User == nil || e.GuildID != m.rt.Cfg().Guild {
		return
	}
	m.log.Info("member joined", "user", e.User.ID)
	if err := m.refresh(m.runtimeCtx, e.User.ID); err != nil {
		m.log.Error("updating roles of new member failed", "user", e.User.ID, "error", err)
	}
}

func (m *Module) onGuildMemberRemove(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
	if e.Member == nil || e.User == nil || e.GuildID != m.rt.Cfg().Guild {
		return
	}
	m.log.Info("member left", "user", e.User.ID)
	if err := m.farewell(e.User.ID); err != nil {
		m.log.Warn("farewell failed", "user", e.User.ID, "error", err)
	}
}

// farewell announces a departure in the system channel unless join
// notifications are turned off there.
func (m *Module) farewell(user string) error {
	g, err := m.guild()
	if err != nil {
		return err
	}
	if g.SystemChannelID == "" || g.SystemChannelFlags&discordgo.SystemChannelFlagsSuppressJoinNotifications != 0 {
		return nil
	}
	mention := discord.MentionUser(user)
	text := pick([]string{
		fmt.Sprintf("Niestety nie ma już %s z nami… 🕯️", mention),
		fmt.Sprintf("Chwila ciszy dla %s… 🕯️", mention),
		fmt.Sprintf("%s już nie mógł wytrzymać tego syfu i wyszedł… 🕯️", mention),
		fmt.Sprintf("%s wyszedł z serwera… 🕯️", mention),
	})
	_, err = m.rt.Discord.ChannelMessageSendComplex(g.SystemChannelID, &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	return err
}

// refresh resyncs the warn and XP roles of user.
func (m *Module) refresh(ctx context.Context, user string) error {
	if err := m.rt.Warns.Recompute(ctx, user); err != nil {
		return err
	}
	return m.rt.XP.UpdateRolesFor(ctx, user)
}

func (m *Module) handle(r discord.Responder, i *discordgo.Interaction) {
	var err error
	switch core.CommandName(i) {
	case discord.CommandAlarm:
		err = m.alarm(r, i)
	case discord.CommandPing:
		err = discord.ReplyEphemeral(r, i, fmt.Sprintf("Pong! `%dms`", m.latency().Milliseconds()))
	case discord.MenuRefreshRoles:
		user := core.UserOption(i, "user")
		if err = m.refresh(m.runtimeCtx, user); err == nil {
			err = discord.ReplyEphemeral(r, i, fmt.Sprintf("Pomyślnie zaaktualizowano role za warny i XP dla %s. 👌", discord.MentionUser(user)))
		}
	default:
		return
	}
	if err != nil {
		core.Fail(r, i, err, m.log)
	}
}

func (m *Module) alarm(r discord.Responder, i *discordgo.Interaction) error {
	ctx := m.runtimeCtx
	cfg := m.rt.Cfg()
	if m.rt.Guild == nil {
		return fmt.Errorf("misc: not connected to a guild")
	}
	staff, err := m.rt.Guild.WithAnyRole(ctx, cfg.StaffRoles)
	if err != nil {
		return err
	}
	if len(staff) == 0 {
		return discord.Reply(r, i, "Hmm, z jakiegoś powodu nie jest mi znane, żeby ktoś był w administracji… 🤨")
	}

	ok, _, err := m.rt.Alarm.Allow(ctx, alarmKey, m.rt.Now())
	if err != nil {
		return err
	}
	if !ok {
		secs := int64(cfg.AlarmCooldown.Std().Seconds())
		return discord.ReplyEphemeral(r, i, fmt.Sprintf("Alarm już zabrzmiał w przeciągu ostatnich %d sekund. ⏱️", secs))
	}

	emoji := pick(alarmEmoji)
	mentions := make([]string, len(staff))
	for k, id := range staff {
		mentions[k] = discord.MentionUser(id)
	}
	if err := discord.ReplyPing(r, i, strings.Join(mentions, " ")+" Potrzebna natychmiastowa interwencja!!! "+emoji); err != nil {
		return err
	}

	name := "serwerze"
	if g, err := m.guild(); err == nil && g.Name != "" {
		name = g.Name
	}
	caller := discord.Actor(i).ID
	m.log.Warn("alarm raised", "by", caller, "staff", len(staff))
	for _, id := range staff {
		text := fmt.Sprintf("%s potrzebuje natychmiastowej interwencji na %s!!! %s", discord.MentionUser(caller), name, emoji)
		if err := m.rt.Guild.DM(ctx, id, text); err != nil {
			m.log.Warn("alarm dm failed", "user", id, "error", err)
			continue
		}
		if err := m.rt.Guild.DM(ctx, id, alarmGIF); err != nil {
			m.log.Warn("alarm dm failed", "user", id, "error", err)
		}
	}
	return nil
}

func pick(options []string) string { return options[rand.IntN(len(options))] }
