package warns

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oooz/oooz-bot/src/actions/actiontest"
	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/discord"
)

var (
	staff = actiontest.Member("7", "staff")
	user  = actiontest.Member("200")
)

func newModule(t *testing.T) (*Module, *actiontest.Env) {
	t.Helper()
	env := actiontest.New(t, func(c *config.Config) {
		c.WarnRoles = []string{"w1", "w2"}
	})
	return NewModule(env.Runtime), env
}

func warnCmd(member *discordgo.Member, target, reason string) *discordgo.Interaction {
	return actiontest.Command("w", member, discord.CommandWarn,
		actiontest.Opt("member", target), actiontest.Opt("reason", reason))
}

func TestWarn(t *testing.T) {
	m, env := newModule(t)
	r := &actiontest.Responder{}

	m.handle(r, warnCmd(user, "300", "spam"))
	assert.Equal(t, "Nie masz uprawnień do tego, tylko administracja może to robić. 😡", r.LastContent())

	m.handle(r, warnCmd(staff, "200", "spam `x`"))
	assert.Equal(t, "<@200> właśnie dostał swojego **1-ego** warna za `spam x`! 😒", r.LastContent())
	assert.Nil(t, r.Last().Data.AllowedMentions)
	assert.Equal(t, "w1", env.Roles.Warn["200"])

	env.Clock.Advance(time.Minute)
	m.handle(r, warnCmd(staff, "200", "flood"))
	assert.Contains(t, r.LastContent(), "**2-ego**")
	assert.Equal(t, "w2", env.Roles.Warn["200"])

	m.handle(r, warnCmd(staff, "200", "   "))
	assert.Equal(t, "Treść nie może być pusta… 🤨", r.LastContent())
}

func TestWarnMenu(t *testing.T) {
	m, env := newModule(t)
	r := &actiontest.Responder{}

	m.handle(r, actiontest.UserMenu("u", user, discord.MenuWarn, "200"))
	assert.Contains(t, r.LastContent(), "tylko administracja")

	m.handle(r, actiontest.UserMenu("u", staff, discord.MenuWarn, "200"))
	require.Equal(t, discordgo.InteractionResponseModal, r.Last().Type)
	assert.Equal(t, "warns:warn:200", r.Last().Data.CustomID)

	m.handle(r, actiontest.ModalSubmit(staff, "warns:warn:200", "trolling"))
	assert.Contains(t, r.LastContent(), "**1-ego** warna za `trolling`")
	require.Len(t, env.Runtime.Warns.Warnings(context.Background(), "200"), 1)
}

func TestListWarnings(t *testing.T) {
	m, _ := newModule(t)
	r := &actiontest.Responder{}

	m.handle(r, actiontest.Command("l", user, discord.CommandWarns))
	assert.Equal(t, "<@200> jest grzeczny jak aniołek i nie nazbierał jeszcze żadnych warnów! 😇", r.LastContent())

	m.handle(r, warnCmd(staff, "200", "spam"))
	m.handle(r, actiontest.UserMenu("l", staff, discord.MenuWarns, "200"))
	text := r.LastContent()
	assert.Contains(t, text, "<@200>")
	assert.Contains(t, text, "- `spam` w dniu <t:")
	assert.Contains(t, text, "Aktywne warny: **1**")
	assert.Equal(t, discordgo.MessageFlagsEphemeral, r.Last().Data.Flags)
}

func TestUnwarn(t *testing.T) {
	m, env := newModule(t)
	r := &actiontest.Responder{}

	m.handle(r, actiontest.Command("u1", staff, discord.CommandUnwarn, actiontest.Opt("member", "200")))
	assert.Contains(t, r.LastContent(), "grzeczny jak aniołek")

	m.handle(r, warnCmd(staff, "200", "spam"))
	env.Clock.Advance(time.Hour)
	m.handle(r, warnCmd(staff, "200", "flood"))

	m.handle(r, actiontest.Command("u2", staff, discord.CommandUnwarn, actiontest.Opt("member", "200")))
	row := r.Last().Data.Components[0].(discordgo.ActionsRow)
	menu := row.Components[0].(discordgo.SelectMenu)
	assert.Equal(t, "warns:unwarn:u2", menu.CustomID)
	require.Len(t, menu.Options, 2)
	assert.Equal(t, "flood", menu.Options[0].Label)

	m.handle(r, actiontest.Component(staff, "menu", menu.CustomID, menu.Options[1].Value))
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, r.Last().Type)
	assert.Contains(t, r.LastContent(), "Pomyślnie odebrano warna `spam`")

	ws := env.Runtime.Warns.Warnings(context.Background(), "200")
	require.Len(t, ws, 1)
	assert.Equal(t, "flood", ws[0].Reason)
	assert.Equal(t, "w1", env.Roles.Warn["200"])

	m.handle(r, actiontest.Component(staff, "menu", menu.CustomID, menu.Options[0].Value))
	assert.Contains(t, r.LastContent(), "wygasło")
}

func TestLinkAndUnlink(t *testing.T) {
	m, env := newModule(t)
	r := &actiontest.Responder{}

	m.handle(r, actiontest.Command("k", staff, discord.CommandLink,
		actiontest.Opt("user", "200"), actiontest.Opt("other", "201")))
	assert.Equal(t, "Pomyślnie połączono konta <@200> i <@201>. 🔗", r.LastContent())
	assert.ElementsMatch(t, []string{"200", "201"}, env.Runtime.Warns.Group(context.Background(), "201"))

	m.handle(r, actiontest.Command("k", staff, discord.CommandLink,
		actiontest.Opt("user", "201"), actiontest.Opt("other", "200")))
	assert.Equal(t, "Te konta są już połączone… 🤨", r.LastContent())

	m.handle(r, actiontest.Command("k", staff, discord.CommandUnlink, actiontest.Opt("user", "201")))
	assert.Equal(t, "Pomyślnie odłączono konto <@201>. ✂️", r.LastContent())
	assert.Equal(t, []string{"201"}, env.Runtime.Warns.Group(context.Background(), "201"))
}

func TestConsoleOps(t *testing.T) {
	_, env := newModule(t)
	help := env.Runtime.Console.Help()
	assert.Contains(t, help, "warns.recompute_all")
	assert.Contains(t, help, "warns.update_roles")
	_, err := env.Runtime.Console.Run(context.Background(), "warns.recompute_all")
	assert.NoError(t, err)
}
