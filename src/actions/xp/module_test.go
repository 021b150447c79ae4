package xp

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
	engine "github.com/oooz/oooz-bot/src/xp"
)

func newModule(t *testing.T) (*Module, *actiontest.Env) {
	t.Helper()
	env := actiontest.New(t, func(c *config.Config) {
		c.XP.MinGain, c.XP.MaxGain = 150, 150
		c.XP.Cooldown = config.Duration(time.Minute)
		c.XP.IgnoredChannels = []string{"spam"}
		c.XP.Roles = []config.XPRole{{Level: 1, Role: "lvl1"}, {Level: 5, Role: "lvl5"}}
	})
	return NewModule(env.Runtime), env
}

func TestGainAnnouncesLevelUp(t *testing.T) {
	m, env := newModule(t)
	ctx := context.Background()

	text, err := m.gain(ctx, engine.Message{User: "200", Channel: "general"})
	require.NoError(t, err)
	assert.Contains(t, text, "<@200>")
	assert.Contains(t, text, "poziom")
	assert.Equal(t, []string{"lvl1"}, env.Roles.Level["200"])

	text, err = m.gain(ctx, engine.Message{User: "200", Channel: "general"})
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.EqualValues(t, 150, env.Runtime.XP.Show(ctx, "200").XP)

	env.Clock.Advance(2 * time.Minute)
	text, err = m.gain(ctx, engine.Message{User: "200", Channel: "spam"})
	require.NoError(t, err)
	assert.Empty(t, text)
	text, err = m.gain(ctx, engine.Message{User: "201", Channel: "general", Bot: true})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestShow(t *testing.T) {
	m, _ := newModule(t)
	_, err := m.gain(context.Background(), engine.Message{User: "200", Channel: "general"})
	require.NoError(t, err)
	r := &actiontest.Responder{}

	m.handle(r, actiontest.Command("x", actiontest.Member("200"), discord.CommandXP, actiontest.Sub("show")))
	assert.Equal(t, "Masz 150 XP i tym samym poziom 1. Do następnego brakuje ci jeszcze 150 XP. 📈", r.LastContent())

	m.handle(r, actiontest.UserMenu("x", actiontest.Member("7"), discord.MenuXP, "200"))
	assert.Equal(t, "<@200> ma 150 XP i tym samym poziom 1. Do następnego brakuje mu jeszcze 150 XP. 📈", r.LastContent())

	bot := actiontest.UserMenu("x", actiontest.Member("7"), discord.MenuXP, "9")
	data := bot.Data.(discordgo.ApplicationCommandInteractionData)
	data.Resolved = &discordgo.ApplicationCommandInteractionDataResolved{
		Users: map[string]*discordgo.User{"9": {ID: "9", Bot: true}},
	}
	bot.Data = data
	m.handle(r, bot)
	assert.Equal(t, "<@9> jest botem i nie może zbierać XP… 😐", r.LastContent())
}

func TestLeaderboardAndRoles(t *testing.T) {
	m, env := newModule(t)
	ctx := context.Background()
	for _, u := range []string{"1", "2"} {
		_, err := m.gain(ctx, engine.Message{User: u, Channel: "general"})
		require.NoError(t, err)
	}
	env.Clock.Advance(time.Hour)
	_, err := m.gain(ctx, engine.Message{User: "2", Channel: "general"})
	require.NoError(t, err)

	r := &actiontest.Responder{}
	m.handle(r, actiontest.Command("x", actiontest.Member("1"), discord.CommandXP, actiontest.Sub("leaderboard")))
	assert.Equal(t, "Ranking 10 użytkowników z najwyższym XP: 🏆\n"+
		"1. <@2> z 300 XP i poziomem 2\n"+
		"2. <@1> z 150 XP i poziomem 1\n", r.LastContent())

	m.handle(r, actiontest.Command("x", actiontest.Member("1"), discord.CommandXP, actiontest.Sub("roles")))
	assert.Equal(t, "Za zdobywanie kolejnych poziomów możesz dostać następujące role: 💰\n"+
		"- <@&lvl1> za poziom 1\n- <@&lvl5> za poziom 5\n", r.LastContent())
}

func TestConsoleUpdateRoles(t *testing.T) {
	m, env := newModule(t)
	ctx := context.Background()
	_, err := m.gain(ctx, engine.Message{User: "1", Channel: "general"})
	require.NoError(t, err)
	delete(env.Roles.Level, "1")

	env.Discord.AddMember(actiontest.Member("1"))
	env.Discord.AddMember(actiontest.Member("2"))
	bot := actiontest.Member("3")
	bot.User.Bot = true
	env.Discord.AddMember(bot)

	_, err = env.Runtime.Console.Run(ctx, "xp.update_roles")
	require.NoError(t, err)
	assert.Equal(t, []string{"lvl1"}, env.Roles.Level["1"])
	assert.Empty(t, env.Roles.Level["2"])
	assert.NotContains(t, env.Roles.Level, "3")
}
