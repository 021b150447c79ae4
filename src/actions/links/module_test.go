package links

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oooz/oooz-bot/src/actions/actiontest"
	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/links"
)

type fakeFinder struct{}

func (fakeFinder) Resolve(_ context.Context, raw string) (links.Problem, bool, error) {
	if raw == "https://codeforces.com/contest/1900/problem/A" {
		return links.Problem{URL: raw, Title: "Halloumi Boxes"}, true, nil
	}
	return links.Problem{}, false, nil
}

func reaction(user, message, emoji string) *discordgo.MessageReactionAdd {
	return &discordgo.MessageReactionAdd{MessageReaction: &discordgo.MessageReaction{
		UserID: user, MessageID: message, ChannelID: "77", Emoji: discordgo.Emoji{Name: emoji},
	}}
}

func TestPublishAndTakeDown(t *testing.T) {
	env := actiontest.New(t, func(c *config.Config) { c.Links.Channel = "77" })
	m := NewModule(env.Runtime, fakeFinder{})
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() { m.Stop(ctx) })

	m.onReady(nil, &discordgo.Ready{User: &discordgo.User{ID: actiontest.BotID}})
	env.Clock.Advance(time.Minute)
	sub := env.Discord.Post("77", "10", "https://codeforces.com/contest/1900/problem/A na rozgrzewkę")
	env.Discord.Post("77", "11", "bez linku")

	out, err := env.Runtime.Console.Run(ctx, "links.clean")
	require.NoError(t, err)
	assert.Equal(t, "1", out)
	assert.Contains(t, env.Discord.Deleted, sub.ID)

	embeds := env.Discord.Embeds("77")
	require.Len(t, embeds, 1)
	assert.Equal(t, "Halloumi Boxes", embeds[0].Title)
	assert.Equal(t, "na rozgrzewkę", embeds[0].Description)
	require.Len(t, env.Discord.DMs["10"], 1)
	assert.Contains(t, env.Discord.DMs["10"][0], "https://discord.com/channels/1/77/")
	require.Len(t, env.Discord.DMs["11"], 1)
	assert.Contains(t, env.Discord.DMs["11"][0], "<#77>")

	require.Len(t, env.Discord.Deleted, 2)
	require.Len(t, env.Discord.Reactions, 2)
	id := strings.TrimSuffix(strings.TrimPrefix(env.Discord.Reactions[0], "+"), " ❤️")

	m.onReactionAdd(nil, reaction("12", id, "🤡"))
	assert.Equal(t, "-"+id+" 🤡 12", env.Discord.Reactions[2])

	m.onReactionAdd(nil, reaction("12", id, "❌"))
	assert.NotContains(t, env.Discord.Deleted, id)
	m.onReactionAdd(nil, reaction("10", id, "❌"))
	assert.Contains(t, env.Discord.Deleted, id)
	assert.Empty(t, env.Discord.Embeds("77"))
}

func TestDisabledWithoutChannel(t *testing.T) {
	env := actiontest.New(t)
	NewModule(env.Runtime, fakeFinder{})
	env.Discord.Post("77", "10", "https://a.pl")

	out, err := env.Runtime.Console.Run(context.Background(), "links.clean")
	require.NoError(t, err)
	assert.Equal(t, "0", out)
	assert.Empty(t, env.Discord.Deleted)
}
