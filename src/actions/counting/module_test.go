package counting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oooz/oooz-bot/src/actions/actiontest"
	"github.com/oooz/oooz-bot/src/config"
)

func TestCleanKeepsTheSequence(t *testing.T) {
	env := actiontest.New(t, func(c *config.Config) { c.CountingChannel = "777" })
	m := NewModule(env.Runtime)
	ctx := context.Background()

	env.Discord.Post("777", "1", "old chatter")
	m.clean(ctx)

	for _, text := range []string{"5", "6", "hello", "8", " 7 "} {
		env.Clock.Advance(time.Second)
		env.Discord.Post("777", "1", text)
	}
	m.clean(ctx)
	assert.Equal(t, []string{"old chatter", "5", "6", " 7 "}, env.Discord.Messages("777"))

	n, ok := env.Runtime.Counter.Next(ctx)
	require.True(t, ok)
	assert.EqualValues(t, 8, n)

	env.Clock.Advance(time.Second)
	env.Discord.Post("777", "2", "9")
	m.clean(ctx)
	assert.Equal(t, []string{"old chatter", "5", "6", " 7 "}, env.Discord.Messages("777"))

	out, err := env.Runtime.Console.Run(ctx, "counting.next")
	require.NoError(t, err)
	assert.Equal(t, "8", out)
}

func TestCleanWithoutChannel(t *testing.T) {
	env := actiontest.New(t)
	m := NewModule(env.Runtime)
	m.clean(context.Background())
	_, ok := env.Runtime.Counter.Next(context.Background())
	assert.False(t, ok)
}
