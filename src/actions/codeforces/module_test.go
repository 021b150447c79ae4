package codeforces

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oooz/oooz-bot/src/actions/actiontest"
	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/reminders/codeforces"
)

type fakeAPI struct {
	contests []codeforces.Contest
	calls    int
}

func (f *fakeAPI) Contests(context.Context) ([]codeforces.Contest, error) {
	f.calls++
	return f.contests, nil
}

func (f *fakeAPI) RatingChanges(context.Context, int) ([]codeforces.RatingChange, error) {
	return nil, codeforces.ErrUnavailable
}

func (f *fakeAPI) Users(context.Context, []string) ([]codeforces.User, error) { return nil, nil }

func TestStartWithoutChannel(t *testing.T) {
	env := actiontest.New(t)
	api := &fakeAPI{}
	m := NewModule(env.Runtime, api)
	require.NoError(t, m.Start(context.Background()))
	m.Stop(context.Background())
	assert.Zero(t, api.calls)
	assert.False(t, env.Runtime.Scheduler.Pending("codeforces:poll"))
}

func TestConsolePollSchedulesReminders(t *testing.T) {
	env := actiontest.New(t, func(c *config.Config) {
		c.Codeforces.Channel = "cf"
		c.Codeforces.Advance = config.Duration(15 * time.Minute)
	})
	start := actiontest.Start.Add(48 * time.Hour)
	api := &fakeAPI{contests: []codeforces.Contest{
		{ID: 1900, Name: "Codeforces Round (Div. 2)", Phase: "BEFORE", StartTimeSeconds: start.Unix()},
		{ID: 1800, Name: "Old Round (Div. 1)", Phase: "FINISHED", StartTimeSeconds: actiontest.Start.Add(-48 * time.Hour).Unix()},
	}}
	NewModule(env.Runtime, api)

	out, err := env.Runtime.Console.Run(context.Background(), "codeforces.poll")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 1, api.calls)
	assert.True(t, env.Runtime.Scheduler.Pending("codeforces:contest:1900"))
	assert.False(t, env.Runtime.Scheduler.Pending("codeforces:contest:1800"))
}
