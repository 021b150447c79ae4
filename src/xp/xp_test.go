package xp

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/data/linked"
	"github.com/oooz/oooz-bot/src/data/store"
)

func TestLevelFormula(t *testing.T) {
	for level := 0; level < 200; level++ {
		xp := XPFor(level)
		assert.Equal(t, level, LevelOf(xp), "xp %d", xp)
		if xp > 0 {
			assert.Equal(t, level-1, LevelOf(xp-1), "xp %d", xp-1)
		}
	}
	assert.Equal(t, int64(0), XPFor(0))
	assert.Equal(t, int64(100), XPFor(1))
	assert.Equal(t, int64(300), XPFor(2))
	assert.Equal(t, int64(600), XPFor(3))
	assert.Equal(t, 0, LevelOf(-5))
}

type fakeRoles struct {
	mu    sync.Mutex
	calls map[string][]string
}

func (f *fakeRoles) SyncLevelRoles(_ context.Context, user string, grant, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[user] = grant
	return nil
}

type harness struct {
	engine *Engine
	store  *store.Store
	roles  *fakeRoles
	now    time.Time
	cfg    config.XP
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		roles: &fakeRoles{calls: map[string][]string{}},
		now:   time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
		cfg:   config.Default().XP,
	}
	h.cfg.IgnoredChannels = []string{"spam"}
	h.cfg.IgnoredCategories = []string{"archive"}
	h.cfg.Roles = []config.XPRole{{Level: 1, Role: "bronze"}, {Level: 3, Role: "gold"}}
	h.store = store.New(store.Options{Path: filepath.Join(t.TempDir(), "db.json")})
	h.engine = New(Deps{
		Store:  h.store,
		Roles:  h.roles,
		Config: func() config.XP { return h.cfg },
		Now:    func() time.Time { return h.now },
		Gain:   func(min, _ int) int { return min },
	})
	return h
}

func TestOnMessageCooldownAndIgnores(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	g, err := h.engine.OnMessage(ctx, Message{User: "1", Channel: "general"})
	require.NoError(t, err)
	assert.Equal(t, 15, g.Points)
	assert.Equal(t, int64(15), g.XP)

	g, err = h.engine.OnMessage(ctx, Message{User: "1", Channel: "general"})
	require.NoError(t, err)
	assert.Zero(t, g.Points, "cooldown")

	h.now = h.now.Add(time.Minute)
	g, _ = h.engine.OnMessage(ctx, Message{User: "1", Channel: "spam"})
	assert.Zero(t, g.Points)
	g, _ = h.engine.OnMessage(ctx, Message{User: "1", Channel: "old", Category: "archive"})
	assert.Zero(t, g.Points)
	g, _ = h.engine.OnMessage(ctx, Message{User: "2", Channel: "general", Bot: true})
	assert.Zero(t, g.Points)

	g, _ = h.engine.OnMessage(ctx, Message{User: "1", Channel: "general"})
	assert.Equal(t, int64(30), g.XP)
}

func TestLevelUpSyncsRoles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		SetXP(tx, "1", 90)
		return nil
	}))

	g, err := h.engine.OnMessage(ctx, Message{User: "1", Channel: "general"})
	require.NoError(t, err)
	assert.True(t, g.LevelUp)
	assert.Equal(t, 1, g.Level)
	assert.Equal(t, []string{"bronze"}, h.roles.calls["1"])

	s := h.engine.Show(ctx, "1")
	assert.Equal(t, int64(105), s.XP)
	assert.Equal(t, int64(195), s.Missing)
}

func TestLinkedAccountsPoolLevels(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		SetXP(tx, "1", 400)
		SetXP(tx, "2", 250)
		linked.Link(tx, "1", "2")
		return nil
	}))

	s := h.engine.Show(ctx, "2")
	assert.Equal(t, int64(250), s.XP)
	assert.Equal(t, 3, s.Level)

	grant, revoke := h.engine.RolesFor(ctx, "2")
	assert.Equal(t, []string{"bronze", "gold"}, grant)
	assert.Empty(t, revoke)

	require.NoError(t, h.engine.UpdateRoles(ctx, []string{"1", "2", "3"}))
	assert.Equal(t, []string{"bronze", "gold"}, h.roles.calls["1"])
	assert.Nil(t, h.roles.calls["3"])
}

func TestLeaderboard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		for i, xp := range []int64{50, 900, 300, 300, 10} {
			SetXP(tx, string(rune('a'+i)), xp)
		}
		return nil
	}))

	top := h.engine.Leaderboard(ctx, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "b", top[0].User)
	assert.Equal(t, "c", top[1].User)
	assert.Equal(t, "d", top[2].User)
	assert.Equal(t, 2, top[1].Level)
}
