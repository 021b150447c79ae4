package warns

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oooz/oooz-bot/src/access"
	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/data/store"
	"github.com/oooz/oooz-bot/src/scheduler"
)

const day = 24 * time.Hour

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(days int) time.Time { return epoch.Add(time.Duration(days) * day) }

func TestComputeExpiryWorkedExample(t *testing.T) {
	ws := []*Warning{{Time: at(0)}, {Time: at(10)}}

	changed := ComputeExpiry(ws, at(80), 30*day)
	require.Len(t, changed, 2)
	assert.Equal(t, at(40), *ws[0].Expired)
	assert.Equal(t, at(70), *ws[1].Expired)
}

func TestComputeExpiryStopsAtNow(t *testing.T) {
	ws := []*Warning{{Time: at(0)}, {Time: at(10)}}

	changed := ComputeExpiry(ws, at(50), 30*day)
	require.Len(t, changed, 1)
	assert.Equal(t, at(40), *ws[0].Expired)
	assert.Nil(t, ws[1].Expired)

	// the second warning keeps its schedule once the first is persisted
	changed = ComputeExpiry(ws, at(80), 30*day)
	require.Len(t, changed, 1)
	assert.Equal(t, at(70), *ws[1].Expired)
	assert.Equal(t, at(40), *ws[0].Expired)
}

func TestComputeExpiryIsIdempotentAndMonotonic(t *testing.T) {
	ws := []*Warning{{Time: at(0)}, {Time: at(3)}, {Time: at(45)}, {Time: at(100)}}
	for now := 0; now <= 200; now += 7 {
		before := make([]*time.Time, len(ws))
		for i, w := range ws {
			before[i] = w.Expired
		}
		ComputeExpiry(ws, at(now), 30*day)
		for i, w := range ws {
			if before[i] != nil {
				require.NotNil(t, w.Expired)
				assert.Equal(t, *before[i], *w.Expired)
			}
			if w.Expired != nil {
				assert.False(t, w.Expired.After(at(now)))
			}
		}
		assert.Empty(t, ComputeExpiry(ws, at(now), 30*day))
	}
	for _, w := range ws {
		assert.NotNil(t, w.Expired)
	}
}

func TestComputeExpiryIgnoresBadInterval(t *testing.T) {
	ws := []*Warning{{Time: at(0)}}
	assert.Empty(t, ComputeExpiry(ws, at(100), 0))
	assert.Nil(t, ws[0].Expired)
}

func TestTier(t *testing.T) {
	roles := []string{"w1", "w2", "w3"}
	for _, tc := range []struct {
		count int
		want  string
		ok    bool
	}{
		{0, "", false},
		{1, "w1", true},
		{3, "w3", true},
		{7, "w3", true},
	} {
		got, ok := Tier(tc.count, roles)
		assert.Equal(t, tc.want, got, "count %d", tc.count)
		assert.Equal(t, tc.ok, ok)
	}
	_, ok := Tier(2, nil)
	assert.False(t, ok)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeRoles struct {
	mu    sync.Mutex
	roles map[string]string
}

func (f *fakeRoles) SetWarnRole(_ context.Context, user, role string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[user] = role
	return nil
}

func (f *fakeRoles) of(user string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[user]
}

var (
	staff  = access.Actor{ID: "7", Roles: []string{"staff"}}
	member = access.Actor{ID: "100"}
)

type harness struct {
	engine *Engine
	store  *store.Store
	clock  *clock
	roles  *fakeRoles
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{clock: &clock{t: at(0)}, roles: &fakeRoles{roles: map[string]string{}}}
	cfg := config.Default()
	cfg.StaffRoles = []string{"staff"}
	cfg.WarnRoles = []string{"w1", "w2", "w3"}
	h.store = store.New(store.Options{Path: filepath.Join(t.TempDir(), "db.json"), Now: h.clock.Now})
	sched := scheduler.New(scheduler.Options{Now: h.clock.Now})
	t.Cleanup(sched.Stop)
	h.engine = New(Deps{
		Store:     h.store,
		Scheduler: sched,
		Roles:     h.roles,
		Config:    func() *config.Config { return cfg },
		Now:       h.clock.Now,
	})
	return h
}

func (h *harness) warn(t *testing.T, user string, days int) Warning {
	t.Helper()
	h.clock.Set(at(days))
	w, _, err := h.engine.Add(context.Background(), staff, user, "spam")
	require.NoError(t, err)
	return w
}

func TestAddAndExpire(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.warn(t, "1", 0)
	h.clock.Set(at(10))
	_, count, err := h.engine.Add(ctx, staff, "1", "flood")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, "w2", h.roles.of("1"))
	assert.True(t, h.store.Dirty())

	h.clock.Set(at(50))
	require.NoError(t, h.engine.Recompute(ctx, "1"))
	ws := h.engine.Warnings(ctx, "1")
	require.Len(t, ws, 2)
	assert.Equal(t, at(40), *ws[0].Expired)
	assert.Nil(t, ws[1].Expired)
	assert.Equal(t, "w1", h.roles.of("1"))

	h.clock.Set(at(80))
	require.NoError(t, h.engine.RecomputeAll(ctx))
	assert.Equal(t, at(70), *h.engine.Warnings(ctx, "1")[1].Expired)
	assert.Equal(t, 0, h.engine.ActiveCount(ctx, "1"))
	assert.Equal(t, "", h.roles.of("1"))
}

func TestAddRequiresStaffAndReason(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.engine.Add(ctx, member, "1", "spam")
	assert.ErrorIs(t, err, &access.DeniedError{Reason: access.NotStaff})

	_, _, err = h.engine.Add(ctx, staff, "1", "   ")
	assert.ErrorIs(t, err, &access.DeniedError{Reason: access.EmptyText})

	assert.Empty(t, h.engine.Warnings(ctx, "1"))
}

func TestRemoveByIssueTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Remove(ctx, staff, "1", at(0))
	assert.ErrorIs(t, err, &access.DeniedError{Reason: access.NoWarnings})

	first := h.warn(t, "1", 0)
	h.warn(t, "1", 1)

	_, err = h.engine.Remove(ctx, staff, "1", at(5))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.engine.Remove(ctx, member, "1", first.Time)
	assert.ErrorIs(t, err, &access.DeniedError{Reason: access.NotStaff})

	removed, err := h.engine.Remove(ctx, staff, "1", first.Time)
	require.NoError(t, err)
	assert.Equal(t, first.Time, removed.Time)
	ws := h.engine.Warnings(ctx, "1")
	require.Len(t, ws, 1)
	assert.Equal(t, at(1), ws[0].Time)
	assert.Equal(t, "w1", h.roles.of("1"))
}

func TestEdit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.warn(t, "1", 0)

	override := at(3)
	require.NoError(t, h.engine.Edit(ctx, staff, "1", w.Time, "spam w #general", &override))
	ws := h.engine.Warnings(ctx, "1")
	require.Len(t, ws, 1)
	assert.Equal(t, "spam w #general", ws[0].Reason)
	assert.Equal(t, override, *ws[0].Expired)
	assert.Equal(t, "", h.roles.of("1"))

	assert.ErrorIs(t, h.engine.Edit(ctx, staff, "1", at(9), "x", nil), ErrNotFound)
	assert.ErrorIs(t, h.engine.Edit(ctx, staff, "2", at(9), "x", nil), &access.DeniedError{Reason: access.NoWarnings})
}

func TestLinkedAccountsPoolWarnings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.Link(ctx, staff, "1", "2"))
	assert.ErrorIs(t, h.engine.Link(ctx, staff, "2", "1"), &access.DeniedError{Reason: access.AlreadyLinked})
	require.NoError(t, h.engine.Link(ctx, staff, "2", "3"))
	assert.Equal(t, []string{"1", "2", "3"}, h.engine.Group(ctx, "3"))

	h.warn(t, "1", 0)
	h.warn(t, "3", 10)
	assert.Equal(t, 2, h.engine.ActiveCount(ctx, "2"))
	assert.Equal(t, "w2", h.roles.of("1"))
	assert.Equal(t, "w2", h.roles.of("2"))
	assert.Equal(t, "w2", h.roles.of("3"))

	// the pooled walk spans both accounts
	h.clock.Set(at(80))
	require.NoError(t, h.engine.Recompute(ctx, "2"))
	assert.Equal(t, at(40), *h.engine.Warnings(ctx, "1")[0].Expired)
	assert.Equal(t, at(70), *h.engine.Warnings(ctx, "3")[0].Expired)

	require.NoError(t, h.engine.Unlink(ctx, staff, "3"))
	assert.Equal(t, []string{"3"}, h.engine.Group(ctx, "3"))
	assert.Equal(t, []string{"1", "2"}, h.engine.Group(ctx, "1"))
	assert.ErrorIs(t, h.engine.Unlink(ctx, staff, "3"), &access.DeniedError{Reason: access.NotLinked})
}

func TestWarningsSurviveReload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.warn(t, "1", 0)
	h.clock.Set(at(31))
	require.NoError(t, h.engine.Recompute(ctx, "1"))
	require.NoError(t, h.store.Save(ctx))

	fresh := store.New(store.Options{Path: h.store.Path()})
	require.NoError(t, fresh.Load(ctx))
	h.engine.deps.Store = fresh

	ws := h.engine.Warnings(ctx, "1")
	require.Len(t, ws, 1)
	assert.Equal(t, "spam", ws[0].Reason)
	assert.Equal(t, at(30), *ws[0].Expired)
}
