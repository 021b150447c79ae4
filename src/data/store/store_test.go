package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(Options{
		Path:     filepath.Join(t.TempDir(), "database.json"),
		Interval: func() time.Duration { return 10 * time.Millisecond },
		Now:      func() time.Time { return time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC) },
	})
}

func sampleTree() map[string]any {
	created := time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)
	return map[string]any{
		"sugestie": []any{
			map[string]any{
				"id":      "1203",
				"created": created,
				"for":     NewSet("1", "2"),
				"against": NewSet(),
				"comments": map[string]any{
					"7": "looks good",
				},
				"outcome": true,
			},
		},
		"counting_num": int64(41),
		"ratio":        1.5,
		"nothing":      nil,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	want := sampleTree()
	require.NoError(t, s.Update(ctx, func(_ context.Context, tx *Tx) error {
		for k, v := range sampleTree() {
			tx.Set(k, v)
		}
		return nil
	}))
	require.True(t, s.Dirty())
	require.NoError(t, s.Save(ctx))
	assert.False(t, s.Dirty())

	loaded := New(Options{Path: s.Path()})
	require.NoError(t, loaded.Load(ctx))
	assert.Equal(t, want, loaded.Dump(ctx))
	assert.False(t, loaded.Dirty())
}

func TestSnapshotFormat(t *testing.T) {
	raw, err := Encode(map[string]any{
		"s": NewSet("2", "10"),
		"t": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":{"__set__":["2","10"]},"t":{"__datetime__":"2024-01-01T00:00:00Z"}}`, string(raw))
}

func TestDecodeLegacySnapshot(t *testing.T) {
	data, err := Decode([]byte(`{
		"voters": {"__set__": true, "123": null, "456": null},
		"numeric": {"__set__": [5, "x"]},
		"when": {"__datetime__": "2023-06-01T10:20:30.123456"},
		"n": 12
	}`))
	require.NoError(t, err)
	assert.Equal(t, NewSet("123", "456"), data["voters"])
	assert.Equal(t, NewSet("5", "x"), data["numeric"])
	assert.Equal(t, time.Date(2023, 6, 1, 10, 20, 30, 123456000, time.UTC), data["when"])
	assert.Equal(t, int64(12), data["n"])
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Load(context.Background()))
	assert.Empty(t, s.Dump(context.Background()))
}

func TestLoadCorruptFileFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Update(ctx, func(_ context.Context, tx *Tx) error {
		tx.Set("keep", "me")
		return nil
	}))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"broken":`), 0o600))

	assert.Error(t, s.Load(ctx))
	assert.Equal(t, map[string]any{"keep": "me"}, s.Dump(ctx))
}

func TestSaveKeepsDatedBackupAndNoTempFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	set := func(v string) {
		require.NoError(t, s.Update(ctx, func(_ context.Context, tx *Tx) error {
			tx.Set("v", v)
			return nil
		}))
		require.NoError(t, s.Save(ctx))
	}
	set("first")
	set("second")

	backup, err := os.ReadFile(s.Path() + ".2024-05-17")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"first"}`, string(backup))

	live, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"second"}`, string(live))

	_, err = os.Stat(s.Path() + ".new")
	assert.True(t, os.IsNotExist(err))
}

func TestInterruptedSaveLeavesLiveSnapshotIntact(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Update(ctx, func(_ context.Context, tx *Tx) error {
		tx.Set("v", "old")
		return nil
	}))
	require.NoError(t, s.Save(ctx))

	// A crash after writing the temp file but before the rename.
	require.NoError(t, os.WriteFile(s.Path()+".new", []byte(`{"v":"ne`), 0o600))

	fresh := New(Options{Path: s.Path()})
	require.NoError(t, fresh.Load(ctx))
	assert.Equal(t, map[string]any{"v": "old"}, fresh.Dump(ctx))
}

func TestNestedUpdateReusesLock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Update(ctx, func(ctx context.Context, tx *Tx) error {
			tx.Set("outer", true)
			return s.Update(ctx, func(_ context.Context, inner *Tx) error {
				inner.Set("inner", true)
				return s.View(ctx, func(context.Context, *Tx) error { return nil })
			})
		})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested update deadlocked")
	}
	assert.Equal(t, map[string]any{"outer": true, "inner": true}, s.Dump(ctx))
}

func TestLeakedContextDoesNotBypassLock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	var leaked context.Context
	require.NoError(t, s.Update(ctx, func(ctx context.Context, _ *Tx) error {
		leaked = ctx
		return nil
	}))

	// The leaked context's transaction is closed, so this must take the lock
	// and therefore wait for the concurrent holder.
	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = s.Update(ctx, func(context.Context, *Tx) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	entered := make(chan struct{})
	go func() {
		_ = s.Update(leaked, func(context.Context, *Tx) error {
			close(entered)
			return nil
		})
	}()
	select {
	case <-entered:
		t.Fatal("update with a stale context skipped the lock")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-entered
}

func TestConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, func(_ context.Context, tx *Tx) error {
				n, _ := AsInt(tx.Root()["n"])
				tx.Set("n", n+1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), s.Dump(ctx)["n"])
}

func TestAutosave(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	saved := make(chan map[string]any, 1)
	s.OnSave(func(_ context.Context, snap map[string]any) {
		select {
		case saved <- snap:
		default:
		}
	})
	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), ErrStarted)

	require.NoError(t, s.Update(ctx, func(_ context.Context, tx *Tx) error {
		tx.Set("x", "y")
		return nil
	}))

	select {
	case snap := <-saved:
		assert.Equal(t, "y", snap["x"])
	case <-time.After(2 * time.Second):
		t.Fatal("autosave did not run")
	}

	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
	assert.ErrorIs(t, s.Stop(), ErrNotStarted)
}

func TestSetItemsOrder(t *testing.T) {
	assert.Equal(t, []string{"2", "10", "100", "abc"}, NewSet("abc", "100", "2", "10").Items())
	s := NewSet("1")
	assert.True(t, s.Remove("1"))
	assert.False(t, s.Remove("1"))
}
