package counting

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oooz/oooz-bot/src/data/store"
)

type fakeChannel struct {
	msgs    []Message
	deleted []string
}

func (f *fakeChannel) MessagesAfter(_ context.Context, after time.Time) ([]Message, error) {
	var out []Message
	for _, m := range f.msgs {
		if m.Created.After(after) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeChannel) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func TestClean(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := store.New(store.Options{Path: filepath.Join(t.TempDir(), "db.json")})
	c := New(s, func() time.Time { return base }, nil)
	ctx := context.Background()
	ch := &fakeChannel{}

	// the first run only sets the cursor
	kept, deleted, err := c.Clean(ctx, ch)
	require.NoError(t, err)
	assert.Zero(t, kept+deleted)
	_, started := c.Next(ctx)
	assert.False(t, started)

	for i, content := range []string{"7", "8", "hej", "10", " 9 ", "10"} {
		ch.msgs = append(ch.msgs, Message{ID: string(rune('a' + i)), Content: content, Created: base.Add(time.Duration(i+1) * time.Second)})
	}
	kept, deleted, err = c.Clean(ctx, ch)
	require.NoError(t, err)
	assert.Equal(t, 4, kept)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, []string{"c", "d"}, ch.deleted)
	next, started := c.Next(ctx)
	assert.True(t, started)
	assert.Equal(t, int64(11), next)

	// kept messages are not judged twice
	ch.deleted = nil
	kept, deleted, err = c.Clean(ctx, ch)
	require.NoError(t, err)
	assert.Zero(t, kept+deleted)
}
