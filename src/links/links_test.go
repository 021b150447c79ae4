package links

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oooz/oooz-bot/src/data/store"
)

func TestParse(t *testing.T) {
	tests := []struct {
		content, url, description string
		ok                        bool
	}{
		{"https://oj.uz/problem/view/BOI17_ball super zadanie", "https://oj.uz/problem/view/BOI17_ball", "super zadanie", true},
		{"polecam http://x.pl/a", "http://x.pl/a", "polecam", true},
		{"https://a.pl", "https://a.pl", "", true},
		{"zobaczcie https://a.pl koniecznie", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		url, description, ok := Parse(tt.content)
		assert.Equal(t, tt.ok, ok, tt.content)
		assert.Equal(t, tt.url, url, tt.content)
		assert.Equal(t, tt.description, description, tt.content)
	}
}

type dm struct{ user, content, attachment string }

type fakeBoard struct {
	msgs    []Message
	deleted []string
	posts   []Post
	dms     []dm
	removed []string
	fail    error
}

func (f *fakeBoard) MessagesAfter(_ context.Context, after time.Time) ([]Message, error) {
	var out []Message
	for _, m := range f.msgs {
		if m.Created.After(after) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeBoard) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBoard) Publish(_ context.Context, p Post) (string, string, error) {
	if f.fail != nil {
		return "", "", f.fail
	}
	f.posts = append(f.posts, p)
	id := fmt.Sprint("post", len(f.posts))
	return id, "https://discord.com/channels/1/7/" + id, nil
}

func (f *fakeBoard) RemoveReaction(_ context.Context, id, emoji, user string) error {
	f.removed = append(f.removed, id+" "+emoji+" "+user)
	return nil
}

func (f *fakeBoard) DM(_ context.Context, user, content, attachment string) error {
	f.dms = append(f.dms, dm{user, content, attachment})
	return nil
}

type fakeFinder map[string]Problem

func (f fakeFinder) Resolve(_ context.Context, raw string) (Problem, bool, error) {
	if raw == "https://codeforces.com/contest/1/problem/Z" {
		return Problem{}, true, errors.New("no such problem")
	}
	p, ok := f[raw]
	return p, ok, nil
}

func newCurator(t *testing.T, now time.Time) *Curator {
	s := store.New(store.Options{Path: filepath.Join(t.TempDir(), "db.json")})
	return NewCurator(s, fakeFinder{
		"https://oj.uz/problem/view/BOI17_ball": {URL: "https://oj.uz/problem/statement/BOI17_ball", Title: "Ball Machine"},
	}, func() time.Time { return now }, nil)
}

func TestClean(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newCurator(t, base)
	ctx := context.Background()
	b := &fakeBoard{}

	// the first run only sets the cursor
	n, err := c.Clean(ctx, b, "7")
	require.NoError(t, err)
	assert.Zero(t, n)

	at := func(i int) time.Time { return base.Add(time.Duration(i) * time.Second) }
	b.msgs = []Message{
		{ID: "a", Author: "10", Name: "ala", Avatar: "https://cdn/a.png", Content: "https://oj.uz/problem/view/BOI17_ball piękne", Created: at(1)},
		{ID: "b", Author: "11", Name: "bob", Content: "fajne zadanie", Created: at(2)},
		{ID: "c", Own: true, Content: "", Created: at(3)},
		{ID: "d", Author: "12", Bot: true, Content: "https://a.pl", Created: at(4)},
		{ID: "e", Author: "11", Name: "bob", Content: "trudne https://codeforces.com/contest/1/problem/Z", Created: at(5)},
		{ID: "f", Author: "13", Name: "cyryl", Content: "https://example.com/task", Created: at(6)},
	}
	n, err = c.Clean(ctx, b, "7")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "d", "e", "f"}, b.deleted)
	assert.Equal(t, []Post{
		{Title: "Ball Machine", URL: "https://oj.uz/problem/statement/BOI17_ball", Description: "piękne", Author: "ala", Avatar: "https://cdn/a.png"},
		{Title: "https://codeforces.com/contest/1/problem/Z", URL: "https://codeforces.com/contest/1/problem/Z", Description: "trudne", Author: "bob"},
		{Title: "https://example.com/task", URL: "https://example.com/task", Author: "cyryl"},
	}, b.posts)

	require.Len(t, b.dms, 4)
	assert.Equal(t, dm{"10", "Zareaguj ❌ na [swoją wiadomość](https://discord.com/channels/1/7/post1), gdy będziesz chciał ją usunąć. 😊", ""}, b.dms[0])
	assert.Equal(t, "11", b.dms[1].user)
	assert.Contains(t, b.dms[1].content, "<#7>")
	assert.Equal(t, "fajne zadanie", b.dms[1].attachment)

	owner, ok := c.Owner(ctx, "post2")
	assert.True(t, ok)
	assert.Equal(t, "11", owner)

	// published messages are not judged twice
	b.deleted, b.posts = nil, nil
	n, err = c.Clean(ctx, b, "7")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, b.deleted)
}

func TestCleanStopsWhenPublishFails(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newCurator(t, base)
	ctx := context.Background()
	b := &fakeBoard{}
	_, err := c.Clean(ctx, b, "7")
	require.NoError(t, err)

	b.msgs = []Message{{ID: "a", Author: "10", Content: "https://a.pl", Created: base.Add(time.Second)}}
	b.fail = errors.New("discord down")
	_, err = c.Clean(ctx, b, "7")
	require.ErrorIs(t, err, b.fail)
	_, ok := c.Owner(ctx, "post1")
	assert.False(t, ok)
}

func TestReacted(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newCurator(t, base)
	ctx := context.Background()
	b := &fakeBoard{}
	_, err := c.Clean(ctx, b, "7")
	require.NoError(t, err)
	b.msgs = []Message{{ID: "a", Author: "10", Content: "https://a.pl", Created: base.Add(time.Second)}}
	_, err = c.Clean(ctx, b, "7")
	require.NoError(t, err)
	b.deleted = nil

	require.NoError(t, c.Reacted(ctx, b, "post1", "❤️", "20"))
	require.NoError(t, c.Reacted(ctx, b, "post1", "🤡", "20"))
	assert.Equal(t, []string{"post1 🤡 20"}, b.removed)

	// only the author may take the post down
	require.NoError(t, c.Reacted(ctx, b, "post1", DeleteEmoji, "20"))
	assert.Empty(t, b.deleted)
	assert.Equal(t, []string{"post1 🤡 20", "post1 ❌ 20"}, b.removed)

	require.NoError(t, c.Reacted(ctx, b, "post1", DeleteEmoji, "10"))
	assert.Equal(t, []string{"post1"}, b.deleted)
	_, ok := c.Owner(ctx, "post1")
	assert.False(t, ok)

	// messages the curator did not publish are left alone
	b.removed = nil
	require.NoError(t, c.Reacted(ctx, b, "other", "🤡", "20"))
	assert.Empty(t, b.removed)
}
