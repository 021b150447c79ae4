// Package links runs the curated task channel: members post a link to a
// problem with an optional description, the bot replaces the post with an
// embed naming the problem and its author.
package links

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oooz/oooz-bot/src/data/store"
)

const (
	keyCleanUntil = "fajne_zadanka_clean_until"
	keyPosts      = "fajne_zadanka_posts"

	// DeleteEmoji lets the author take a post down.
	DeleteEmoji = "❌"
)

// Reactions are added to every post. Members may only react with these.
var Reactions = []string{"❤️", "👍"}

var (
	leadingURL  = regexp.MustCompile(`^https?://\S+`)
	trailingURL = regexp.MustCompile(`https?://\S+$`)
)

// Parse splits a submission into its link and description. The link must
// open or close the message.
func Parse(content string) (url, description string, ok bool) {
	if url = leadingURL.FindString(content); url != "" {
		return url, strings.TrimLeft(strings.TrimPrefix(content, url), " \t\r\n"), true
	}
	if url = trailingURL.FindString(content); url != "" {
		return url, strings.TrimRight(strings.TrimSuffix(content, url), " \t\r\n"), true
	}
	return "", "", false
}

// Message is a submission found in the channel.
type Message struct {
	ID      string
	Author  string
	Name    string
	Avatar  string
	Bot     bool
	Own     bool
	Content string
	Created time.Time
}

// Post is the embed that replaces a submission.
type Post struct {
	Title       string
	URL         string
	Description string
	Author      string
	Avatar      string
}

// Board is the channel as the curator sees it.
type Board interface {
	// MessagesAfter returns the messages posted after t, oldest first.
	MessagesAfter(ctx context.Context, after time.Time) ([]Message, error)
	Delete(ctx context.Context, id string) error
	// Publish posts p with the default reactions and returns its jump link.
	Publish(ctx context.Context, p Post) (id, jump string, err error)
	RemoveReaction(ctx context.Context, id, emoji, user string) error
	DM(ctx context.Context, user, content, attachment string) error
}

// Finder resolves links to problems.
type Finder interface {
	Resolve(ctx context.Context, raw string) (Problem, bool, error)
}

type Curator struct {
	store  *store.Store
	finder Finder
	now    func() time.Time
	log    *slog.Logger

	mu sync.Mutex
}

func NewCurator(s *store.Store, finder Finder, now func() time.Time, log *slog.Logger) *Curator {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Curator{store: s, finder: finder, now: now, log: log.With("component", "links")}
}

// Clean replaces every submission posted since the last run. On first use
// it only records the current time.
func (c *Curator) Clean(ctx context.Context, b Board, channel string) (published int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		since time.Time
		fresh bool
	)
	err = c.store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		var ok bool
		if since, ok = tx.Time(keyCleanUntil); !ok {
			c.log.Info("links channel has never been cleaned before")
			tx.Set(keyCleanUntil, c.now())
			fresh = true
		}
		return nil
	})
	if err != nil || fresh {
		return 0, err
	}

	msgs, err := b.MessagesAfter(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("links: history: %w", err)
	}
	for _, m := range msgs {
		if m.Own {
			continue
		}
		if err := b.Delete(ctx, m.ID); err != nil {
			return published, err
		}
		if m.Bot {
			continue
		}
		ok, err := c.submit(ctx, b, channel, m)
		if err != nil {
			return published, err
		}
		if ok {
			published++
		}
	}
	return published, nil
}

func (c *Curator) submit(ctx context.Context, b Board, channel string, m Message) (bool, error) {
	raw, description, ok := Parse(m.Content)
	if !ok {
		text := fmt.Sprintf("Twoja wiadomość musi zaczynać się lub konczyć linkiem do zadania, abyś mógł ją wysłać na <#%s>. 🤓", channel)
		if err := b.DM(ctx, m.Author, text, m.Content); err != nil {
			c.log.Warn("could not explain rejected submission", "user", m.Author, "error", err)
		}
		return false, nil
	}

	post := Post{Title: raw, URL: raw, Description: description, Author: m.Name, Avatar: m.Avatar}
	p, found, err := c.finder.Resolve(ctx, raw)
	switch {
	case err != nil:
		c.log.Warn("could not look up problem", "url", raw, "error", err)
	case found:
		post.Title, post.URL = p.Title, p.URL
	}

	id, jump, err := b.Publish(ctx, post)
	if err != nil {
		return false, fmt.Errorf("links: publish: %w", err)
	}
	err = c.store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		tx.Map(keyPosts)[id] = m.Author
		tx.Set(keyCleanUntil, m.Created)
		return nil
	})
	if err != nil {
		return false, err
	}
	c.log.Info("problem published", "user", m.Author, "url", post.URL)
	text := fmt.Sprintf("Zareaguj %s na [swoją wiadomość](%s), gdy będziesz chciał ją usunąć. 😊", DeleteEmoji, jump)
	if err := b.DM(ctx, m.Author, text, ""); err != nil {
		c.log.Warn("could not send deletion hint", "user", m.Author, "error", err)
	}
	return true, nil
}

// Owner returns the author of a published post.
func (c *Curator) Owner(ctx context.Context, id string) (string, bool) {
	var owner string
	_ = c.store.View(ctx, func(_ context.Context, tx *store.Tx) error {
		owner, _ = store.AsString(tx.Map(keyPosts)[id])
		return nil
	})
	return owner, owner != ""
}

// Reacted handles a reaction on the channel. The author's ❌ removes the
// post, foreign emoji are taken off.
func (c *Curator) Reacted(ctx context.Context, b Board, id, emoji, user string) error {
	owner, ok := c.Owner(ctx, id)
	if !ok {
		return nil
	}
	if emoji == DeleteEmoji && user == owner {
		if err := b.Delete(ctx, id); err != nil {
			return err
		}
		c.log.Info("post removed by its author", "id", id, "user", user)
		return c.store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
			delete(tx.Map(keyPosts), id)
			return nil
		})
	}
	for _, r := range Reactions {
		if r == emoji {
			return nil
		}
	}
	return b.RemoveReaction(ctx, id, emoji, user)
}
