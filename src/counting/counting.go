// Package counting polices the counting channel: every message must be the
// next integer of the sequence, everything else is removed.
package counting

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oooz/oooz-bot/src/data/store"
)

const (
	keyNum        = "counting_num"
	keyCleanUntil = "counting_clean_until"
)

// Message is one message of the counting channel.
type Message struct {
	ID      string
	Content string
	Created time.Time
}

// Channel reads and prunes the counting channel.
type Channel interface {
	// MessagesAfter returns the messages posted after t, oldest first.
	MessagesAfter(ctx context.Context, after time.Time) ([]Message, error)
	Delete(ctx context.Context, id string) error
}

type Counter struct {
	store *store.Store
	now   func() time.Time
	log   *slog.Logger

	// mu keeps two cleanups from judging the same backlog.
	mu sync.Mutex
}

func New(s *store.Store, now func() time.Time, log *slog.Logger) *Counter {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Counter{store: s, now: now, log: log.With("component", "counting")}
}

// Next returns the number expected next, if the sequence has started.
func (c *Counter) Next(ctx context.Context) (int64, bool) {
	var (
		n  int64
		ok bool
	)
	_ = c.store.View(ctx, func(_ context.Context, tx *store.Tx) error {
		v, _ := tx.Get(keyNum)
		n, ok = store.AsInt(v)
		return nil
	})
	return n, ok
}

// Clean judges every message posted since the last cleanup. On first use it
// only records the current time, leaving older history alone.
func (c *Counter) Clean(ctx context.Context, ch Channel) (kept, deleted int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		since time.Time
		fresh bool
	)
	err = c.store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		var ok bool
		if since, ok = tx.Time(keyCleanUntil); !ok {
			tx.Set(keyCleanUntil, c.now())
			fresh = true
		}
		return nil
	})
	if err != nil || fresh {
		return 0, 0, err
	}

	msgs, err := ch.MessagesAfter(ctx, since)
	if err != nil {
		return 0, 0, fmt.Errorf("counting: history: %w", err)
	}
	for _, m := range msgs {
		ok, err := c.accept(ctx, m)
		if err != nil {
			return kept, deleted, err
		}
		if ok {
			kept++
			continue
		}
		if err := ch.Delete(ctx, m.ID); err != nil {
			c.log.Warn("could not delete message", "id", m.ID, "error", err)
			continue
		}
		deleted++
	}
	return kept, deleted, nil
}

func (c *Counter) accept(ctx context.Context, m Message) (bool, error) {
	num, err := strconv.ParseInt(strings.TrimSpace(m.Content), 10, 64)
	if err != nil {
		return false, nil
	}
	ok := false
	err = c.store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		v, _ := tx.Get(keyNum)
		next, started := store.AsInt(v)
		if started && num != next {
			return nil
		}
		if !started {
			c.log.Info("counting started", "number", num)
		}
		tx.Set(keyNum, num+1)
		tx.Set(keyCleanUntil, m.Created)
		ok = true
		return nil
	})
	return ok, err
}
