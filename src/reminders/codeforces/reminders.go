package codeforces

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/scheduler"
)

const (
	pollKey        = "codeforces:poll"
	reminderPrefix = "codeforces:contest:"

	// user.info fails for much more than ~700 handles at once.
	userBatch  = 600
	maxMessage = 2000
	country    = "Poland"
	emptyGIF   = "https://tenor.com/view/tumbleweed-desert-awkward-silence-heat-wave-crickets-gif-24664698"
)

// API is the part of Client used by Reminders.
type API interface {
	Contests(ctx context.Context) ([]Contest, error)
	RatingChanges(ctx context.Context, contest int) ([]RatingChange, error)
	Users(ctx context.Context, handles []string) ([]User, error)
}

// Poster sends plain messages without link previews.
type Poster interface {
	Send(ctx context.Context, channel, content string) error
}

type Deps struct {
	API       API
	Scheduler *scheduler.Scheduler
	Poster    Poster
	Config    func() config.Codeforces
	Now       func() time.Time
	Logger    *slog.Logger
}

// Reminders polls the contest list and keeps one reminder per upcoming
// contest.
type Reminders struct {
	deps Deps
	log  *slog.Logger

	mu sync.Mutex
	// watch holds contests seen before they finished; they get standings.
	watch map[int]bool
}

func New(deps Deps) *Reminders {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Reminders{deps: deps, log: deps.Logger.With("component", "codeforces"), watch: map[int]bool{}}
}

// Start polls now and then every poll_rate.
func (r *Reminders) Start(ctx context.Context) error {
	r.deps.Scheduler.Go("codeforces:initial", func(ctx context.Context) {
		if err := r.Poll(ctx); err != nil {
			r.log.Error("initial poll failed", "error", err)
		}
	})
	return r.deps.Scheduler.Every(pollKey, func() time.Duration {
		if d := r.deps.Config().PollRate.Std(); d > 0 {
			return d
		}
		return 24 * time.Hour
	}, func(ctx context.Context) {
		if err := r.Poll(ctx); err != nil {
			r.log.Error("poll failed", "error", err)
		}
	})
}

func (r *Reminders) Stop() {
	r.deps.Scheduler.Cancel(pollKey)
	r.deps.Scheduler.CancelPrefix(reminderPrefix)
}

// Poll downloads the contest list and replaces every pending reminder.
func (r *Reminders) Poll(ctx context.Context) error {
	r.log.Info("downloading contest list")
	contests, err := r.deps.API.Contests(ctx)
	if err != nil {
		return err
	}
	cfg := r.deps.Config()
	now := r.deps.Now()

	r.deps.Scheduler.CancelPrefix(reminderPrefix)
	for _, c := range contests {
		if c.Phase == "BEFORE" {
			when := c.Start().Add(-cfg.Advance.Std())
			if when.After(now) {
				contest := c
				r.log.Info("reminder set", "contest", c.ID, "at", when)
				if err := r.deps.Scheduler.At(reminderPrefix+strconv.Itoa(c.ID), when, func(ctx context.Context) {
					r.remind(ctx, contest)
				}); err != nil {
					return err
				}
			}
		}

		r.mu.Lock()
		watched := r.watch[c.ID]
		if c.Phase != "FINISHED" && !watched {
			r.log.Debug("watching contest", "contest", c.ID)
			r.watch[c.ID] = true
		}
		r.mu.Unlock()

		if c.Phase == "FINISHED" && watched {
			if err := r.Standings(ctx, c); err != nil {
				r.log.Warn("standings not posted yet", "contest", c.ID, "error", err)
				continue
			}
			r.mu.Lock()
			delete(r.watch, c.ID)
			r.mu.Unlock()
		}
	}
	return nil
}

// Reminder renders the announcement for c.
func Reminder(c Contest, role string) string {
	mention := ""
	if !c.Niche() && role != "" {
		mention = "<@&" + role + "> "
	}
	return fmt.Sprintf("%s[%s](%s) zaczyna się <t:%d:R>! 🔔", mention, c.Name, c.Link(), c.StartTimeSeconds)
}

func (r *Reminders) remind(ctx context.Context, c Contest) {
	cfg := r.deps.Config()
	if cfg.Channel == "" {
		return
	}
	r.log.Info("reminding about contest", "contest", c.ID)
	if err := r.deps.Poster.Send(ctx, cfg.Channel, Reminder(c, cfg.Role)); err != nil {
		r.log.Error("could not send reminder", "contest", c.ID, "error", err)
	}
}

// Standings posts the national ranking of a rated contest. Unrated contests
// are skipped without error.
func (r *Reminders) Standings(ctx context.Context, c Contest) error {
	cfg := r.deps.Config()
	if cfg.Channel == "" {
		return nil
	}
	changes, err := r.deps.API.RatingChanges(ctx, c.ID)
	if errors.Is(err, ErrUnavailable) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return errors.New("rating changes are not available yet")
	}

	var lines []string
	for i := 0; i < len(changes); i += userBatch {
		batch := changes[i:min(i+userBatch, len(changes))]
		handles := make([]string, len(batch))
		for j, ch := range batch {
			handles[j] = ch.Handle
		}
		users, err := r.deps.API.Users(ctx, handles)
		if err != nil {
			return err
		}
		if len(users) != len(batch) {
			return fmt.Errorf("user.info returned %d users for %d handles", len(users), len(batch))
		}
		for j, u := range users {
			if u.Country != country {
				continue
			}
			lines = append(lines, standingLine(len(lines)+1, batch[j], u.Handle))
		}
	}

	r.log.Info("sending national standings", "contest", c.ID, "entries", len(lines))
	header := fmt.Sprintf("Ranking zawodników z Polski w [%s](%s): 🏆 🇵🇱\n", c.Name, c.Link())
	if len(lines) == 0 {
		if err := r.deps.Poster.Send(ctx, cfg.Channel, header); err != nil {
			return err
		}
		return r.deps.Poster.Send(ctx, cfg.Channel, emptyGIF)
	}
	for _, msg := range Pack(append([]string{header}, lines...), maxMessage) {
		if err := r.deps.Poster.Send(ctx, cfg.Channel, msg); err != nil {
			return err
		}
	}
	return nil
}

// Handles come from user.info since rating changes may list stale ones.
func standingLine(n int, ch RatingChange, handle string) string {
	delta := ch.NewRating - ch.OldRating
	d := fmt.Sprintf("(%+d)", delta)
	if delta > 0 {
		d = "**" + d + "**"
	}
	return fmt.Sprintf("%d. #%d [%s](https://codeforces.com/profile/%s) %d → %d %s\n",
		n, ch.Rank, handle, handle, ch.OldRating, ch.NewRating, d)
}

// Pack joins lines into messages of at most limit bytes. A single longer
// line gets a message of its own.
func Pack(lines []string, limit int) []string {
	var (
		out []string
		b   strings.Builder
	)
	for _, l := range lines {
		if b.Len() > 0 && b.Len()+len(l) > limit {
			out = append(out, b.String())
			b.Reset()
		}
		b.WriteString(l)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
