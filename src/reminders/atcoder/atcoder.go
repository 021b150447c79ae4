// Package atcoder announces upcoming AtCoder contests. AtCoder has no public
// API, so the schedule is read from the contests page.
package atcoder

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/scheduler"
	"github.com/oooz/oooz-bot/src/webclient"
)

const (
	pollKey        = "atcoder:poll"
	reminderPrefix = "atcoder:contest:"

	timeLayout = "2006-01-02 15:04:05-0700"
	pageLimit  = 4 << 20
)

// Contest is one row of the upcoming contests table.
type Contest struct {
	ID    string
	Title string
	Start time.Time
}

func (c Contest) Link() string { return "https://atcoder.jp/contests/" + c.ID }

// Niche reports whether the contest is outside the ABC, ARC and AGC series.
func (c Contest) Niche() bool {
	for _, s := range []string{"Beginner", "Regular", "Grand"} {
		if strings.Contains(c.Title, s) {
			return false
		}
	}
	return true
}

// Schedule lists upcoming contests.
type Schedule interface {
	Upcoming(ctx context.Context) ([]Contest, error)
}

// Client scrapes the contests page.
type Client struct {
	http     *http.Client
	endpoint string
	attempts int
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		http:     webclient.NewDefault(timeout),
		endpoint: strings.TrimRight(endpoint, "/"),
		attempts: 3,
	}
}

func (c *Client) Upcoming(ctx context.Context) ([]Contest, error) {
	body, _, err := webclient.GetBytes(ctx, c.http, c.endpoint+"/contests/", c.attempts, pageLimit)
	if err != nil {
		return nil, fmt.Errorf("atcoder: %w", err)
	}
	return ParseUpcoming(body)
}

// ParseUpcoming reads the #contest-table-upcoming table of the contests page.
func ParseUpcoming(page []byte) ([]Contest, error) {
	doc, err := webclient.ParseHTML(page)
	if err != nil {
		return nil, fmt.Errorf("atcoder: parse: %w", err)
	}
	table := webclient.Find(doc, webclient.ID("contest-table-upcoming"))
	if table == nil {
		return nil, fmt.Errorf("atcoder: upcoming contests table not found")
	}
	var out []Contest
	for _, row := range webclient.FindAll(webclient.Find(table, webclient.Tag("tbody")), webclient.Tag("tr")) {
		cells := webclient.FindAll(row, webclient.Tag("td"))
		if len(cells) < 2 {
			continue
		}
		link := webclient.Find(cells[1], webclient.Tag("a"))
		id, ok := strings.CutPrefix(webclient.Attr(link, "href"), "/contests/")
		if !ok {
			continue
		}
		start, err := time.Parse(timeLayout, strings.TrimSpace(webclient.Text(cells[0])))
		if err != nil {
			return nil, fmt.Errorf("atcoder: contest %s: %w", id, err)
		}
		out = append(out, Contest{ID: id, Title: strings.TrimSpace(webclient.Text(link)), Start: start})
	}
	return out, nil
}

// Poster sends plain messages without link previews.
type Poster interface {
	Send(ctx context.Context, channel, content string) error
}

type Deps struct {
	Schedule  Schedule
	Scheduler *scheduler.Scheduler
	Poster    Poster
	Config    func() config.AtCoder
	Now       func() time.Time
	Logger    *slog.Logger
}

// Reminders keeps one reminder per upcoming contest.
type Reminders struct {
	deps Deps
	log  *slog.Logger
}

func New(deps Deps) *Reminders {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Reminders{deps: deps, log: deps.Logger.With("component", "atcoder")}
}

// Start polls now and then every poll_rate.
func (r *Reminders) Start(ctx context.Context) error {
	r.deps.Scheduler.Go("atcoder:initial", func(ctx context.Context) {
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

// Poll downloads the schedule and replaces every pending reminder.
func (r *Reminders) Poll(ctx context.Context) error {
	r.log.Info("downloading contest schedule")
	contests, err := r.deps.Schedule.Upcoming(ctx)
	if err != nil {
		return err
	}
	advance := r.deps.Config().Advance.Std()
	now := r.deps.Now()

	r.deps.Scheduler.CancelPrefix(reminderPrefix)
	for _, c := range contests {
		when := c.Start.Add(-advance)
		if !when.After(now) {
			continue
		}
		contest := c
		r.log.Info("reminder set", "contest", c.ID, "at", when)
		if err := r.deps.Scheduler.At(reminderPrefix+c.ID, when, func(ctx context.Context) {
			r.remind(ctx, contest)
		}); err != nil {
			return err
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
	return fmt.Sprintf("%s[%s](%s) zaczyna się <t:%d:R>! 🔔", mention, c.Title, c.Link(), c.Start.Unix())
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
