// Package rules keeps the versioned server regulations. Each version may
// reference the proposals that motivated it.
package rules

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oooz/oooz-bot/src/access"
	"github.com/oooz/oooz-bot/src/data/store"
)

const (
	keyRules = "rules"

	// MaxProposals is the number of proposal pickers a single message fits.
	MaxProposals = 4
	// MaxFragment is the longest paragraph that fits one chat message.
	MaxFragment = 2000
	// blank stands in for an empty line, which chat messages cannot start with.
	blank = "_ _"
)

var ErrNoRules = errors.New("rules: no rules set")

// Version is one revision of the rules.
type Version struct {
	Time      time.Time
	Text      string
	Proposals []string
}

type Deps struct {
	Store *store.Store
	// Pending lists proposals that passed and are not done yet.
	Pending    func(ctx context.Context) []string
	StaffRoles func() []string
	Now        func() time.Time
	Logger     *slog.Logger
}

type Rules struct {
	deps Deps
	log  *slog.Logger
}

func New(deps Deps) *Rules {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.StaffRoles == nil {
		deps.StaffRoles = func() []string { return nil }
	}
	if deps.Pending == nil {
		deps.Pending = func(context.Context) []string { return nil }
	}
	return &Rules{deps: deps, log: deps.Logger.With("component", "rules")}
}

// Normalize trims the text and the end of every line.
func Normalize(text string) string {
	lines := strings.Split(strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n")), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n")
}

// Fragments splits text into the messages posted to the rules channel. A new
// fragment starts at a blank line or heading that follows non-blank text.
func Fragments(text string) []string {
	var (
		out  []string
		frag []string
	)
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			line = blank
		}
		if (line == blank || strings.HasPrefix(line, "#")) && len(frag) > 0 && frag[len(frag)-1] != blank {
			out = append(out, strings.Join(frag, "\n"))
			frag = nil
		}
		frag = append(frag, line)
	}
	if len(frag) > 0 {
		out = append(out, strings.Join(frag, "\n"))
	}
	return out
}

// Set records a new version of the rules.
func (r *Rules) Set(ctx context.Context, actor access.Actor, text string, proposals []string) (Version, error) {
	if err := actor.RequireStaff(r.deps.StaffRoles()); err != nil {
		return Version{}, err
	}
	text = Normalize(text)
	if text == "" {
		return Version{}, access.Deny(access.EmptyText)
	}
	for _, f := range Fragments(text) {
		if utf8.RuneCountInString(f) > MaxFragment {
			return Version{}, access.Deny(access.TooLong, "paragraph")
		}
	}
	if len(proposals) > MaxProposals {
		return Version{}, access.Deny(access.TooManyProposals)
	}
	pending := r.deps.Pending(ctx)
	seen := map[string]bool{}
	for _, id := range proposals {
		if seen[id] || !slices.Contains(pending, id) {
			return Version{}, access.Deny(access.NotEligible, id)
		}
		seen[id] = true
	}

	v := Version{Time: r.deps.Now(), Text: text, Proposals: slices.Clone(proposals)}
	err := r.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		refs := make([]any, len(v.Proposals))
		for i, id := range v.Proposals {
			refs[i] = id
		}
		tx.Set(keyRules, append(tx.List(keyRules), map[string]any{
			"time":     v.Time,
			"text":     v.Text,
			"sugestie": refs,
		}))
		return nil
	})
	if err != nil {
		return Version{}, err
	}
	r.log.Info("new rules set", "by", actor.ID, "proposals", v.Proposals)
	return v, nil
}

// History returns every version, oldest first.
func (r *Rules) History(ctx context.Context) []Version {
	var out []Version
	_ = r.deps.Store.View(ctx, func(_ context.Context, tx *store.Tx) error {
		for _, raw := range tx.List(keyRules) {
			if v, ok := decode(raw); ok {
				out = append(out, v)
			}
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b Version) int { return a.Time.Compare(b.Time) })
	return out
}

// Current returns the newest version.
func (r *Rules) Current(ctx context.Context) (Version, error) {
	h := r.History(ctx)
	if len(h) == 0 {
		return Version{}, ErrNoRules
	}
	return h[len(h)-1], nil
}

// At returns the version set at t.
func (r *Rules) At(ctx context.Context, t time.Time) (Version, error) {
	h := r.History(ctx)
	if len(h) == 0 {
		return Version{}, ErrNoRules
	}
	for _, v := range h {
		if v.Time.Equal(t) {
			return v, nil
		}
	}
	return Version{}, access.Deny(access.NotFound)
}

func decode(raw any) (Version, bool) {
	m, ok := store.AsMap(raw)
	if !ok {
		return Version{}, false
	}
	var v Version
	if v.Time, ok = store.AsTime(m["time"]); !ok {
		return Version{}, false
	}
	v.Text, _ = store.AsString(m["text"])
	refs, _ := store.AsList(m["sugestie"])
	for _, ref := range refs {
		if id, err := store.IDString(ref); err == nil {
			v.Proposals = append(v.Proposals, id)
		}
	}
	return v, true
}
