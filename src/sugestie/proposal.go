package sugestie

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/oooz/oooz-bot/src/data/store"
)

// Store keys owned by this package.
const (
	keyProposals  = "sugestie"
	keyCleanUntil = "sugestie_clean_until"
)

// Choice is one of the three vote options.
type Choice string

const (
	For     Choice = "for"
	Abstain Choice = "abstain"
	Against Choice = "against"
)

// Choices lists the vote options in display order.
var Choices = []Choice{For, Abstain, Against}

// ParseChoice validates a choice coming from an adapter.
func ParseChoice(s string) (Choice, error) {
	for _, c := range Choices {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("sugestie: unknown choice %q", s)
}

// Phase is the lifecycle state derived from a proposal's fields.
type Phase int

const (
	Reviewing Phase = iota
	Voting
	Passed
	Rejected
	Annulled
	Done
)

var phaseNames = [...]string{"reviewing", "voting", "passed", "rejected", "annulled", "done"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Terminal reports whether no further automatic transition can happen.
func (p Phase) Terminal() bool { return p >= Passed }

// Image is an attachment carried over from the submission.
type Image struct {
	Data   []byte
	Format string
}

// Resolution records an administrative close: the done changes or the
// annulment reason.
type Resolution struct {
	Time time.Time
	Text string
}

// Proposal is a decoded copy of one stored proposal. Mutating it does not
// touch the store.
type Proposal struct {
	ID        string
	Channel   string
	Author    string
	Text      string
	Image     *Image
	Created   time.Time
	ReviewEnd time.Time
	VoteEnd   time.Time

	For     store.Set
	Abstain store.Set
	Against store.Set

	// Comments maps commenter id to text.
	Comments map[string]string

	Outcome  *bool
	Done     *Resolution
	Annulled *Resolution

	// VotingOpened is set once the voting_opened event went out.
	VotingOpened bool
}

// Phase derives the lifecycle state at now.
func (p *Proposal) Phase(now time.Time) Phase {
	switch {
	case p.Annulled != nil:
		return Annulled
	case p.Done != nil:
		return Done
	case p.Outcome != nil && *p.Outcome:
		return Passed
	case p.Outcome != nil:
		return Rejected
	case now.Before(p.ReviewEnd):
		return Reviewing
	default:
		return Voting
	}
}

// Ongoing: neither annulled nor decided.
func (p *Proposal) Ongoing() bool { return p.Annulled == nil && p.Outcome == nil }

// Pending: passed but not yet carried out.
func (p *Proposal) Pending() bool {
	return p.Annulled == nil && p.Outcome != nil && *p.Outcome && p.Done == nil
}

// Annullable: may still be annulled.
func (p *Proposal) Annullable() bool { return p.Annulled == nil && p.Done == nil }

// Votes returns the voter set for c.
func (p *Proposal) Votes(c Choice) store.Set {
	switch c {
	case For:
		return p.For
	case Abstain:
		return p.Abstain
	default:
		return p.Against
	}
}

// VoteOf returns the caller's current choice.
func (p *Proposal) VoteOf(user string) (Choice, bool) {
	for _, c := range Choices {
		if p.Votes(c).Has(user) {
			return c, true
		}
	}
	return "", false
}

// Lead is the absolute difference between for and against votes.
func (p *Proposal) Lead() int {
	d := p.For.Len() - p.Against.Len()
	if d < 0 {
		return -d
	}
	return d
}

func (p *Proposal) toMap() map[string]any {
	m := map[string]any{
		"id":         p.ID,
		"channel":    p.Channel,
		"author":     p.Author,
		"text":       p.Text,
		"created":    p.Created,
		"review_end": p.ReviewEnd,
		"vote_end":   p.VoteEnd,
		"for":        p.For,
		"abstain":    p.Abstain,
		"against":    p.Against,
	}
	comments := make(map[string]any, len(p.Comments))
	for k, v := range p.Comments {
		comments[k] = v
	}
	m["comments"] = comments
	if p.Image != nil {
		m["image"] = map[string]any{
			"data":   base64.StdEncoding.EncodeToString(p.Image.Data),
			"format": p.Image.Format,
		}
	}
	if p.Outcome != nil {
		m["outcome"] = *p.Outcome
	}
	if p.VotingOpened {
		m["voting_opened"] = true
	}
	if p.Done != nil {
		m["done"] = map[string]any{"time": p.Done.Time, "changes": p.Done.Text}
	}
	if p.Annulled != nil {
		m["annulled"] = map[string]any{"time": p.Annulled.Time, "reason": p.Annulled.Text}
	}
	return m
}

func proposalFromMap(m map[string]any) (*Proposal, error) {
	id, err := store.IDString(m["id"])
	if err != nil {
		return nil, fmt.Errorf("sugestie: proposal id: %w", err)
	}
	p := &Proposal{ID: id, Comments: map[string]string{}}
	if v, ok := m["channel"]; ok {
		if p.Channel, err = store.IDString(v); err != nil {
			return nil, fmt.Errorf("sugestie %s: channel: %w", id, err)
		}
	}
	if v, ok := m["author"]; ok && v != nil {
		if p.Author, err = store.IDString(v); err != nil {
			return nil, fmt.Errorf("sugestie %s: author: %w", id, err)
		}
	}
	p.Text, _ = store.AsString(m["text"])

	// Proposals created before the review phase existed only have vote_start.
	start, hasStart := store.AsTime(m["vote_start"])
	var ok bool
	if p.Created, ok = store.AsTime(m["created"]); !ok && hasStart {
		p.Created = start
	}
	if p.ReviewEnd, ok = store.AsTime(m["review_end"]); !ok {
		if !hasStart {
			return nil, fmt.Errorf("sugestie %s: missing review_end", id)
		}
		p.ReviewEnd = start
	}
	if p.VoteEnd, ok = store.AsTime(m["vote_end"]); !ok {
		return nil, fmt.Errorf("sugestie %s: missing vote_end", id)
	}

	for _, c := range Choices {
		set, _ := store.AsSet(m[string(c)])
		if set == nil {
			set = store.NewSet()
		}
		switch c {
		case For:
			p.For = set
		case Abstain:
			p.Abstain = set
		case Against:
			p.Against = set
		}
	}
	if comments, ok := store.AsMap(m["comments"]); ok {
		for k, v := range comments {
			p.Comments[k], _ = store.AsString(v)
		}
	}
	if img, ok := store.AsMap(m["image"]); ok {
		raw, _ := store.AsString(img["data"])
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("sugestie %s: image: %w", id, err)
		}
		format, _ := store.AsString(img["format"])
		p.Image = &Image{Data: data, Format: format}
	}
	if outcome, ok := store.AsBool(m["outcome"]); ok {
		p.Outcome = &outcome
	}
	p.VotingOpened, _ = store.AsBool(m["voting_opened"])
	p.Done = resolutionFromMap(m["done"], "changes")
	p.Annulled = resolutionFromMap(m["annulled"], "reason")
	return p, nil
}

func resolutionFromMap(v any, textKey string) *Resolution {
	m, ok := store.AsMap(v)
	if !ok {
		return nil
	}
	r := &Resolution{}
	r.Time, _ = store.AsTime(m["time"])
	r.Text, _ = store.AsString(m[textKey])
	return r
}

// clone returns a copy that shares nothing with p.
func (p *Proposal) clone() *Proposal {
	out := *p
	out.For = store.Clone(p.For).(store.Set)
	out.Abstain = store.Clone(p.Abstain).(store.Set)
	out.Against = store.Clone(p.Against).(store.Set)
	out.Comments = make(map[string]string, len(p.Comments))
	for k, v := range p.Comments {
		out.Comments[k] = v
	}
	if p.Outcome != nil {
		o := *p.Outcome
		out.Outcome = &o
	}
	return &out
}

// FromSnapshot decodes the proposals of a store snapshot, skipping entries
// that do not parse.
func FromSnapshot(tree map[string]any) []*Proposal {
	list, _ := store.AsList(tree[keyProposals])
	out := make([]*Proposal, 0, len(list))
	for _, raw := range list {
		m, ok := store.AsMap(raw)
		if !ok {
			continue
		}
		if p, err := proposalFromMap(m); err == nil {
			out = append(out, p)
		}
	}
	return out
}
