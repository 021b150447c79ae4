package sugestie

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oooz/oooz-bot/src/access"
	"github.com/oooz/oooz-bot/src/data/store"
	"github.com/oooz/oooz-bot/src/events"
)

// MaxCommentLength matches the longest text a comment modal accepts.
const MaxCommentLength = 1000

// Submission is a raw message picked up in the proposals channel.
type Submission struct {
	Channel string
	Author  string
	Text    string
	Image   *Image
	Created time.Time
}

// Submit posts the display message for sub and stores the new proposal under
// that message's id.
func (e *Engine) Submit(ctx context.Context, sub Submission) (*Proposal, error) {
	if strings.TrimSpace(sub.Text) == "" && sub.Image == nil {
		return nil, access.Deny(access.EmptyText)
	}
	cfg := e.deps.Config()
	created := sub.Created
	if created.IsZero() {
		created = e.now()
	}
	p := &Proposal{
		Channel:   sub.Channel,
		Author:    sub.Author,
		Text:      sub.Text,
		Image:     sub.Image,
		Created:   created,
		ReviewEnd: created.Add(cfg.ReviewLength.Std()),
		For:       store.NewSet(),
		Abstain:   store.NewSet(),
		Against:   store.NewSet(),
		Comments:  map[string]string{},
	}
	p.VoteEnd = p.ReviewEnd.Add(cfg.VoteLength.Std())

	id, err := e.deps.Display.PostProposal(ctx, sub.Channel, Render(p, e.now()))
	if err != nil {
		return nil, err
	}
	p.ID = id

	err = e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		tx.Set(keyProposals, append(tx.List(keyProposals), p.toMap()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("proposal created", "id", id, "author", sub.Author, "review_end", p.ReviewEnd, "vote_end", p.VoteEnd)
	e.deps.Events.Emit(ctx, events.SugestiaCreated, id, map[string]any{"author": sub.Author})
	e.schedule(p)
	return p.clone(), nil
}

// VoteResult tells the adapter how to word its reply.
type VoteResult struct {
	Choice   Choice
	Previous Choice
	Changed  bool
}

// Vote records actor's choice, replacing any earlier vote.
func (e *Engine) Vote(ctx context.Context, id string, actor access.Actor, choice Choice) (VoteResult, error) {
	res := VoteResult{Choice: choice}
	if _, err := ParseChoice(string(choice)); err != nil {
		return res, err
	}
	cfg := e.deps.Config()
	err := e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		i, p, err := find(tx, id)
		if err != nil {
			return err
		}
		now := e.now()
		if err := actor.RequireRole(cfg.VoteRole); err != nil {
			return err
		}
		if !p.Ongoing() || !now.Before(p.VoteEnd) {
			return access.Deny(access.VotingClosed)
		}
		if now.Before(p.ReviewEnd) {
			return access.Deny(access.VotingNotOpen)
		}
		if p.Votes(choice).Has(actor.ID) {
			return access.Deny(access.AlreadyVoted, string(choice))
		}
		for _, c := range Choices {
			if p.Votes(c).Remove(actor.ID) {
				res.Previous, res.Changed = c, true
			}
		}
		p.Votes(choice).Add(actor.ID)
		writeBack(tx, i, p)
		return nil
	})
	if err != nil {
		return res, err
	}
	e.deps.Metrics.VoteCast(string(choice))
	if res.Changed {
		e.log.Info("vote changed", "id", id, "user", actor.ID, "from", res.Previous, "to", choice)
	} else {
		e.log.Info("vote cast", "id", id, "user", actor.ID, "choice", choice)
	}
	e.refresh(ctx, id)
	return res, nil
}

// Comment stores or replaces actor's review comment.
func (e *Engine) Comment(ctx context.Context, id string, actor access.Actor, text string) (replaced bool, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, access.Deny(access.EmptyText)
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return false, access.Deny(access.TooLong)
	}
	err = e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		i, p, err := find(tx, id)
		if err != nil {
			return err
		}
		if err := e.reviewOpen(p); err != nil {
			return err
		}
		_, replaced = p.Comments[actor.ID]
		p.Comments[actor.ID] = text
		writeBack(tx, i, p)
		return nil
	})
	if err != nil {
		return false, err
	}
	e.log.Info("comment saved", "id", id, "user", actor.ID, "replaced", replaced)
	e.refresh(ctx, id)
	return replaced, nil
}

// DeleteComment removes actor's review comment.
func (e *Engine) DeleteComment(ctx context.Context, id string, actor access.Actor) error {
	err := e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		i, p, err := find(tx, id)
		if err != nil {
			return err
		}
		if err := e.reviewOpen(p); err != nil {
			return err
		}
		if _, ok := p.Comments[actor.ID]; !ok {
			return access.Deny(access.NoComment)
		}
		delete(p.Comments, actor.ID)
		writeBack(tx, i, p)
		return nil
	})
	if err != nil {
		return err
	}
	e.log.Info("comment deleted", "id", id, "user", actor.ID)
	e.refresh(ctx, id)
	return nil
}

func (e *Engine) reviewOpen(p *Proposal) error {
	if !p.Ongoing() || !e.now().Before(p.ReviewEnd) {
		return access.Deny(access.ReviewClosed)
	}
	return nil
}

// Annul voids a proposal that is not done yet.
func (e *Engine) Annul(ctx context.Context, id string, actor access.Actor, reason string) error {
	reason = strings.TrimSpace(reason)
	if err := actor.RequireStaff(e.deps.StaffRoles()); err != nil {
		return err
	}
	if reason == "" {
		return access.Deny(access.EmptyText)
	}
	err := e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		i, p, err := find(tx, id)
		if err != nil {
			return err
		}
		switch {
		case p.Annulled != nil:
			return access.Deny(access.AlreadyAnnulled)
		case p.Done != nil:
			return access.Deny(access.AlreadyDone)
		}
		p.Annulled = &Resolution{Time: e.now(), Text: reason}
		writeBack(tx, i, p)
		return nil
	})
	if err != nil {
		return err
	}
	e.log.Info("proposal annulled", "id", id, "by", actor.ID, "reason", reason)
	e.deps.Events.Emit(ctx, events.SugestiaAnnulled, id, map[string]any{"reason": reason, "by": actor.ID})
	e.refresh(ctx, id)
	return nil
}

// MarkDone closes a passed proposal with a description of the changes made.
func (e *Engine) MarkDone(ctx context.Context, id string, actor access.Actor, changes string) error {
	changes = strings.TrimSpace(changes)
	if err := actor.RequireStaff(e.deps.StaffRoles()); err != nil {
		return err
	}
	if changes == "" {
		return access.Deny(access.EmptyText)
	}
	err := e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		i, p, err := find(tx, id)
		if err != nil {
			return err
		}
		switch {
		case p.Annulled != nil:
			return access.Deny(access.AlreadyAnnulled)
		case p.Done != nil:
			return access.Deny(access.AlreadyDone)
		case p.Outcome == nil || !*p.Outcome:
			return access.Deny(access.NotPassed)
		}
		p.Done = &Resolution{Time: e.now(), Text: changes}
		writeBack(tx, i, p)
		return nil
	})
	if err != nil {
		return err
	}
	e.log.Info("proposal done", "id", id, "by", actor.ID)
	e.deps.Events.Emit(ctx, events.SugestiaDone, id, map[string]any{"changes": changes, "by": actor.ID})
	e.refresh(ctx, id)
	return nil
}

// Erase deletes a proposal and its message. The author may erase their own
// proposal until the vote is decided; staff may erase anything not done.
func (e *Engine) Erase(ctx context.Context, id string, actor access.Actor) error {
	staff := actor.IsStaff(e.deps.StaffRoles())
	var erased *Proposal
	err := e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		i, p, err := find(tx, id)
		if err != nil {
			return err
		}
		if err := eraseDenial(p, actor, staff); err != nil {
			return err
		}
		list := tx.List(keyProposals)
		tx.Set(keyProposals, append(list[:i:i], list[i+1:]...))
		erased = p.clone()
		return nil
	})
	if err != nil {
		return err
	}
	unlock := e.lockProposal(id)
	e.deps.Scheduler.Cancel(timerKey(id))
	err = e.deps.Display.DeleteProposal(ctx, erased.Channel, id)
	unlock()
	e.reconciling.Delete(id)

	e.log.Info("proposal erased", "id", id, "by", actor.ID)
	e.deps.Events.Emit(ctx, events.SugestiaErased, id, map[string]any{"by": actor.ID})
	if err != nil && !errors.Is(err, ErrMessageMissing) {
		return err
	}
	return nil
}

// ErasableBy selects the proposals Erase would accept from actor.
func (e *Engine) ErasableBy(actor access.Actor) Filter {
	staff := actor.IsStaff(e.deps.StaffRoles())
	return func(p *Proposal) bool { return eraseDenial(p, actor, staff) == nil }
}

func eraseDenial(p *Proposal, actor access.Actor, staff bool) error {
	switch {
	case p.Done != nil:
		return access.Deny(access.AlreadyDone)
	case staff:
		return nil
	case p.Author != actor.ID:
		return access.Deny(access.NotAuthor)
	case p.Outcome != nil:
		return access.Deny(access.OutcomeDecided)
	}
	return nil
}

// CleanCursor returns the time after which channel messages have not been
// ingested yet, initialising it to now on first use.
func (e *Engine) CleanCursor(ctx context.Context) time.Time {
	var cursor time.Time
	_ = e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		var ok bool
		if cursor, ok = tx.Time(keyCleanUntil); !ok {
			e.log.Info("proposals channel has never been cleaned")
			cursor = e.now()
			tx.Set(keyCleanUntil, cursor)
		}
		return nil
	})
	return cursor
}

// AdvanceCleanCursor records that messages up to t were ingested.
func (e *Engine) AdvanceCleanCursor(ctx context.Context, t time.Time) error {
	return e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		if cur, ok := tx.Time(keyCleanUntil); !ok || t.After(cur) {
			tx.Set(keyCleanUntil, t)
		}
		return nil
	})
}
