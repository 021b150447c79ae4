// Package sugestie runs the community proposal workflow: a review phase for
// comments, a timed vote, and administrative annul / done / erase actions.
// Every mutation re-reads the proposal by id inside a store transaction and
// the displayed message is reconciled afterwards, outside the store lock.
package sugestie

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/data/store"
	"github.com/oooz/oooz-bot/src/events"
	"github.com/oooz/oooz-bot/src/metrics"
	"github.com/oooz/oooz-bot/src/scheduler"
)

var (
	// ErrNotFound is returned by lookups for an unknown id.
	ErrNotFound = errors.New("sugestie: proposal not found")
	// ErrMessageMissing is returned by a Display whose message was deleted
	// externally. The engine logs it and carries on.
	ErrMessageMissing = errors.New("sugestie: display message missing")
)

const autoupdateKey = "sugestie:autoupdate"

// Display draws proposals on the chat platform.
type Display interface {
	PostProposal(ctx context.Context, channel string, v View) (messageID string, err error)
	EditProposal(ctx context.Context, channel, messageID string, v View) error
	DeleteProposal(ctx context.Context, channel, messageID string) error
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store      *store.Store
	Scheduler  *scheduler.Scheduler
	Display    Display
	Events     *events.Emitter
	Metrics    *metrics.Metrics
	Config     func() config.Sugestie
	StaffRoles func() []string
	Now        func() time.Time
	Logger     *slog.Logger
}

// Engine owns the proposal lifecycle.
type Engine struct {
	deps Deps
	log  *slog.Logger

	// reconciling serializes update+edit per proposal so that a later state
	// is never overwritten on screen by an earlier one.
	reconciling sync.Map
}

// New returns an engine. Store, Scheduler, Display and Config are required.
func New(deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.StaffRoles == nil {
		deps.StaffRoles = func() []string { return nil }
	}
	return &Engine{deps: deps, log: deps.Logger.With("component", "sugestie")}
}

func (e *Engine) now() time.Time { return e.deps.Now() }

func timerKey(id string) string { return "sugestie:" + id }

func (e *Engine) lockProposal(id string) func() {
	v, _ := e.reconciling.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// find locates the proposal id in the list. The returned *Proposal shares
// its vote sets with the tree.
func find(tx *store.Tx, id string) (int, *Proposal, error) {
	for i, raw := range tx.List(keyProposals) {
		m, ok := store.AsMap(raw)
		if !ok {
			continue
		}
		rawID, err := store.IDString(m["id"])
		if err != nil || rawID != id {
			continue
		}
		p, err := proposalFromMap(m)
		if err != nil {
			return -1, nil, err
		}
		return i, p, nil
	}
	return -1, nil, ErrNotFound
}

func writeBack(tx *store.Tx, i int, p *Proposal) {
	tx.List(keyProposals)[i] = p.toMap()
}

// Get returns a copy of the proposal.
func (e *Engine) Get(ctx context.Context, id string) (*Proposal, error) {
	var out *Proposal
	err := e.deps.Store.View(ctx, func(_ context.Context, tx *store.Tx) error {
		_, p, err := find(tx, id)
		if err != nil {
			return err
		}
		out = p.clone()
		return nil
	})
	return out, err
}

// Filter selects proposals in List.
type Filter func(*Proposal) bool

var (
	All        Filter = func(*Proposal) bool { return true }
	Ongoing    Filter = (*Proposal).Ongoing
	Pending    Filter = (*Proposal).Pending
	Annullable Filter = (*Proposal).Annullable
)

// List returns copies of the proposals matching filter in submission order.
// Entries that fail to decode are logged and skipped.
func (e *Engine) List(ctx context.Context, filter Filter) []*Proposal {
	if filter == nil {
		filter = All
	}
	var out []*Proposal
	_ = e.deps.Store.View(ctx, func(_ context.Context, tx *store.Tx) error {
		for _, raw := range tx.List(keyProposals) {
			m, ok := store.AsMap(raw)
			if !ok {
				continue
			}
			p, err := proposalFromMap(m)
			if err != nil {
				e.log.Warn("skipping unreadable proposal", "error", err)
				continue
			}
			if filter(p) {
				out = append(out, p.clone())
			}
		}
		return nil
	})
	return out
}

// Update applies the timed rules to proposal id (deciding lead, outcome at
// vote_end), reconciles its message and schedules the next transition.
func (e *Engine) Update(ctx context.Context, id string) error {
	unlock := e.lockProposal(id)
	defer unlock()

	var (
		snapshot *Proposal
		opened   bool
		decided  bool
	)
	err := e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		i, p, err := find(tx, id)
		if err != nil {
			return err
		}
		now := e.now()
		if p.Ongoing() {
			// Also catches a review phase that ended while the bot was down.
			if !p.VotingOpened && !now.Before(p.ReviewEnd) {
				p.VotingOpened, opened = true, true
			}
			cfg := e.deps.Config()
			if lead := cfg.DecidingLead; lead != nil && p.Lead() >= *lead && now.Before(p.VoteEnd) {
				e.log.Info("deciding lead reached, closing vote", "id", id, "for", p.For.Len(), "against", p.Against.Len())
				p.VoteEnd = now
			}
			if !now.Before(p.VoteEnd) {
				outcome := p.For.Len() > p.Against.Len()
				p.Outcome = &outcome
				decided = true
			}
			writeBack(tx, i, p)
		}
		snapshot = p.clone()
		return nil
	})
	if err != nil {
		return err
	}

	if opened {
		e.log.Info("voting opened", "id", id)
		e.deps.Events.Emit(ctx, events.SugestiaVotingOpened, id, nil)
	}
	if decided {
		passed := *snapshot.Outcome
		e.deps.Metrics.Outcome(passed)
		kind := events.SugestiaRejected
		if passed {
			kind = events.SugestiaPassed
		}
		e.log.Info("vote finished", "id", id, "passed", passed, "for", snapshot.For.Len(), "against", snapshot.Against.Len())
		e.deps.Events.Emit(ctx, kind, id, map[string]any{
			"for":     snapshot.For.Len(),
			"abstain": snapshot.Abstain.Len(),
			"against": snapshot.Against.Len(),
		})
	}

	e.schedule(snapshot)
	return e.reconcile(ctx, snapshot)
}

// refresh runs Update after a mutation that is already committed. A failed
// message edit does not undo the mutation, so it is only logged.
func (e *Engine) refresh(ctx context.Context, id string) {
	if err := e.Update(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		e.log.Warn("refreshing proposal failed", "id", id, "error", err)
	}
}

func (e *Engine) reconcile(ctx context.Context, p *Proposal) error {
	err := e.deps.Display.EditProposal(ctx, p.Channel, p.ID, Render(p, e.now()))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMessageMissing):
		e.log.Warn("proposal message is missing", "id", p.ID, "channel", p.Channel)
		return nil
	default:
		return fmt.Errorf("sugestie %s: reconcile: %w", p.ID, err)
	}
}

// schedule arms the timer for p's next automatic transition, replacing any
// earlier one.
func (e *Engine) schedule(p *Proposal) {
	key := timerKey(p.ID)
	if !p.Ongoing() {
		e.deps.Scheduler.Cancel(key)
		return
	}
	when := p.VoteEnd
	if e.now().Before(p.ReviewEnd) {
		when = p.ReviewEnd
	}
	id := p.ID
	err := e.deps.Scheduler.At(key, when, func(ctx context.Context) {
		if err := e.Update(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			e.log.Error("scheduled update failed", "id", id, "error", err)
		}
	})
	if err != nil {
		e.log.Warn("could not schedule transition", "id", id, "error", err)
	}
}

// UpdateAll updates every proposal. It is used at startup to recover timers
// and redraw messages after downtime.
func (e *Engine) UpdateAll(ctx context.Context) error {
	return e.updateMatching(ctx, All)
}

// UpdateOngoing updates every proposal that is still undecided.
func (e *Engine) UpdateOngoing(ctx context.Context) error {
	return e.updateMatching(ctx, Ongoing)
}

func (e *Engine) updateMatching(ctx context.Context, filter Filter) error {
	var errs []error
	for _, p := range e.List(ctx, filter) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Update(ctx, p.ID); err != nil && !errors.Is(err, ErrNotFound) {
			e.log.Error("update failed", "id", p.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start recovers every stored proposal and begins the periodic refresh.
func (e *Engine) Start(ctx context.Context) error {
	e.log.Info("recovering proposals")
	if err := e.UpdateAll(ctx); err != nil {
		e.log.Warn("recovery finished with errors", "error", err)
	}
	return e.deps.Scheduler.Every(autoupdateKey, func() time.Duration {
		if d := e.deps.Config().Autoupdate.Std(); d > 0 {
			return d
		}
		return time.Hour
	}, func(ctx context.Context) {
		e.log.Debug("periodic update of ongoing proposals")
		if err := e.UpdateOngoing(ctx); err != nil {
			e.log.Warn("periodic update finished with errors", "error", err)
		}
	})
}

// Stop cancels the periodic refresh and all proposal timers.
func (e *Engine) Stop() {
	e.deps.Scheduler.Cancel(autoupdateKey)
	e.deps.Scheduler.CancelPrefix("sugestie:")
}
