// Package warns keeps disciplinary warnings, ages them out and maps the
// number of active warnings of a linked account group to a warn role.
package warns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/oooz/oooz-bot/src/access"
	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/data/linked"
	"github.com/oooz/oooz-bot/src/data/store"
	"github.com/oooz/oooz-bot/src/events"
	"github.com/oooz/oooz-bot/src/metrics"
	"github.com/oooz/oooz-bot/src/scheduler"
)

const (
	keyWarns     = "warns"
	recomputeKey = "warns:recompute"
)

var ErrNotFound = errors.New("warns: warning not found")

// Roles applies warn roles on the chat platform.
type Roles interface {
	// SetWarnRole gives user role (none when empty) and removes every other
	// role in all.
	SetWarnRole(ctx context.Context, user, role string, all []string) error
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store     *store.Store
	Scheduler *scheduler.Scheduler
	Roles     Roles
	Events    *events.Emitter
	Metrics   *metrics.Metrics
	Config    func() *config.Config
	Now       func() time.Time
	Logger    *slog.Logger
}

// Engine owns the warns and linked_users store keys.
type Engine struct {
	deps Deps
	log  *slog.Logger
}

func New(deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{deps: deps, log: deps.Logger.With("component", "warns")}
}

func decodeWarning(user string, v any) (*Warning, bool) {
	m, ok := store.AsMap(v)
	if !ok {
		return nil, false
	}
	w := &Warning{User: user}
	if w.Time, ok = store.AsTime(m["time"]); !ok {
		return nil, false
	}
	w.Reason, _ = store.AsString(m["reason"])
	if t, ok := store.AsTime(m["expired"]); ok {
		w.Expired = &t
	}
	return w, true
}

func (w *Warning) toMap() map[string]any {
	m := map[string]any{"time": w.Time, "reason": w.Reason, "expired": nil}
	if w.Expired != nil {
		m["expired"] = *w.Expired
	}
	return m
}

func readUser(tx *store.Tx, user string) []*Warning {
	list, _ := store.AsList(tx.Map(keyWarns)[user])
	out := make([]*Warning, 0, len(list))
	for _, raw := range list {
		if w, ok := decodeWarning(user, raw); ok {
			out = append(out, w)
		}
	}
	return out
}

func writeUser(tx *store.Tx, user string, warnings []*Warning) {
	sort.SliceStable(warnings, func(i, j int) bool { return warnings[i].Time.Before(warnings[j].Time) })
	if len(warnings) == 0 {
		delete(tx.Map(keyWarns), user)
		return
	}
	list := make([]any, len(warnings))
	for i, w := range warnings {
		list[i] = w.toMap()
	}
	tx.Map(keyWarns)[user] = list
}

func cloneAll(ws []*Warning) []Warning {
	out := make([]Warning, len(ws))
	for i, w := range ws {
		out[i] = *w
		if w.Expired != nil {
			t := *w.Expired
			out[i].Expired = &t
		}
	}
	return out
}

// Warnings returns user's own warnings in issue order.
func (e *Engine) Warnings(ctx context.Context, user string) []Warning {
	var out []Warning
	_ = e.deps.Store.View(ctx, func(_ context.Context, tx *store.Tx) error {
		out = cloneAll(readUser(tx, user))
		return nil
	})
	return out
}

// Group returns the accounts linked with user, including user.
func (e *Engine) Group(ctx context.Context, user string) []string {
	var out []string
	_ = e.deps.Store.View(ctx, func(_ context.Context, tx *store.Tx) error {
		out = linked.Group(tx, user)
		return nil
	})
	return out
}

// ActiveCount counts active warnings pooled over user's group.
func (e *Engine) ActiveCount(ctx context.Context, user string) int {
	n := 0
	_ = e.deps.Store.View(ctx, func(_ context.Context, tx *store.Tx) error {
		for _, member := range linked.Group(tx, user) {
			n += CountActive(readUser(tx, member))
		}
		return nil
	})
	return n
}

// recomputeLocked runs the expiry walk over user's group and writes back the
// changes. It returns the group members and the newly expired warnings.
func (e *Engine) recomputeLocked(tx *store.Tx, user string) ([]string, []Warning) {
	group := linked.Group(tx, user)
	perUser := make(map[string][]*Warning, len(group))
	var pooled []*Warning
	for _, member := range group {
		ws := readUser(tx, member)
		perUser[member] = ws
		pooled = append(pooled, ws...)
	}
	changed := ComputeExpiry(pooled, e.deps.Now(), e.deps.Config().WarnExpiry.Std())
	if len(changed) == 0 {
		return group, nil
	}
	touched := map[string]bool{}
	for _, w := range changed {
		touched[w.User] = true
	}
	for member := range touched {
		writeUser(tx, member, perUser[member])
	}
	return group, cloneAll(changed)
}

// Recompute ages out user's group and resyncs the group's roles.
func (e *Engine) Recompute(ctx context.Context, user string) error {
	var (
		group   []string
		expired []Warning
	)
	err := e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		group, expired = e.recomputeLocked(tx, user)
		return nil
	})
	if err != nil {
		return err
	}
	e.reportExpired(ctx, expired)
	return e.syncRoles(ctx, group)
}

func (e *Engine) reportExpired(ctx context.Context, expired []Warning) {
	e.deps.Metrics.WarnsExpired(len(expired))
	for _, w := range expired {
		e.log.Info("warning expired", "user", w.User, "issued", w.Time, "expired", *w.Expired)
		e.deps.Events.Emit(ctx, events.WarnExpired, w.User, map[string]any{
			"issued":  w.Time,
			"expired": *w.Expired,
		})
	}
}

// RecomputeAll ages out every stored warning.
func (e *Engine) RecomputeAll(ctx context.Context) error {
	var users []string
	_ = e.deps.Store.View(ctx, func(_ context.Context, tx *store.Tx) error {
		users = store.SortedKeys(tx.Map(keyWarns))
		return nil
	})
	done := map[string]bool{}
	var errs []error
	for _, user := range users {
		if done[user] {
			continue
		}
		for _, member := range e.Group(ctx, user) {
			done[member] = true
		}
		if err := e.Recompute(ctx, user); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", user, err))
		}
	}
	return errors.Join(errs...)
}

// UpdateRoles resyncs the warn role of every user with warnings.
func (e *Engine) UpdateRoles(ctx context.Context) error {
	var users []string
	_ = e.deps.Store.View(ctx, func(_ context.Context, tx *store.Tx) error {
		users = store.SortedKeys(tx.Map(keyWarns))
		return nil
	})
	return e.syncRoles(ctx, users)
}

func (e *Engine) syncRoles(ctx context.Context, users []string) error {
	if e.deps.Roles == nil {
		return nil
	}
	roles := e.deps.Config().WarnRoles
	if len(roles) == 0 {
		return nil
	}
	var errs []error
	for _, user := range users {
		role, _ := Tier(e.ActiveCount(ctx, user), roles)
		if err := e.deps.Roles.SetWarnRole(ctx, user, role, roles); err != nil {
			e.log.Warn("could not update warn role", "user", user, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Add warns user and returns the new warning and the group's active count.
func (e *Engine) Add(ctx context.Context, actor access.Actor, user, reason string) (Warning, int, error) {
	cfg := e.deps.Config()
	if err := actor.RequireStaff(cfg.StaffRoles); err != nil {
		return Warning{}, 0, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Warning{}, 0, access.Deny(access.EmptyText)
	}
	w := &Warning{User: user, Time: e.deps.Now(), Reason: reason}
	var (
		group   []string
		expired []Warning
		count   int
	)
	err := e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		writeUser(tx, user, append(readUser(tx, user), w))
		group, expired = e.recomputeLocked(tx, user)
		for _, member := range group {
			count += CountActive(readUser(tx, member))
		}
		return nil
	})
	if err != nil {
		return Warning{}, 0, err
	}
	e.log.Info("warning added", "user", user, "by", actor.ID, "reason", reason, "active", count)
	e.deps.Events.Emit(ctx, events.WarnAdded, user, map[string]any{"reason": reason, "by": actor.ID, "active": count})
	e.reportExpired(ctx, expired)
	return *w, count, e.syncRoles(ctx, group)
}

// Remove deletes user's warning issued at issued.
func (e *Engine) Remove(ctx context.Context, actor access.Actor, user string, issued time.Time) (Warning, error) {
	if err := actor.RequireStaff(e.deps.Config().StaffRoles); err != nil {
		return Warning{}, err
	}
	var (
		removed Warning
		group   []string
		expired []Warning
	)
	err := e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		ws := readUser(tx, user)
		if len(ws) == 0 {
			return access.Deny(access.NoWarnings)
		}
		for i, w := range ws {
			if w.Time.Equal(issued) {
				removed = cloneAll(ws[i : i+1])[0]
				writeUser(tx, user, append(ws[:i:i], ws[i+1:]...))
				group, expired = e.recomputeLocked(tx, user)
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return Warning{}, err
	}
	e.log.Info("warning removed", "user", user, "by", actor.ID, "issued", issued)
	e.deps.Events.Emit(ctx, events.WarnRemoved, user, map[string]any{"issued": issued, "by": actor.ID})
	e.reportExpired(ctx, expired)
	return removed, e.syncRoles(ctx, group)
}

// Edit changes the reason of user's warning issued at issued and, when
// expired is non-nil, overrides its expiry.
func (e *Engine) Edit(ctx context.Context, actor access.Actor, user string, issued time.Time, reason string, expired *time.Time) error {
	if err := actor.RequireStaff(e.deps.Config().StaffRoles); err != nil {
		return err
	}
	var group []string
	err := e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		ws := readUser(tx, user)
		for _, w := range ws {
			if !w.Time.Equal(issued) {
				continue
			}
			if r := strings.TrimSpace(reason); r != "" {
				w.Reason = r
			}
			if expired != nil {
				t := *expired
				w.Expired = &t
			}
			writeUser(tx, user, ws)
			group = linked.Group(tx, user)
			return nil
		}
		if len(ws) == 0 {
			return access.Deny(access.NoWarnings)
		}
		return ErrNotFound
	})
	if err != nil {
		return err
	}
	e.log.Info("warning edited", "user", user, "by", actor.ID, "issued", issued)
	return e.syncRoles(ctx, group)
}

// Link joins the groups of a and b.
func (e *Engine) Link(ctx context.Context, actor access.Actor, a, b string) error {
	if err := actor.RequireStaff(e.deps.Config().StaffRoles); err != nil {
		return err
	}
	if a == b {
		return access.Deny(access.AlreadyLinked)
	}
	var group []string
	err := e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		var ok bool
		if group, ok = linked.Link(tx, a, b); !ok {
			return access.Deny(access.AlreadyLinked)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.log.Info("accounts linked", "group", group, "by", actor.ID)
	return e.Recompute(ctx, a)
}

// Unlink removes user from its group.
func (e *Engine) Unlink(ctx context.Context, actor access.Actor, user string) error {
	if err := actor.RequireStaff(e.deps.Config().StaffRoles); err != nil {
		return err
	}
	var former []string
	err := e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		var ok bool
		if former, ok = linked.Unlink(tx, user); !ok {
			return access.Deny(access.NotLinked)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.log.Info("account unlinked", "user", user, "by", actor.ID)
	errs := []error{e.Recompute(ctx, user)}
	if len(former) > 0 {
		errs = append(errs, e.Recompute(ctx, former[0]))
	}
	return errors.Join(errs...)
}

// Start ages out all warnings and keeps doing so periodically.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.RecomputeAll(ctx); err != nil {
		e.log.Warn("initial recompute finished with errors", "error", err)
	}
	return e.deps.Scheduler.Every(recomputeKey, func() time.Duration {
		if d := e.deps.Config().WarnRecompute.Std(); d > 0 {
			return d
		}
		return time.Hour
	}, func(ctx context.Context) {
		if err := e.RecomputeAll(ctx); err != nil {
			e.log.Warn("periodic recompute finished with errors", "error", err)
		}
	})
}

func (e *Engine) Stop() {
	e.deps.Scheduler.Cancel(recomputeKey)
}
