// Package xp awards experience points for chatting and maps them to levels
// and level roles.
package xp

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"time"

	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/cooldown"
	"github.com/oooz/oooz-bot/src/data/linked"
	"github.com/oooz/oooz-bot/src/data/store"
)

const (
	keyXP = "xp"
	// KeyLastGain holds the per-user cooldown timestamps.
	KeyLastGain = "xp_last_gain"
)

// LevelOf returns the level reached with xp points.
func LevelOf(xp int64) int {
	if xp <= 0 {
		return 0
	}
	return int(math.Floor(math.Sqrt(float64(xp)/50+0.25) - 0.5))
}

// XPFor returns the points needed to reach level.
func XPFor(level int) int64 {
	l := int64(level)
	return l * (l + 1) / 2 * 100
}

// GetXP reads user's own points.
func GetXP(tx *store.Tx, user string) int64 {
	n, _ := store.AsInt(tx.Map(keyXP)[user])
	return n
}

// SetXP overwrites user's own points.
func SetXP(tx *store.Tx, user string, xp int64) {
	tx.Map(keyXP)[user] = xp
}

// PooledXP sums the points of user's linked group.
func PooledXP(tx *store.Tx, user string) int64 {
	var total int64
	for _, member := range linked.Group(tx, user) {
		total += GetXP(tx, member)
	}
	return total
}

// Roles applies level roles on the chat platform.
type Roles interface {
	SyncLevelRoles(ctx context.Context, user string, grant, revoke []string) error
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store    *store.Store
	Cooldown cooldown.Limiter
	Roles    Roles
	Config   func() config.XP
	Now      func() time.Time
	// Gain draws a value in [min, max]; defaults to a uniform draw.
	Gain   func(min, max int) int
	Logger *slog.Logger
}

type Engine struct {
	deps Deps
	log  *slog.Logger
}

func New(deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Gain == nil {
		deps.Gain = func(min, max int) int {
			if max <= min {
				return min
			}
			return min + rand.IntN(max-min+1)
		}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Cooldown == nil {
		deps.Cooldown = cooldown.NewStoreLimiter(deps.Store, KeyLastGain, func() time.Duration {
			return deps.Config().Cooldown.Std()
		})
	}
	return &Engine{deps: deps, log: deps.Logger.With("component", "xp")}
}

// Message is a chat message considered for a gain.
type Message struct {
	User     string
	Channel  string
	Category string
	Bot      bool
}

// Gain is the result of a message.
type Gain struct {
	Points  int
	XP      int64
	Level   int
	LevelUp bool
}

// OnMessage awards points for msg unless it is ignored or on cooldown.
func (e *Engine) OnMessage(ctx context.Context, msg Message) (Gain, error) {
	cfg := e.deps.Config()
	if msg.Bot || slices.Contains(cfg.IgnoredChannels, msg.Channel) ||
		(msg.Category != "" && slices.Contains(cfg.IgnoredCategories, msg.Category)) {
		return Gain{}, nil
	}
	ok, _, err := e.deps.Cooldown.Allow(ctx, msg.User, e.deps.Now())
	if err != nil || !ok {
		return Gain{}, err
	}

	g := Gain{Points: e.deps.Gain(cfg.MinGain, cfg.MaxGain)}
	err = e.deps.Store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		old := LevelOf(PooledXP(tx, msg.User))
		SetXP(tx, msg.User, GetXP(tx, msg.User)+int64(g.Points))
		g.XP = GetXP(tx, msg.User)
		g.Level = LevelOf(PooledXP(tx, msg.User))
		g.LevelUp = g.Level > old
		return nil
	})
	if err != nil {
		return Gain{}, err
	}
	e.log.Debug("xp gained", "user", msg.User, "points", g.Points, "xp", g.XP)
	if g.LevelUp {
		e.log.Info("level up", "user", msg.User, "level", g.Level)
		if err := e.UpdateRolesFor(ctx, msg.User); err != nil {
			e.log.Warn("could not update level roles", "user", msg.User, "error", err)
		}
	}
	return g, nil
}

// Standing describes one account.
type Standing struct {
	User  string
	XP    int64
	Level int
	// Missing is the number of points left to the next level.
	Missing int64
}

// Show returns user's standing. Level counts the linked group's points.
func (e *Engine) Show(ctx context.Context, user string) Standing {
	var s Standing
	_ = e.deps.Store.View(ctx, func(_ context.Context, tx *store.Tx) error {
		pooled := PooledXP(tx, user)
		s = Standing{User: user, XP: GetXP(tx, user), Level: LevelOf(pooled)}
		s.Missing = XPFor(s.Level+1) - pooled
		return nil
	})
	return s
}

// Leaderboard returns the n accounts with the most points.
func (e *Engine) Leaderboard(ctx context.Context, n int) []Standing {
	var out []Standing
	_ = e.deps.Store.View(ctx, func(_ context.Context, tx *store.Tx) error {
		for user, raw := range tx.Map(keyXP) {
			xp, _ := store.AsInt(raw)
			out = append(out, Standing{User: user, XP: xp, Level: LevelOf(xp)})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].XP != out[j].XP {
			return out[i].XP > out[j].XP
		}
		return out[i].User < out[j].User
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// RolesFor splits the configured level roles into those user should and
// should not have.
func (e *Engine) RolesFor(ctx context.Context, user string) (grant, revoke []string) {
	level := e.Show(ctx, user).Level
	for _, r := range e.deps.Config().Roles {
		if level >= r.Level {
			grant = append(grant, r.Role)
		} else {
			revoke = append(revoke, r.Role)
		}
	}
	return grant, revoke
}

// UpdateRolesFor resyncs the level roles of user.
func (e *Engine) UpdateRolesFor(ctx context.Context, user string) error {
	if e.deps.Roles == nil || len(e.deps.Config().Roles) == 0 {
		return nil
	}
	grant, revoke := e.RolesFor(ctx, user)
	return e.deps.Roles.SyncLevelRoles(ctx, user, grant, revoke)
}

// UpdateRoles resyncs the level roles of members.
func (e *Engine) UpdateRoles(ctx context.Context, members []string) error {
	e.log.Info("updating level roles", "members", len(members))
	var first error
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.UpdateRolesFor(ctx, m); err != nil {
			e.log.Warn("could not update level roles", "user", m, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
