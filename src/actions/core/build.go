package core

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/console"
	"github.com/oooz/oooz-bot/src/cooldown"
	"github.com/oooz/oooz-bot/src/counting"
	"github.com/oooz/oooz-bot/src/data/store"
	"github.com/oooz/oooz-bot/src/discord"
	"github.com/oooz/oooz-bot/src/events"
	"github.com/oooz/oooz-bot/src/metrics"
	"github.com/oooz/oooz-bot/src/rules"
	"github.com/oooz/oooz-bot/src/scheduler"
	"github.com/oooz/oooz-bot/src/sugestie"
	"github.com/oooz/oooz-bot/src/warns"
	"github.com/oooz/oooz-bot/src/webclient"
	"github.com/oooz/oooz-bot/src/xp"
)

// Roles manages warn and level roles.
type Roles interface {
	warns.Roles
	xp.Roles
}

// Options are the process-wide services a Runtime is built from.
type Options struct {
	Session   *discordgo.Session
	// Discord is the REST surface the adapters use; it defaults to Session.
	Discord   discord.Session
	Config    *config.Holder
	Store     *store.Store
	Scheduler *scheduler.Scheduler
	Events    *events.Emitter
	Metrics   *metrics.Metrics
	Console   *console.Registry
	Web       *http.Client
	Now       func() time.Time
	Logger    *slog.Logger

	// Cooldowns overrides the store-backed limiters for XP gains and the
	// alarm, e.g. with Redis.
	XPCooldown    cooldown.Limiter
	AlarmCooldown cooldown.Limiter

	// Display and Roles replace the Discord adapters.
	Display sugestie.Display
	Roles   Roles
}

// AlarmKey is the store map holding the last alarm time.
const AlarmKey = "alarm_last"

// NewRuntime builds the feature engines on top of opts.
func NewRuntime(opts Options) *Runtime {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Console == nil {
		opts.Console = console.NewRegistry()
	}
	if opts.Web == nil {
		opts.Web = webclient.NewDefault(0)
	}
	cfg := opts.Config.Get

	if opts.Discord == nil && opts.Session != nil {
		opts.Discord = opts.Session
	}
	var guild *discord.Guild
	if opts.Discord != nil {
		guild = discord.NewGuild(opts.Discord, func() string { return cfg().Guild }, opts.Logger)
		if opts.Display == nil {
			opts.Display = discord.NewDisplay(opts.Discord)
		}
		if opts.Roles == nil {
			opts.Roles = guild
		}
	}
	if opts.AlarmCooldown == nil {
		opts.AlarmCooldown = cooldown.NewStoreLimiter(opts.Store, AlarmKey, func() time.Duration {
			return cfg().AlarmCooldown.Std()
		})
	}

	rt := &Runtime{
		Session:   opts.Session,
		Discord:   opts.Discord,
		Guild:     guild,
		Config:    opts.Config,
		Store:     opts.Store,
		Scheduler: opts.Scheduler,
		Events:    opts.Events,
		Metrics:   opts.Metrics,
		Console:   opts.Console,
		Web:       opts.Web,
		Now:       opts.Now,
		Logger:    opts.Logger,
		Alarm:     opts.AlarmCooldown,
	}
	staffRoles := func() []string { return cfg().StaffRoles }

	rt.Sugestie = sugestie.New(sugestie.Deps{
		Store:      opts.Store,
		Scheduler:  opts.Scheduler,
		Display:    opts.Display,
		Events:     opts.Events,
		Metrics:    opts.Metrics,
		Config:     func() config.Sugestie { return cfg().Sugestie },
		StaffRoles: staffRoles,
		Now:        opts.Now,
		Logger:     opts.Logger,
	})
	rt.Warns = warns.New(warns.Deps{
		Store:     opts.Store,
		Scheduler: opts.Scheduler,
		Roles:     opts.Roles,
		Events:    opts.Events,
		Metrics:   opts.Metrics,
		Config:    cfg,
		Now:       opts.Now,
		Logger:    opts.Logger,
	})
	rt.XP = xp.New(xp.Deps{
		Store:    opts.Store,
		Cooldown: opts.XPCooldown,
		Roles:    opts.Roles,
		Config:   func() config.XP { return cfg().XP },
		Now:      opts.Now,
		Logger:   opts.Logger,
	})
	rt.Rules = rules.New(rules.Deps{
		Store: opts.Store,
		Pending: func(ctx context.Context) []string {
			var ids []string
			for _, p := range rt.Sugestie.List(ctx, sugestie.Pending) {
				ids = append(ids, p.ID)
			}
			return ids
		},
		StaffRoles: staffRoles,
		Now:        opts.Now,
		Logger:     opts.Logger,
	})
	rt.Counter = counting.New(opts.Store, opts.Now, opts.Logger)
	return rt
}
