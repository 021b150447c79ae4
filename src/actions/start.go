package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/actions/atcoder"
	"github.com/oooz/oooz-bot/src/actions/codeforces"
	"github.com/oooz/oooz-bot/src/actions/core"
	"github.com/oooz/oooz-bot/src/actions/counting"
	"github.com/oooz/oooz-bot/src/actions/gateway"
	"github.com/oooz/oooz-bot/src/actions/links"
	"github.com/oooz/oooz-bot/src/actions/misc"
	"github.com/oooz/oooz-bot/src/actions/rules"
	"github.com/oooz/oooz-bot/src/actions/sugestie"
	"github.com/oooz/oooz-bot/src/actions/warns"
	"github.com/oooz/oooz-bot/src/actions/xp"
	"github.com/oooz/oooz-bot/src/api"
	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/console"
	"github.com/oooz/oooz-bot/src/cooldown"
	"github.com/oooz/oooz-bot/src/data/store"
	"github.com/oooz/oooz-bot/src/events"
	"github.com/oooz/oooz-bot/src/metrics"
	"github.com/oooz/oooz-bot/src/scheduler"
)

// Services are the process-wide pieces built before any module.
type Services struct {
	Session   *discordgo.Session
	Config    *config.Holder
	Store     *store.Store
	Scheduler *scheduler.Scheduler
	Events    *events.Emitter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// Optional shared cooldowns, e.g. Redis backed.
	XPCooldown    cooldown.Limiter
	AlarmCooldown cooldown.Limiter
}

// StartAll wires up the feature modules, the console and the API, and
// starts them. The Discord gateway is opened last.
func StartAll(ctx context.Context, svc Services) (*Manager, *Runtime, error) {
	log := svc.Logger
	if log == nil {
		log = slog.Default()
	}
	registry := console.NewRegistry()
	rt := core.NewRuntime(core.Options{
		Session:       svc.Session,
		Config:        svc.Config,
		Store:         svc.Store,
		Scheduler:     svc.Scheduler,
		Events:        svc.Events,
		Metrics:       svc.Metrics,
		Console:       registry,
		Logger:        log,
		XPCooldown:    svc.XPCooldown,
		AlarmCooldown: svc.AlarmCooldown,
	})
	registerAdmin(registry, svc.Store, svc.Config)

	cfg := rt.Cfg()
	consoleServer := console.NewServer(console.Options{
		Host:     cfg.Console.Host,
		Port:     cfg.Console.Port,
		Hello:    cfg.Console.Hello,
		Timeout:  func() time.Duration { return rt.Cfg().Console.Timeout.Std() },
		Registry: registry,
		Logger:   log,
	})
	apiServer := api.New(api.Deps{
		Proposals: rt.Sugestie,
		Rules:     rt.Rules,
		Warnings:  rt.Warns,
		Metrics:   svc.Metrics,
		Config:    cfg.API,
		Logger:    log,
	})

	mgr := NewManager(log)
	mods := []Module{
		core.Func{
			ModuleName: "autosave",
			OnStart:    svc.Store.Start,
			OnStop: func(context.Context) {
				if err := svc.Store.Stop(); err != nil {
					log.Debug("autosave already stopped", "error", err)
				}
			},
		},
		sugestie.NewModule(rt),
		warns.NewModule(rt),
		xp.NewModule(rt),
		rules.NewModule(rt),
		counting.NewModule(rt),
		misc.NewModule(rt),
		codeforces.NewModule(rt, nil),
		atcoder.NewModule(rt, nil),
		links.NewModule(rt, nil),
		core.Func{ModuleName: "console", OnStart: consoleServer.Start, OnStop: func(context.Context) { consoleServer.Stop() }},
		core.Func{ModuleName: "api", OnStart: apiServer.Start, OnStop: func(context.Context) { apiServer.Stop() }},
	}
	if svc.Session != nil {
		mods = append(mods, gateway.NewModule(rt))
	}
	if err := mgr.Add(mods...); err != nil {
		return nil, nil, fmt.Errorf("actions: add modules: %w", err)
	}
	if err := mgr.Start(ctx); err != nil {
		return nil, nil, err
	}
	return mgr, rt, nil
}
