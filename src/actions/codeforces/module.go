// Package codeforces announces upcoming Codeforces rounds and posts the
// national standings after rated ones.
package codeforces

import (
	"context"
	"log/slog"

	"github.com/oooz/oooz-bot/src/actions/core"
	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/discord"
	"github.com/oooz/oooz-bot/src/reminders/codeforces"
)

var _ core.Module = (*Module)(nil)

type Module struct {
	rt        *core.Runtime
	reminders *codeforces.Reminders
	log       *slog.Logger
	started   bool
}

// NewModule builds the reminders on the Codeforces API client. api may be
// nil to use the endpoint from the configuration.
func NewModule(rt *core.Runtime, api codeforces.API) *Module {
	cfg := rt.Cfg().Codeforces
	if api == nil {
		api = codeforces.NewClient(cfg.Endpoint, cfg.Timeout.Std())
	}
	m := &Module{
		rt:  rt,
		log: rt.Logger.With("component", "codeforces"),
		reminders: codeforces.New(codeforces.Deps{
			API:       api,
			Scheduler: rt.Scheduler,
			Poster:    discord.NewPoster(rt.Discord),
			Config:    func() config.Codeforces { return rt.Cfg().Codeforces },
			Now:       rt.Now,
			Logger:    rt.Logger,
		}),
	}
	rt.Console.Scope("codeforces").Register("poll", "", "downloads the contest list and reschedules reminders", func(ctx context.Context, _ string) (any, error) {
		return nil, m.reminders.Poll(ctx)
	})
	return m
}

func (m *Module) Name() string { return "codeforces" }

// Start begins polling unless no announcement channel is configured.
func (m *Module) Start(ctx context.Context) error {
	if m.rt.Cfg().Codeforces.Channel == "" {
		m.log.Info("codeforces reminders disabled, no channel configured")
		return nil
	}
	if err := m.reminders.Start(ctx); err != nil {
		return err
	}
	m.started = true
	return nil
}

func (m *Module) Stop(context.Context) {
	if m.started {
		m.reminders.Stop()
		m.started = false
	}
}
