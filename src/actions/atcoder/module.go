// Package atcoder announces upcoming AtCoder contests.
package atcoder

import (
	"context"
	"log/slog"

	"github.com/oooz/oooz-bot/src/actions/core"
	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/discord"
	"github.com/oooz/oooz-bot/src/reminders/atcoder"
)

var _ core.Module = (*Module)(nil)

type Module struct {
	rt        *core.Runtime
	reminders *atcoder.Reminders
	log       *slog.Logger
	started   bool
}

// NewModule builds the reminders. schedule may be nil to scrape the
// configured endpoint.
func NewModule(rt *core.Runtime, schedule atcoder.Schedule) *Module {
	cfg := rt.Cfg().AtCoder
	if schedule == nil {
		schedule = atcoder.NewClient(cfg.Endpoint, cfg.Timeout.Std())
	}
	m := &Module{
		rt:  rt,
		log: rt.Logger.With("component", "atcoder"),
		reminders: atcoder.New(atcoder.Deps{
			Schedule:  schedule,
			Scheduler: rt.Scheduler,
			Poster:    discord.NewPoster(rt.Discord),
			Config:    func() config.AtCoder { return rt.Cfg().AtCoder },
			Now:       rt.Now,
			Logger:    rt.Logger,
		}),
	}
	rt.Console.Scope("atcoder").Register("poll", "", "downloads the contest page and reschedules reminders", func(ctx context.Context, _ string) (any, error) {
		return nil, m.reminders.Poll(ctx)
	})
	return m
}

func (m *Module) Name() string { return "atcoder" }

func (m *Module) Start(ctx context.Context) error {
	if m.rt.Cfg().AtCoder.Channel == "" {
		m.log.Info("atcoder reminders disabled, no channel configured")
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
