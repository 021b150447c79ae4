// Package counting keeps the counting channel clean.
package counting

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/actions/core"
	engine "github.com/oooz/oooz-bot/src/counting"
	"github.com/oooz/oooz-bot/src/discord"
)

var _ core.Module = (*Module)(nil)

type Module struct {
	rt      *core.Runtime
	counter *engine.Counter
	channel *discord.History
	log     *slog.Logger

	runtimeCtx context.Context
	cancel     context.CancelFunc
	remove     func()
}

func NewModule(rt *core.Runtime) *Module {
	m := &Module{
		rt:         rt,
		counter:    rt.Counter,
		channel:    discord.NewHistory(rt.Discord, func() string { return rt.Cfg().CountingChannel }),
		log:        rt.Logger.With("component", "counting"),
		runtimeCtx: context.Background(),
	}
	rt.Console.Scope("counting").Register("next", "", "shows the number expected next", func(ctx context.Context, _ string) (any, error) {
		n, ok := m.counter.Next(ctx)
		if !ok {
			return "not started", nil
		}
		return n, nil
	})
	return m
}

func (m *Module) Name() string { return "counting" }

func (m *Module) Start(ctx context.Context) error {
	m.runtimeCtx, m.cancel = context.WithCancel(ctx)
	m.remove = m.rt.Listen(m.onReady, m.onMessageCreate)
	return nil
}

func (m *Module) Stop(context.Context) {
	if m.remove != nil {
		m.remove()
	}
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Module) onReady(*discordgo.Session, *discordgo.Ready) {
	m.clean(m.runtimeCtx)
}

// onMessageCreate may run before onReady; clean is safe either way.
func (m *Module) onMessageCreate(_ *discordgo.Session, msg *discordgo.MessageCreate) {
	if ch := m.rt.Cfg().CountingChannel; ch != "" && msg.ChannelID == ch {
		m.clean(m.runtimeCtx)
	}
}

func (m *Module) clean(ctx context.Context) {
	if m.rt.Cfg().CountingChannel == "" {
		return
	}
	kept, deleted, err := m.counter.Clean(ctx, m.channel)
	if err != nil {
		m.log.Error("cleaning counting channel failed", "error", err)
		return
	}
	if kept+deleted > 0 {
		m.log.Debug("counting channel cleaned", "kept", kept, "deleted", deleted)
	}
}
