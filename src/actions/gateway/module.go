// Package gateway owns the Discord connection. It is started after every
// feature module so their handlers see the first Ready.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/actions/core"
	"github.com/oooz/oooz-bot/src/discord"
)

var _ core.Module = (*Module)(nil)

type Module struct {
	rt     *core.Runtime
	log    *slog.Logger
	remove func()
}

func NewModule(rt *core.Runtime) *Module {
	return &Module{rt: rt, log: rt.Logger.With("component", "gateway")}
}

func (m *Module) Name() string { return "gateway" }

func (m *Module) Start(context.Context) error {
	if m.rt.Session == nil {
		return fmt.Errorf("gateway: session not initialized")
	}
	m.remove = m.rt.Listen(m.onReady, m.onDisconnect)
	if err := m.rt.Session.Open(); err != nil {
		m.remove()
		return fmt.Errorf("gateway: discord open: %w", err)
	}
	return nil
}

func (m *Module) Stop(context.Context) {
	if m.remove != nil {
		m.remove()
	}
	if m.rt.Session != nil {
		if err := m.rt.Session.Close(); err != nil {
			m.log.Warn("closing discord session failed", "error", err)
		}
	}
}

func (m *Module) onReady(s *discordgo.Session, r *discordgo.Ready) {
	m.log.Info("logged in", "user", r.User.Username, "guilds", len(r.Guilds))
	if err := discord.RegisterSlashCommands(s, r.User.ID, m.rt.Cfg().Guild, m.log); err != nil {
		m.log.Error("registering commands failed", "error", err)
	}
}

func (m *Module) onDisconnect(*discordgo.Session, *discordgo.Disconnect) {
	m.log.Warn("disconnected from discord, reconnecting")
}
