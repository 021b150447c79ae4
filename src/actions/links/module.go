// Package links runs the curated problem-link channel.
package links

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/actions/core"
	"github.com/oooz/oooz-bot/src/discord"
	"github.com/oooz/oooz-bot/src/links"
	"github.com/oooz/oooz-bot/src/reminders/codeforces"
)

var _ core.Module = (*Module)(nil)

type Module struct {
	rt      *core.Runtime
	curator *links.Curator
	board   *discord.LinkBoard
	log     *slog.Logger
	self    atomic.Value

	runtimeCtx context.Context
	cancel     context.CancelFunc
	remove     func()
}

// NewModule builds the curator. finder may be nil to look problems up on
// the judges themselves.
func NewModule(rt *core.Runtime, finder links.Finder) *Module {
	cfg := rt.Cfg()
	if finder == nil {
		finder = links.NewResolver(codeforces.NewClient(cfg.Codeforces.Endpoint, cfg.Codeforces.Timeout.Std()), cfg.Links.Timeout.Std())
	}
	m := &Module{
		rt:         rt,
		curator:    links.NewCurator(rt.Store, finder, rt.Now, rt.Logger),
		log:        rt.Logger.With("component", "links"),
		runtimeCtx: context.Background(),
	}
	m.board = discord.NewLinkBoard(rt.Discord,
		func() string { return rt.Cfg().Guild },
		func() string { return rt.Cfg().Links.Channel },
		m.selfID)
	rt.Console.Scope("links").Register("clean", "", "publishes the submissions waiting in the channel", func(ctx context.Context, _ string) (any, error) {
		return m.clean(ctx)
	})
	return m
}

func (m *Module) Name() string { return "links" }

func (m *Module) Start(ctx context.Context) error {
	m.runtimeCtx, m.cancel = context.WithCancel(ctx)
	m.remove = m.rt.Listen(m.onReady, m.onMessageCreate, m.onReactionAdd)
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

func (m *Module) selfID() string {
	id, _ := m.self.Load().(string)
	return id
}

func (m *Module) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	m.self.Store(r.User.ID)
	m.log.Info("cleaning links channel")
	if _, err := m.clean(m.runtimeCtx); err != nil {
		m.log.Error("cleaning links channel failed", "error", err)
		return
	}
	m.log.Info("links channel is ready")
}

func (m *Module) onMessageCreate(_ *discordgo.Session, msg *discordgo.MessageCreate) {
	channel := m.rt.Cfg().Links.Channel
	if channel == "" || msg.ChannelID != channel || msg.Author == nil || msg.Author.ID == m.selfID() {
		return
	}
	m.log.Debug("cleaning links channel after a new message")
	if _, err := m.clean(m.runtimeCtx); err != nil {
		m.log.Error("cleaning links channel failed", "error", err)
	}
}

func (m *Module) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	channel := m.rt.Cfg().Links.Channel
	if channel == "" || r.MessageReaction == nil || r.ChannelID != channel || r.UserID == m.selfID() {
		return
	}
	if err := m.curator.Reacted(m.runtimeCtx, m.board, r.MessageID, r.Emoji.APIName(), r.UserID); err != nil {
		m.log.Error("handling reaction failed", "message", r.MessageID, "error", err)
	}
}

func (m *Module) clean(ctx context.Context) (int, error) {
	channel := m.rt.Cfg().Links.Channel
	if channel == "" {
		return 0, nil
	}
	return m.curator.Clean(ctx, m.board, channel)
}
