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
	"github.com/oooz/oooz-bot/src/xp"
)

// Runtime is everything the action modules share. The engines are built
// once and reached both from Discord handlers and the console.
type Runtime struct {
	Session   *discordgo.Session
	Discord   discord.Session
	Guild     *discord.Guild
	Config    *config.Holder
	Store     *store.Store
	Scheduler *scheduler.Scheduler
	Events    *events.Emitter
	Metrics   *metrics.Metrics
	Console   *console.Registry
	Web       *http.Client
	Now       func() time.Time
	Logger    *slog.Logger

	Sugestie *sugestie.Engine
	Warns    *warns.Engine
	XP       *xp.Engine
	Rules    *rules.Rules
	Counter  *counting.Counter
	Alarm    cooldown.Limiter
}

// Cfg returns the live configuration.
func (rt *Runtime) Cfg() *config.Config { return rt.Config.Get() }

// Func adapts a pair of functions to Module.
type Func struct {
	ModuleName string
	OnStart    func(ctx context.Context) error
	OnStop     func(ctx context.Context)
}

var _ Module = Func{}

func (f Func) Name() string { return f.ModuleName }

func (f Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

func (f Func) Stop(ctx context.Context) {
	if f.OnStop != nil {
		f.OnStop(ctx)
	}
}
