package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oooz/oooz-bot/src/actions"
	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/cooldown"
	"github.com/oooz/oooz-bot/src/data/archive"
	"github.com/oooz/oooz-bot/src/data/store"
	"github.com/oooz/oooz-bot/src/discord"
	"github.com/oooz/oooz-bot/src/events"
	"github.com/oooz/oooz-bot/src/metrics"
	"github.com/oooz/oooz-bot/src/scheduler"
)

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), commonRun())
		},
	}
}

func runBot(parent context.Context, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(globalFlags.config)
	if err != nil {
		return err
	}
	holder := config.NewHolder(globalFlags.config, cfg)
	m := metrics.New()

	st := store.New(store.Options{
		Path:     cfg.Database,
		Interval: func() time.Duration { return holder.Get().Autosave.Std() },
		Logger:   logger,
		Metrics:  m,
	})
	if err := st.Load(ctx); err != nil {
		return err
	}

	if cfg.Archive.Driver != "" {
		arch, err := archive.Open(cfg.Archive.Driver, cfg.Archive.DSN, logger)
		if err != nil {
			return err
		}
		defer arch.Close()
		st.OnSave(arch.Hook())
	}

	pub, err := events.Open(cfg.Events, cfg.Redis.URL)
	if err != nil {
		return err
	}
	emitter := events.NewEmitter(pub, logger, nil)
	defer emitter.Close()

	svc := actions.Services{
		Config:    holder,
		Store:     st,
		Scheduler: scheduler.New(scheduler.Options{Logger: logger, Metrics: m}),
		Events:    emitter,
		Metrics:   m,
		Logger:    logger,
	}
	defer svc.Scheduler.Stop()

	if cfg.Redis.URL != "" {
		xpLimiter, err := cooldown.Open(cfg.Redis.URL, "oooz:xp:", func() time.Duration { return holder.Get().XP.Cooldown.Std() })
		if err != nil {
			return err
		}
		alarmLimiter, err := cooldown.Open(cfg.Redis.URL, "oooz:alarm:", func() time.Duration { return holder.Get().AlarmCooldown.Std() })
		if err != nil {
			return err
		}
		svc.XPCooldown, svc.AlarmCooldown = xpLimiter, alarmLimiter
		logger.Info("using redis cooldowns")
	}

	session, err := discord.New(cfg.Token)
	if err != nil {
		return err
	}
	svc.Session = session

	mgr, _, err := actions.StartAll(ctx, svc)
	if err != nil {
		return fmt.Errorf("actions start: %w", err)
	}
	logger.Info("bot running", "modules", mgr.Names())

	<-ctx.Done()
	logger.Info("shutting down")
	shutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	mgr.Stop(shutdown)

	if st.Dirty() {
		if err := st.Save(shutdown); err != nil {
			return fmt.Errorf("final save: %w", err)
		}
	}
	return nil
}
