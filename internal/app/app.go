// Package app wires the engine together and drives its two periodic ticks
// (command poll, action scheduler) plus the crash watchdog and automatic
// restart schedules.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"warden/internal/actions"
	"warden/internal/clock"
	"warden/internal/commands"
	"warden/internal/config"
	"warden/internal/discord"
	"warden/internal/events"
	"warden/internal/server"
)

type App struct {
	log zerolog.Logger
	clk clock.Clock

	cfgMgr *config.Manager
	client *discord.Client
	bus    *events.Bus
	sched  *actions.Scheduler
	ingest *commands.Ingestor
	ctrl   server.Controller

	cron   *cron.Cron
	runCtx context.Context

	// engineMu serializes the ticks: poll, scheduler and watchdog never run
	// dispatch logic concurrently (single logical thread of control).
	engineMu sync.Mutex

	// skipNextRestart consumes the next automatic restart firing.
	skipNextRestart bool

	// lastHealth tracks the previous watchdog probe for edge detection.
	lastHealth      server.Health
	lastHealthKnown bool

	sysd *server.SystemdController // kept for Close; may be nil
}

func New(ctx context.Context, cfgPath string, log zerolog.Logger) (*App, error) {
	a := &App{
		log: log.With().Str("component", "app").Logger(),
		clk: clock.Real{},
	}

	a.cfgMgr = config.NewManager(cfgPath, log)
	cfg, err := a.cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a.client = discord.NewClient(discord.ClientConfig{
		BaseURL: cfg.Discord.APIBase,
		Token:   cfg.Discord.Token,
		Clock:   a.clk,
	}, log)

	a.bus = events.NewBus(a.client, destinations(cfg), cfg.Notifications, a.clk, log)

	// The systemd controller is optional at startup: without it every
	// server operation fails loudly in chat instead of killing the bot.
	if cfg.Server.Unit != "" {
		sysd, err := server.NewSystemdController(ctx, cfg.Server.Unit, cfg.Server.UpdateCommand, cfg.Server.BackupCommand, log)
		if err != nil {
			a.log.Warn().Err(err).Str("unit", cfg.Server.Unit).Msg("systemd controller unavailable, server commands will fail")
		} else {
			a.sysd = sysd
			a.ctrl = sysd
		}
	} else {
		a.log.Warn().Msg("no server unit configured, server commands will fail")
	}

	a.sched = actions.NewScheduler(a.bus, executor{a}, a.clk, log)
	a.ingest = commands.NewIngestor(a.client, a.bus, a.clk, log)
	a.registerHandlers()

	a.cfgMgr.OnChange(func(c *config.Config) {
		a.bus.Apply(c.Notifications, destinations(c))
	})

	return a, nil
}

func destinations(cfg *config.Config) events.Destinations {
	return events.Destinations{
		Admin:  cfg.Discord.AdminChannelIDs,
		Player: cfg.Discord.PlayerChannelIDs,
	}
}

// executor adapts the controller to the action scheduler; a nil controller
// turns into an error the scheduler reports to chat.
type executor struct{ a *App }

func (e executor) Restart(ctx context.Context) error {
	if e.a.ctrl == nil {
		return fmt.Errorf("restart: no server controller configured")
	}
	return e.a.ctrl.Restart(ctx)
}

func (e executor) Stop(ctx context.Context) error {
	if e.a.ctrl == nil {
		return fmt.Errorf("stop: no server controller configured")
	}
	return e.a.ctrl.Stop(ctx)
}

func (e executor) Update(ctx context.Context) error {
	if e.a.ctrl == nil {
		return fmt.Errorf("update: no server controller configured")
	}
	return e.a.ctrl.Update(ctx)
}

// Start seeds the polling baseline and launches the cron-driven ticks and
// the config watcher. It returns once the engine is running.
func (a *App) Start(ctx context.Context) error {
	a.runCtx = ctx
	cfg := a.cfgMgr.Get()

	a.ingest.InitBaseline(ctx, cfg.Discord.CommandChannelIDs)

	pollTick, err := cfg.PollTickDuration()
	if err != nil {
		return fmt.Errorf("poll tick: %w", err)
	}
	schedTick, err := cfg.SchedulerTickDuration()
	if err != nil {
		return fmt.Errorf("scheduler tick: %w", err)
	}
	healthTick, err := cfg.WatchdogInterval()
	if err != nil {
		return fmt.Errorf("watchdog interval: %w", err)
	}

	a.cron = cron.New()
	if _, err := a.cron.AddFunc(fmt.Sprintf("@every %s", pollTick), a.pollTick); err != nil {
		return fmt.Errorf("poll tick: %w", err)
	}
	if _, err := a.cron.AddFunc(fmt.Sprintf("@every %s", schedTick), a.schedulerTick); err != nil {
		return fmt.Errorf("scheduler tick: %w", err)
	}
	if healthTick > 0 && a.ctrl != nil {
		if _, err := a.cron.AddFunc(fmt.Sprintf("@every %s", healthTick), a.watchdogTick); err != nil {
			return fmt.Errorf("watchdog tick: %w", err)
		}
	}
	for _, spec := range cfg.Schedules.Restart {
		if _, err := a.cron.AddFunc(spec, a.autoRestart); err != nil {
			return fmt.Errorf("restart schedule %q: %w", spec, err)
		}
	}
	a.cron.Start()

	go func() {
		if err := a.cfgMgr.Watch(ctx); err != nil {
			a.log.Warn().Err(err).Msg("config watcher stopped")
		}
	}()

	a.log.Info().
		Int("restart_schedules", len(cfg.Schedules.Restart)).
		Str("prefix", cfg.Commands.Prefix).
		Msg("engine started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cron != nil {
		stopped := a.cron.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}
	if a.sysd != nil {
		a.sysd.Close()
	}
	a.log.Info().Msg("engine stopped")
	return nil
}

// pollTick drives the command ingestor. The ingestor additionally enforces
// its own 30s floor, so an aggressive tick config stays harmless.
func (a *App) pollTick() {
	a.engineMu.Lock()
	defer a.engineMu.Unlock()

	cfg := a.cfgMgr.Get()
	a.ingest.Poll(a.runCtx, cfg.Discord.CommandChannelIDs, cfg.Discord.AllowedRoleIDs, cfg.Discord.GuildID, cfg.Commands.Prefix)
}

func (a *App) schedulerTick() {
	a.engineMu.Lock()
	defer a.engineMu.Unlock()

	a.sched.Tick(a.runCtx)
}

// autoRestart fires from the configured cron schedules and routes through
// the same delayed-action path as a chat command, unless a skip was armed.
func (a *App) autoRestart() {
	a.engineMu.Lock()
	defer a.engineMu.Unlock()

	if a.skipNextRestart {
		a.skipNextRestart = false
		a.log.Info().Msg("automatic restart skipped by request")
		return
	}
	cfg := a.cfgMgr.Get()
	if err := a.sched.Schedule(a.runCtx, actions.KindRestart, cfg.Schedules.RestartLeadMinutes, "schedule"); err != nil {
		a.log.Warn().Err(err).Msg("automatic restart not scheduled")
	}
}

// watchdogTick probes the unit and converts state edges into lifecycle
// events. Crash reports use Force: at most once per incident, never rate
// limited.
func (a *App) watchdogTick() {
	a.engineMu.Lock()
	defer a.engineMu.Unlock()

	h, err := a.ctrl.Health(a.runCtx)
	if err != nil {
		a.log.Debug().Err(err).Msg("health probe failed")
		return
	}
	prev, known := a.lastHealth, a.lastHealthKnown
	a.lastHealth, a.lastHealthKnown = h, true
	if !known || prev.State == h.State {
		return
	}

	switch {
	case h.State == "failed":
		a.bus.Dispatch(a.runCtx, events.ServerCrashed, map[string]string{
			"reason": fmt.Sprintf("unit went %s -> %s", prev.State, h.State),
		}, events.DispatchOptions{Force: true})
	case h.State == "activating":
		a.bus.Dispatch(a.runCtx, events.ServerStarting, nil, events.DispatchOptions{})
	case h.Active && !prev.Active:
		a.bus.Dispatch(a.runCtx, events.ServerStarted, nil, events.DispatchOptions{})
	case prev.Active && h.State == "inactive":
		a.bus.Dispatch(a.runCtx, events.ServerStopped, nil, events.DispatchOptions{})
	}
}
