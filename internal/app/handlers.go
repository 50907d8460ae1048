package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"warden/internal/actions"
	"warden/internal/commands"
	"warden/internal/events"
)

func (a *App) registerHandlers() {
	a.ingest.Register(commands.CmdStart, a.cmdStart)
	a.ingest.Register(commands.CmdRestart, a.delayedCommand(actions.KindRestart))
	a.ingest.Register(commands.CmdStop, a.delayedCommand(actions.KindStop))
	a.ingest.Register(commands.CmdUpdate, a.delayedCommand(actions.KindUpdate))
	a.ingest.Register(commands.CmdBackup, a.cmdBackup)
	a.ingest.Register(commands.CmdStatus, a.cmdStatus)
	a.ingest.Register(commands.CmdCancel, a.cmdCancel)
	a.ingest.Register(commands.CmdRestartSkip, a.cmdRestartSkip)
}

// reply sends a command result to the admin channel, bypassing rate limits
// so consecutive commands always get feedback.
func (a *App) reply(ctx context.Context, command, result string) {
	a.bus.Dispatch(ctx, events.CommandExecuted, map[string]string{
		"command": command,
		"result":  result,
	}, events.DispatchOptions{SkipRateLimit: true})
}

func (a *App) cmdStart(ctx context.Context, cmd commands.Command) error {
	if a.ctrl == nil {
		return fmt.Errorf("start: no server controller configured")
	}
	a.bus.Dispatch(ctx, events.ServerStarting, nil, events.DispatchOptions{})
	if err := a.ctrl.Start(ctx); err != nil {
		return err
	}
	a.reply(ctx, cmd.Kind.Word(), ":white_check_mark: start requested")
	return nil
}

// delayedCommand builds the handler for the restart/stop/update family:
// a minutes argument schedules the action, no argument executes immediately.
func (a *App) delayedCommand(kind actions.Kind) commands.Handler {
	return func(ctx context.Context, cmd commands.Command) error {
		if len(cmd.Args) == 0 {
			return a.sched.Immediate(ctx, kind, cmd.AuthorID)
		}

		minutes, err := strconv.Atoi(cmd.Args[0])
		if err != nil || minutes <= 0 || minutes > actions.MaxDelayMinutes {
			a.reply(ctx, cmd.Kind.Word(), fmt.Sprintf(":x: minutes must be 1-%d", actions.MaxDelayMinutes))
			return nil
		}

		switch err := a.sched.Schedule(ctx, kind, minutes, cmd.AuthorID); err {
		case nil:
			return nil
		case actions.ErrAlreadyScheduled:
			a.reply(ctx, cmd.Kind.Word(), fmt.Sprintf(":x: a %s is already scheduled, cancel it first", kind))
			return nil
		default:
			return err
		}
	}
}

func (a *App) cmdBackup(ctx context.Context, cmd commands.Command) error {
	if a.ctrl == nil {
		return fmt.Errorf("backup: no server controller configured")
	}
	a.bus.Dispatch(ctx, events.BackupStarted, nil, events.DispatchOptions{})
	summary, err := a.ctrl.Backup(ctx)
	if err != nil {
		return err
	}
	a.bus.Dispatch(ctx, events.BackupCompleted, map[string]string{"result": summary}, events.DispatchOptions{})
	return nil
}

func (a *App) cmdStatus(ctx context.Context, cmd commands.Command) error {
	var lines []string

	if a.ctrl != nil {
		if h, err := a.ctrl.Health(ctx); err == nil {
			line := fmt.Sprintf("Server: %s", h.State)
			if h.Active && !h.Since.IsZero() {
				line += fmt.Sprintf(" (up %s)", a.clk.Now().Sub(h.Since).Round(time.Minute))
			}
			lines = append(lines, line)
		} else {
			lines = append(lines, "Server: state unknown")
		}
	} else {
		lines = append(lines, "Server: no controller configured")
	}

	pending := a.sched.Describe()
	if len(pending) == 0 {
		lines = append(lines, "Pending actions: none")
	} else {
		for _, kind := range []actions.Kind{actions.KindRestart, actions.KindStop, actions.KindUpdate} {
			if m, ok := pending[kind]; ok {
				lines = append(lines, fmt.Sprintf("Pending %s: in %d min", kind, m))
			}
		}
	}

	if lp := a.ingest.LastPoll(); !lp.IsZero() {
		lines = append(lines, fmt.Sprintf("Last command poll: %s ago", a.clk.Now().Sub(lp).Round(time.Second)))
	}

	a.bus.Dispatch(ctx, events.StatusReport, map[string]string{
		"status": strings.Join(lines, "\n"),
	}, events.DispatchOptions{SkipRateLimit: true})
	return nil
}

func (a *App) cmdCancel(ctx context.Context, cmd commands.Command) error {
	if cancelled := a.sched.Cancel(ctx, cmd.AuthorID); len(cancelled) == 0 {
		a.reply(ctx, cmd.Kind.Word(), "nothing is scheduled")
	}
	return nil
}

func (a *App) cmdRestartSkip(ctx context.Context, cmd commands.Command) error {
	a.skipNextRestart = true
	a.bus.Dispatch(ctx, events.RestartSkipped, nil, events.DispatchOptions{})
	return nil
}
