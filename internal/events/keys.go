// Package events routes typed engine events to notification channels under
// priority-based rate limiting, and fans them out to registered side-effect
// handlers.
package events

import "time"

// Key is a closed enumeration of engine event types. Dispatching an
// unregistered key is a logged no-op, never an error to the caller.
type Key string

const (
	ServerStarting   Key = "server.starting"
	ServerStarted    Key = "server.started"
	ServerStopped    Key = "server.stopped"
	ServerRestarting Key = "server.restarting"
	ServerCrashed    Key = "server.crashed"

	RestartScheduled Key = "admin.restart.scheduled"
	RestartWarning   Key = "admin.restart.warning"
	RestartExecuted  Key = "admin.restart.executed"
	RestartImmediate Key = "admin.restart.immediate"
	RestartSkipped   Key = "admin.restart.skipped"

	StopScheduled Key = "admin.stop.scheduled"
	StopWarning   Key = "admin.stop.warning"
	StopExecuted  Key = "admin.stop.executed"
	StopImmediate Key = "admin.stop.immediate"

	UpdateScheduled Key = "admin.update.scheduled"
	UpdateWarning   Key = "admin.update.warning"
	UpdateExecuted  Key = "admin.update.executed"
	UpdateImmediate Key = "admin.update.immediate"

	BackupStarted   Key = "admin.backup.started"
	BackupCompleted Key = "admin.backup.completed"

	ActionsCancelled Key = "admin.actions.cancelled"
	CommandExecuted  Key = "admin.command.executed"
	StatusReport     Key = "admin.status.report"
)

type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityCritical
)

// MinInterval is the minimum spacing between two dispatches of the same key.
// Critical events are never limited.
func (p Priority) MinInterval() time.Duration {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 30 * time.Second
	default:
		return 60 * time.Second
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// Definition binds an event key to its notification templates (either slot
// may be empty), a human description, and a priority class. The registry is
// loaded once and never mutated.
type Definition struct {
	Key            Key
	AdminTemplate  string
	PlayerTemplate string
	Description    string
	Priority       Priority
}

// Registry returns the static event table. Callers must treat it as
// read-only.
func Registry() map[Key]Definition {
	defs := []Definition{
		{ServerStarting, "server_starting_admin", "server_starting", "game server is starting", PriorityHigh},
		{ServerStarted, "server_started_admin", "server_started", "game server finished starting", PriorityHigh},
		{ServerStopped, "server_stopped_admin", "server_stopped", "game server stopped", PriorityHigh},
		{ServerRestarting, "server_restarting_admin", "server_restarting", "game server is restarting", PriorityHigh},
		{ServerCrashed, "server_crashed_admin", "server_crashed", "game server crashed", PriorityCritical},

		{RestartScheduled, "restart_scheduled_admin", "restart_scheduled", "restart was scheduled", PriorityHigh},
		{RestartWarning, "", "restart_warning", "staged warning before a scheduled restart", PriorityHigh},
		{RestartExecuted, "restart_executed_admin", "restart_executed", "scheduled restart fired", PriorityHigh},
		{RestartImmediate, "restart_immediate_admin", "restart_immediate", "immediate restart requested", PriorityHigh},
		{RestartSkipped, "restart_skipped_admin", "", "next automatic restart skipped", PriorityNormal},

		{StopScheduled, "stop_scheduled_admin", "stop_scheduled", "stop was scheduled", PriorityHigh},
		{StopWarning, "", "stop_warning", "staged warning before a scheduled stop", PriorityHigh},
		{StopExecuted, "stop_executed_admin", "stop_executed", "scheduled stop fired", PriorityHigh},
		{StopImmediate, "stop_immediate_admin", "stop_immediate", "immediate stop requested", PriorityHigh},

		{UpdateScheduled, "update_scheduled_admin", "update_scheduled", "update was scheduled", PriorityHigh},
		{UpdateWarning, "", "update_warning", "staged warning before a scheduled update", PriorityHigh},
		{UpdateExecuted, "update_executed_admin", "update_executed", "scheduled update fired", PriorityHigh},
		{UpdateImmediate, "update_immediate_admin", "update_immediate", "immediate update requested", PriorityHigh},

		{BackupStarted, "backup_started_admin", "", "backup started", PriorityNormal},
		{BackupCompleted, "backup_completed_admin", "", "backup finished", PriorityNormal},

		{ActionsCancelled, "actions_cancelled_admin", "actions_cancelled", "pending actions were cancelled", PriorityHigh},
		{CommandExecuted, "command_executed_admin", "", "admin command result", PriorityNormal},
		{StatusReport, "status_report_admin", "", "server status summary", PriorityNormal},
	}
	out := make(map[Key]Definition, len(defs))
	for _, d := range defs {
		out[d.Key] = d
	}
	return out
}
