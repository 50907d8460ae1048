package events

import (
	"strings"
	"time"

	"warden/internal/config"
	"warden/internal/discord"
)

// Embed color values (decimal Discord colors).
const (
	colorInfo     = 0x2196F3 // blue
	colorNotice   = 0xFFC107 // amber
	colorWarning  = 0xFF9800 // orange
	colorCritical = 0xF44336 // red
	colorSuccess  = 0x4CAF50 // green
)

// Template is one outbound notification shape. Title and Text may contain
// {varName} placeholders filled from the dispatch context; {timestamp} is
// reserved and always filled with the dispatch time.
type Template struct {
	Title string
	Text  string
	Color int
}

// Render substitutes placeholders and produces the wire embed.
func (t Template) Render(vars map[string]string, now time.Time) discord.Embed {
	sub := func(s string) string {
		for name, val := range vars {
			s = strings.ReplaceAll(s, "{"+name+"}", val)
		}
		return strings.ReplaceAll(s, "{timestamp}", now.Format("2006-01-02 15:04:05 MST"))
	}
	return discord.Embed{
		Title:       sub(t.Title),
		Description: sub(t.Text),
		Color:       t.Color,
		Timestamp:   now.UTC().Format(time.RFC3339),
		Footer:      &discord.EmbedFooter{Text: "warden"},
	}
}

// templateSet is the merged view of built-in templates and config overrides,
// plus per-template enable flags.
type templateSet struct {
	templates map[string]Template
	disabled  map[string]bool
}

func newTemplateSet(overrides map[string]config.Notification) templateSet {
	ts := templateSet{
		templates: defaultTemplates(),
		disabled:  map[string]bool{},
	}
	for key, n := range overrides {
		if !n.IsEnabled() {
			ts.disabled[key] = true
		}
		t, ok := ts.templates[key]
		if !ok {
			continue
		}
		if n.Title != "" {
			t.Title = n.Title
		}
		if n.Text != "" {
			t.Text = n.Text
		}
		if n.Color != 0 {
			t.Color = n.Color
		}
		ts.templates[key] = t
	}
	return ts
}

func (ts templateSet) lookup(key string) (Template, bool) {
	if key == "" || ts.disabled[key] {
		return Template{}, false
	}
	t, ok := ts.templates[key]
	return t, ok
}

func defaultTemplates() map[string]Template {
	return map[string]Template{
		"server_starting":       {"Server starting", "The server is starting up, hang tight.", colorInfo},
		"server_starting_admin": {"Server starting", "Startup initiated at {timestamp}.", colorInfo},

		"server_started":       {"Server online", "The server is up, you can connect now.", colorSuccess},
		"server_started_admin": {"Server online", "Startup completed at {timestamp}.", colorSuccess},

		"server_stopped":       {"Server offline", "The server has been stopped.", colorNotice},
		"server_stopped_admin": {"Server stopped", "Stopped at {timestamp}.", colorNotice},

		"server_restarting":       {"Server restarting", "The server is restarting, back in a few minutes.", colorNotice},
		"server_restarting_admin": {"Server restarting", "Restart in progress at {timestamp}.", colorNotice},

		"server_crashed":       {"Server crashed", "The server went down unexpectedly. A restart is on the way.", colorCritical},
		"server_crashed_admin": {":rotating_light: Server crashed", "Crash detected at {timestamp}: {reason}", colorCritical},

		"restart_scheduled":       {"Restart scheduled", "The server will restart in {minutes} minutes.", colorNotice},
		"restart_scheduled_admin": {"Restart scheduled", "Restart in {minutes} minutes (requested by {requester}).", colorNotice},
		"restart_warning":         {"Restart incoming", "Server restart in {minutes} minutes, find a safe spot.", colorWarning},
		"restart_executed":        {"Restarting now", "The server is restarting now.", colorWarning},
		"restart_executed_admin":  {"Restart executed", "Scheduled restart fired at {timestamp}.", colorWarning},
		"restart_immediate":       {"Restarting now", "The server is restarting right now.", colorWarning},
		"restart_immediate_admin": {"Immediate restart", "Restart requested by {requester}.", colorWarning},
		"restart_skipped_admin":   {"Restart skipped", "The next automatic restart will be skipped.", colorInfo},

		"stop_scheduled":       {"Shutdown scheduled", "The server will shut down in {minutes} minutes.", colorNotice},
		"stop_scheduled_admin": {"Stop scheduled", "Stop in {minutes} minutes (requested by {requester}).", colorNotice},
		"stop_warning":         {"Shutdown incoming", "Server shutdown in {minutes} minutes.", colorWarning},
		"stop_executed":        {"Shutting down", "The server is shutting down now.", colorWarning},
		"stop_executed_admin":  {"Stop executed", "Scheduled stop fired at {timestamp}.", colorWarning},
		"stop_immediate":       {"Shutting down", "The server is shutting down right now.", colorWarning},
		"stop_immediate_admin": {"Immediate stop", "Stop requested by {requester}.", colorWarning},

		"update_scheduled":       {"Update scheduled", "The server will update in {minutes} minutes.", colorNotice},
		"update_scheduled_admin": {"Update scheduled", "Update in {minutes} minutes (requested by {requester}).", colorNotice},
		"update_warning":         {"Update incoming", "Server update in {minutes} minutes.", colorWarning},
		"update_executed":        {"Updating", "The server is updating now, back soon.", colorWarning},
		"update_executed_admin":  {"Update executed", "Scheduled update fired at {timestamp}.", colorWarning},
		"update_immediate":       {"Updating", "The server is updating right now.", colorWarning},
		"update_immediate_admin": {"Immediate update", "Update requested by {requester}.", colorWarning},

		"backup_started_admin":   {"Backup started", "World backup started at {timestamp}.", colorInfo},
		"backup_completed_admin": {"Backup completed", "World backup finished: {result}", colorSuccess},

		"actions_cancelled":       {"Cancelled", "Scheduled actions cancelled: {actions}", colorInfo},
		"actions_cancelled_admin": {"Actions cancelled", "Cancelled by {requester}: {actions}", colorInfo},

		"command_executed_admin": {"Command", "{command}: {result}", colorInfo},
		"status_report_admin":    {"Server status", "{status}", colorInfo},
	}
}
