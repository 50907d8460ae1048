// Package commands polls the admin channels for chat commands, deduplicates
// and authorizes them, and fans parsed commands out to registered handlers.
package commands

import (
	"sort"
	"strings"
)

// Kind is the closed set of chat commands.
type Kind int

const (
	CmdStart Kind = iota
	CmdRestart
	CmdStop
	CmdUpdate
	CmdBackup
	CmdStatus
	CmdCancel
	CmdRestartSkip
)

// Word is the command token without the configurable prefix.
func (k Kind) Word() string {
	switch k {
	case CmdStart:
		return "server_start"
	case CmdRestart:
		return "server_restart"
	case CmdStop:
		return "server_stop"
	case CmdUpdate:
		return "server_update"
	case CmdBackup:
		return "server_backup"
	case CmdStatus:
		return "server_status"
	case CmdCancel:
		return "server_cancel"
	case CmdRestartSkip:
		return "server_restart_skip"
	default:
		return "unknown"
	}
}

var allKinds = []Kind{
	CmdStart, CmdRestart, CmdStop, CmdUpdate,
	CmdBackup, CmdStatus, CmdCancel, CmdRestartSkip,
}

// Match resolves the first token of a message against the command set.
// Matching is a case-sensitive prefix match on {prefix}{word}; longer words
// are tried first so server_restart_skip never falls into server_restart.
func Match(token, prefix string) (Kind, bool) {
	kinds := append([]Kind(nil), allKinds...)
	sort.Slice(kinds, func(i, j int) bool {
		return len(kinds[i].Word()) > len(kinds[j].Word())
	})
	for _, k := range kinds {
		if strings.HasPrefix(token, prefix+k.Word()) {
			return k, true
		}
	}
	return 0, false
}

// Command is one parsed, authorized chat command.
type Command struct {
	Kind      Kind
	Args      []string
	AuthorID  string
	ChannelID string
	MessageID string
}
