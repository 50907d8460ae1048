package commands

import (
	"context"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"warden/internal/clock"
	"warden/internal/discord"
	"warden/internal/events"
)

const (
	// pollFloor is the process-wide minimum spacing between polls,
	// independent of how often the tick fires.
	pollFloor = 30 * time.Second

	// fetchLimit bounds one poll batch per channel.
	fetchLimit = 10

	// registryMax / registryEvict bound the processed-message registry:
	// once it exceeds registryMax entries, the registryEvict oldest (by
	// processed-at time) are dropped.
	registryMax   = 50
	registryEvict = 25
)

// Fetcher is the inbound slice of the Discord client.
type Fetcher interface {
	Messages(ctx context.Context, channelID, afterID string, limit int) ([]discord.Message, error)
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
}

// Dispatcher lets the ingestor report command failures back to chat.
type Dispatcher interface {
	Dispatch(ctx context.Context, key events.Key, vars map[string]string, opts events.DispatchOptions)
}

// Handler executes one parsed command. Errors (and panics) are caught by the
// ingestor and reported as a generic failure notification.
type Handler func(ctx context.Context, cmd Command) error

// Ingestor owns the polling baseline per channel and the processed-message
// registry, guaranteeing at-most-once command execution per message id
// within the retained window.
type Ingestor struct {
	log   zerolog.Logger
	clk   clock.Clock
	fetch Fetcher
	bus   Dispatcher

	mu        sync.Mutex
	baseline  map[string]string    // channel id -> newest processed message id
	processed map[string]time.Time // message id -> processed at
	lastPoll  time.Time
	handlers  map[Kind]Handler
}

func NewIngestor(fetch Fetcher, bus Dispatcher, clk clock.Clock, log zerolog.Logger) *Ingestor {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Ingestor{
		log:       log.With().Str("component", "commands").Logger(),
		clk:       clk,
		fetch:     fetch,
		bus:       bus,
		baseline:  map[string]string{},
		processed: map[string]time.Time{},
		handlers:  map[Kind]Handler{},
	}
}

// Register installs the handler for one command kind.
func (i *Ingestor) Register(kind Kind, h Handler) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handlers[kind] = h
}

// InitBaseline seeds the polling baseline with the most recent message per
// channel so history predating startup is never processed.
func (i *Ingestor) InitBaseline(ctx context.Context, channels []string) {
	for _, ch := range channels {
		msgs, err := i.fetch.Messages(ctx, ch, "", 1)
		if err != nil {
			i.log.Warn().Err(err).Str("channel", ch).Msg("baseline seed failed")
			continue
		}
		if len(msgs) > 0 {
			i.mu.Lock()
			i.baseline[ch] = msgs[0].ID
			i.mu.Unlock()
			i.log.Debug().Str("channel", ch).Str("baseline", msgs[0].ID).Msg("baseline seeded")
		}
	}
}

// LastPoll reports when the last effective poll ran.
func (i *Ingestor) LastPoll() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastPoll
}

// Poll fetches and processes new messages across channels. Calls closer than
// 30s to the previous effective poll are no-ops.
func (i *Ingestor) Poll(ctx context.Context, channels []string, allowedRoleIDs []string, guildID, prefix string) {
	now := i.clk.Now()

	i.mu.Lock()
	if !i.lastPoll.IsZero() && now.Sub(i.lastPoll) < pollFloor {
		i.mu.Unlock()
		return
	}
	i.lastPoll = now
	i.mu.Unlock()

	for _, ch := range channels {
		i.pollChannel(ctx, ch, allowedRoleIDs, guildID, prefix)
	}
}

func (i *Ingestor) pollChannel(ctx context.Context, channelID string, allowedRoleIDs []string, guildID, prefix string) {
	i.mu.Lock()
	after, ok := i.baseline[channelID]
	i.mu.Unlock()
	if !ok {
		// Channel appeared after startup (config reload): seed quietly,
		// process from the next poll on.
		i.InitBaseline(ctx, []string{channelID})
		return
	}

	msgs, err := i.fetch.Messages(ctx, channelID, after, fetchLimit)
	if err != nil {
		i.log.Warn().Err(err).Str("channel", channelID).Msg("message poll failed")
		return
	}
	// The API returns newest first; commands must run in send order.
	discord.SortAscending(msgs)

	for _, msg := range msgs {
		i.processMessage(ctx, channelID, msg, allowedRoleIDs, guildID, prefix)
	}
}

func (i *Ingestor) processMessage(ctx context.Context, channelID string, msg discord.Message, allowedRoleIDs []string, guildID, prefix string) {
	if msg.Author.Bot {
		// The bot's own notifications land in the command channels; advance
		// the baseline past them or every poll refetches the same window.
		i.mu.Lock()
		i.baseline[channelID] = msg.ID
		i.mu.Unlock()
		return
	}

	i.mu.Lock()
	_, seen := i.processed[msg.ID]
	i.mu.Unlock()
	if seen {
		return
	}

	roles := i.resolveRoles(ctx, msg, guildID)
	if !authorized(roles, allowedRoleIDs) {
		// Deliberately not marked processed and baseline not advanced: a
		// later permission grant could reprocess it if no newer message
		// moves the baseline past it first. No reply either, so command
		// existence never leaks to unauthorized users.
		i.log.Warn().Str("author", msg.Author.ID).Str("channel", channelID).Msg("unauthorized command dropped")
		return
	}

	now := i.clk.Now()
	i.mu.Lock()
	i.processed[msg.ID] = now
	i.baseline[channelID] = msg.ID
	i.pruneLocked()
	i.mu.Unlock()

	i.execute(ctx, channelID, msg, prefix)
}

func (i *Ingestor) resolveRoles(ctx context.Context, msg discord.Message, guildID string) []string {
	if msg.Member != nil {
		return msg.Member.Roles
	}
	if guildID == "" {
		return nil
	}
	roles, err := i.fetch.MemberRoles(ctx, guildID, msg.Author.ID)
	if err != nil {
		i.log.Warn().Err(err).Str("author", msg.Author.ID).Msg("role lookup failed")
		return nil
	}
	return roles
}

// authorized allows a sender whose roles intersect the allowed set. An empty
// allowed set is open/test mode.
func authorized(roles, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	for _, r := range roles {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func (i *Ingestor) execute(ctx context.Context, channelID string, msg discord.Message, prefix string) {
	fields := strings.Fields(msg.Content)
	if len(fields) == 0 {
		return
	}
	kind, ok := Match(fields[0], prefix)
	if !ok {
		i.log.Debug().Str("token", fields[0]).Msg("not a recognized command, ignoring")
		return
	}

	i.mu.Lock()
	h := i.handlers[kind]
	i.mu.Unlock()
	if h == nil {
		i.log.Warn().Str("command", kind.Word()).Msg("no handler registered")
		return
	}

	cmd := Command{
		Kind:      kind,
		Args:      fields[1:],
		AuthorID:  msg.Author.ID,
		ChannelID: channelID,
		MessageID: msg.ID,
	}
	i.log.Info().Str("command", kind.Word()).Str("author", msg.Author.ID).Strs("args", cmd.Args).Msg("executing command")

	if err := i.runHandler(ctx, h, cmd); err != nil {
		i.log.Error().Err(err).Str("command", kind.Word()).Msg("command failed")
		if i.bus != nil {
			i.bus.Dispatch(ctx, events.CommandExecuted, map[string]string{
				"command": kind.Word(),
				"result":  ":x: " + kind.Word() + " failed - check logs",
			}, events.DispatchOptions{SkipRateLimit: true})
		}
	}
}

// runHandler isolates handler panics so one bad command cannot take the poll
// loop down.
func (i *Ingestor) runHandler(ctx context.Context, h Handler, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			i.log.Error().Any("panic", r).Str("stack", string(debug.Stack())).Msg("command handler panicked")
			err = &panicError{val: r}
		}
	}()
	return h(ctx, cmd)
}

type panicError struct{ val any }

func (e *panicError) Error() string { return "handler panic" }

// pruneLocked evicts the oldest half of the registry once it grows past the
// cap. Caller holds i.mu.
func (i *Ingestor) pruneLocked() {
	if len(i.processed) <= registryMax {
		return
	}
	type entry struct {
		id string
		at time.Time
	}
	all := make([]entry, 0, len(i.processed))
	for id, at := range i.processed {
		all = append(all, entry{id, at})
	}
	sort.Slice(all, func(a, b int) bool { return all[a].at.Before(all[b].at) })
	for _, e := range all[:registryEvict] {
		delete(i.processed, e.id)
	}
}
