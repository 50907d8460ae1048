package events

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"warden/internal/clock"
	"warden/internal/config"
	"warden/internal/discord"
)

// Sender is the outbound delivery path. *discord.Client implements it.
type Sender interface {
	Send(ctx context.Context, channelIDs []string, msg discord.Outbound)
}

// Handler is a per-key side effect. Handlers run synchronously after
// notifications, in registration order; a failing handler never blocks the
// others or the notification path.
type Handler func(ctx context.Context, key Key, vars map[string]string)

// Destinations names the notification channels per audience.
type Destinations struct {
	Admin  []string
	Player []string
}

// DispatchOptions tweak one dispatch. Force is meant for critical,
// at-most-once-per-incident events (crash reports); SkipRateLimit for
// direct command replies.
type DispatchOptions struct {
	SkipRateLimit bool
	Force         bool
}

// Bus holds the static event registry and the per-key dispatch history, and
// routes allowed events to the delivery client and registered handlers.
type Bus struct {
	log    zerolog.Logger
	clk    clock.Clock
	sender Sender

	mu        sync.Mutex
	registry  map[Key]Definition
	templates templateSet
	dests     Destinations
	history   map[Key]time.Time
	handlers  map[Key][]Handler
}

func NewBus(sender Sender, dests Destinations, notifications map[string]config.Notification, clk clock.Clock, log zerolog.Logger) *Bus {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Bus{
		log:       log.With().Str("component", "events").Logger(),
		clk:       clk,
		sender:    sender,
		registry:  Registry(),
		templates: newTemplateSet(notifications),
		dests:     dests,
		history:   map[Key]time.Time{},
		handlers:  map[Key][]Handler{},
	}
}

// RegisterHandler appends a side-effect handler for key.
func (b *Bus) RegisterHandler(key Key, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[key] = append(b.handlers[key], h)
}

// Apply swaps in the notification section from a reloaded config.
func (b *Bus) Apply(notifications map[string]config.Notification, dests Destinations) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.templates = newTemplateSet(notifications)
	b.dests = dests
}

// Dispatch routes one event. It never returns an error: unknown keys and
// delivery problems are logged only. Rate limiting is skipped for critical
// priority and for SkipRateLimit/Force dispatches.
func (b *Bus) Dispatch(ctx context.Context, key Key, vars map[string]string, opts DispatchOptions) {
	if b == nil {
		return
	}
	now := b.clk.Now()
	if vars == nil {
		vars = map[string]string{}
	}

	b.mu.Lock()
	def, ok := b.registry[key]
	if !ok {
		b.mu.Unlock()
		b.log.Warn().Str("event", string(key)).Msg("dispatch of unregistered event ignored")
		return
	}

	if !opts.SkipRateLimit && !opts.Force && def.Priority != PriorityCritical {
		last, has := b.history[key]
		if !Allowed(def.Priority, last, has, now) {
			b.mu.Unlock()
			b.log.Debug().Str("event", string(key)).Str("priority", def.Priority.String()).Msg("event rate limited")
			return
		}
	}
	b.history[key] = now
	b.pruneHistoryLocked(now)

	adminTmpl, adminOK := b.templates.lookup(def.AdminTemplate)
	playerTmpl, playerOK := b.templates.lookup(def.PlayerTemplate)
	dests := b.dests
	handlers := append([]Handler(nil), b.handlers[key]...)
	b.mu.Unlock()

	// Network and handler work happens outside the lock so handlers may
	// dispatch further events without deadlocking.
	sent := 0
	if b.sender != nil {
		if adminOK {
			b.sender.Send(ctx, dests.Admin, discord.Outbound{Embeds: []discord.Embed{adminTmpl.Render(vars, now)}})
			sent++
		}
		if playerOK {
			b.sender.Send(ctx, dests.Player, discord.Outbound{Embeds: []discord.Embed{playerTmpl.Render(vars, now)}})
			sent++
		}
	}
	b.log.Debug().Str("event", string(key)).Int("notifications", sent).Msg("event dispatched")

	for i, h := range handlers {
		b.runHandler(ctx, key, vars, h, i)
	}
}

func (b *Bus) runHandler(ctx context.Context, key Key, vars map[string]string, h Handler, idx int) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("event", string(key)).Int("handler", idx).Any("panic", r).
				Str("stack", string(debug.Stack())).Msg("event handler panicked")
		}
	}()
	h(ctx, key, vars)
}

// LastDispatch reports when key last fired. Used by status reporting.
func (b *Bus) LastDispatch(key Key) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.history[key]
	return t, ok
}

func (b *Bus) pruneHistoryLocked(now time.Time) {
	for k, t := range b.history {
		if now.Sub(t) > historyRetention {
			delete(b.history, k)
		}
	}
}
