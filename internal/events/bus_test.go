package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"warden/internal/clock"
	"warden/internal/config"
	"warden/internal/discord"
)

type fakeSender struct {
	mu    sync.Mutex
	sends []sentMsg
}

type sentMsg struct {
	channels []string
	msg      discord.Outbound
}

func (f *fakeSender) Send(_ context.Context, channelIDs []string, msg discord.Outbound) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentMsg{channels: channelIDs, msg: msg})
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func newTestBus(t *testing.T, notifications map[string]config.Notification) (*Bus, *fakeSender, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	sender := &fakeSender{}
	bus := NewBus(sender, Destinations{Admin: []string{"admin-1"}, Player: []string{"player-1"}}, notifications, clk, zerolog.Nop())
	return bus, sender, clk
}

func TestDispatchRateLimiting(t *testing.T) {
	t.Parallel()
	bus, sender, clk := newTestBus(t, nil)
	ctx := context.Background()

	// BackupStarted is normal priority with one (admin) template slot.
	bus.Dispatch(ctx, BackupStarted, nil, DispatchOptions{})
	if got := sender.count(); got != 1 {
		t.Fatalf("first dispatch: %d sends, want 1", got)
	}

	// Within the 60s window: suppressed.
	clk.Advance(30 * time.Second)
	bus.Dispatch(ctx, BackupStarted, nil, DispatchOptions{})
	if got := sender.count(); got != 1 {
		t.Fatalf("suppressed dispatch: %d sends, want 1", got)
	}

	// Past the window: allowed again.
	clk.Advance(31 * time.Second)
	bus.Dispatch(ctx, BackupStarted, nil, DispatchOptions{})
	if got := sender.count(); got != 2 {
		t.Fatalf("after interval: %d sends, want 2", got)
	}
}

func TestDispatchCriticalNeverSuppressed(t *testing.T) {
	t.Parallel()
	bus, sender, _ := newTestBus(t, nil)
	ctx := context.Background()

	// ServerCrashed is critical and has both template slots: 2 sends each.
	for i := 0; i < 3; i++ {
		bus.Dispatch(ctx, ServerCrashed, map[string]string{"reason": "boom"}, DispatchOptions{})
	}
	if got := sender.count(); got != 6 {
		t.Fatalf("critical dispatches: %d sends, want 6", got)
	}
}

func TestDispatchSkipRateLimit(t *testing.T) {
	t.Parallel()
	bus, sender, _ := newTestBus(t, nil)
	ctx := context.Background()

	bus.Dispatch(ctx, CommandExecuted, map[string]string{"command": "x", "result": "ok"}, DispatchOptions{SkipRateLimit: true})
	bus.Dispatch(ctx, CommandExecuted, map[string]string{"command": "y", "result": "ok"}, DispatchOptions{SkipRateLimit: true})
	if got := sender.count(); got != 2 {
		t.Fatalf("skip-rate-limit dispatches: %d sends, want 2", got)
	}
}

func TestDispatchUnknownKeyIsNoop(t *testing.T) {
	t.Parallel()
	bus, sender, _ := newTestBus(t, nil)

	bus.Dispatch(context.Background(), Key("no.such.event"), nil, DispatchOptions{})
	if got := sender.count(); got != 0 {
		t.Fatalf("unknown key produced %d sends, want 0", got)
	}
}

func TestDisabledTemplateSkipsDelivery(t *testing.T) {
	t.Parallel()
	off := false
	bus, sender, _ := newTestBus(t, map[string]config.Notification{
		"backup_started_admin": {Enabled: &off},
	})

	bus.Dispatch(context.Background(), BackupStarted, nil, DispatchOptions{})
	if got := sender.count(); got != 0 {
		t.Fatalf("disabled template produced %d sends, want 0", got)
	}
}

func TestHandlersRunInOrderAndPanicsAreIsolated(t *testing.T) {
	t.Parallel()
	bus, sender, _ := newTestBus(t, nil)
	ctx := context.Background()

	var order []int
	bus.RegisterHandler(BackupStarted, func(context.Context, Key, map[string]string) {
		order = append(order, 1)
	})
	bus.RegisterHandler(BackupStarted, func(context.Context, Key, map[string]string) {
		panic("handler exploded")
	})
	bus.RegisterHandler(BackupStarted, func(context.Context, Key, map[string]string) {
		order = append(order, 3)
	})

	bus.Dispatch(ctx, BackupStarted, nil, DispatchOptions{})

	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Fatalf("handler order = %v, want [1 3]", order)
	}
	// The panicking handler must not have blocked the notification either.
	if got := sender.count(); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
}

func TestHandlerMayDispatchReentrantly(t *testing.T) {
	t.Parallel()
	bus, sender, _ := newTestBus(t, nil)
	ctx := context.Background()

	bus.RegisterHandler(BackupStarted, func(hctx context.Context, _ Key, _ map[string]string) {
		bus.Dispatch(hctx, CommandExecuted, map[string]string{"command": "c", "result": "r"}, DispatchOptions{SkipRateLimit: true})
	})

	done := make(chan struct{})
	go func() {
		bus.Dispatch(ctx, BackupStarted, nil, DispatchOptions{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("re-entrant dispatch deadlocked")
	}
	if got := sender.count(); got != 2 {
		t.Fatalf("sends = %d, want 2", got)
	}
}

func TestHistoryPruning(t *testing.T) {
	t.Parallel()
	bus, _, clk := newTestBus(t, nil)
	ctx := context.Background()

	bus.Dispatch(ctx, BackupStarted, nil, DispatchOptions{})
	if _, ok := bus.LastDispatch(BackupStarted); !ok {
		t.Fatal("expected history entry after dispatch")
	}

	clk.Advance(25 * time.Hour)
	bus.Dispatch(ctx, BackupCompleted, map[string]string{"result": "ok"}, DispatchOptions{})

	if _, ok := bus.LastDispatch(BackupStarted); ok {
		t.Fatal("expected stale history entry to be pruned")
	}
}
