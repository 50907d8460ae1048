package actions

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"warden/internal/clock"
	"warden/internal/events"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	events []events.Key
	vars   []map[string]string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, key events.Key, vars map[string]string, _ events.DispatchOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, key)
	f.vars = append(f.vars, vars)
}

func (f *fakeDispatcher) count(key events.Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.events {
		if k == key {
			n++
		}
	}
	return n
}

type fakeExecutor struct {
	restarts, stops, updates int
	err                      error
}

func (f *fakeExecutor) Restart(context.Context) error { f.restarts++; return f.err }
func (f *fakeExecutor) Stop(context.Context) error    { f.stops++; return f.err }
func (f *fakeExecutor) Update(context.Context) error  { f.updates++; return f.err }

func newTestScheduler(t *testing.T) (*Scheduler, *fakeDispatcher, *fakeExecutor, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	disp := &fakeDispatcher{}
	exec := &fakeExecutor{}
	return NewScheduler(disp, exec, clk, zerolog.Nop()), disp, exec, clk
}

func TestScheduleValidation(t *testing.T) {
	t.Parallel()
	s, disp, _, _ := newTestScheduler(t)
	ctx := context.Background()

	for _, bad := range []int{0, -5, 181} {
		if err := s.Schedule(ctx, KindRestart, bad, "admin"); err != ErrDelayOutOfRange {
			t.Fatalf("Schedule(%d) = %v, want ErrDelayOutOfRange", bad, err)
		}
	}
	if err := s.Schedule(ctx, KindRestart, 20, "admin"); err != nil {
		t.Fatalf("Schedule(20) = %v", err)
	}
	if err := s.Schedule(ctx, KindRestart, 20, "admin"); err != ErrAlreadyScheduled {
		t.Fatalf("second Schedule = %v, want ErrAlreadyScheduled", err)
	}
	if got := disp.count(events.RestartScheduled); got != 1 {
		t.Fatalf("scheduled events = %d, want 1", got)
	}
}

func TestWarningStagingAndExecution(t *testing.T) {
	t.Parallel()
	s, disp, exec, clk := newTestScheduler(t)
	ctx := context.Background()

	if err := s.Schedule(ctx, KindRestart, 20, "admin"); err != nil {
		t.Fatal(err)
	}

	clk.Advance(9 * time.Minute)
	s.Tick(ctx)
	if got := disp.count(events.RestartWarning); got != 0 {
		t.Fatalf("warnings at t+9m = %d, want 0", got)
	}

	clk.Advance(time.Minute) // t+10m, trigger-10m boundary
	s.Tick(ctx)
	if got := disp.count(events.RestartWarning); got != 1 {
		t.Fatalf("warnings at t+10m = %d, want 1", got)
	}

	// Repeated ticks at the same instant must not re-fire.
	s.Tick(ctx)
	s.Tick(ctx)
	if got := disp.count(events.RestartWarning); got != 1 {
		t.Fatalf("warnings after repeat ticks = %d, want 1", got)
	}

	clk.Advance(5 * time.Minute) // t+15m
	s.Tick(ctx)
	clk.Advance(4 * time.Minute) // t+19m
	s.Tick(ctx)
	if got := disp.count(events.RestartWarning); got != 3 {
		t.Fatalf("warnings after all stages = %d, want 3", got)
	}

	clk.Advance(time.Minute) // t+20m
	s.Tick(ctx)
	if got := disp.count(events.RestartExecuted); got != 1 {
		t.Fatalf("executed events = %d, want 1", got)
	}
	if exec.restarts != 1 {
		t.Fatalf("executor restarts = %d, want 1", exec.restarts)
	}
	if len(s.Describe()) != 0 {
		t.Fatalf("Describe after execution = %v, want empty", s.Describe())
	}

	// Further ticks are idle.
	clk.Advance(time.Hour)
	s.Tick(ctx)
	if got := disp.count(events.RestartExecuted); got != 1 {
		t.Fatalf("executed events after idle tick = %d, want 1", got)
	}
}

func TestShortDelaySkipsStaleWarnings(t *testing.T) {
	t.Parallel()
	s, disp, exec, clk := newTestScheduler(t)
	ctx := context.Background()

	// A 5 minute delay leaves the 10m and 5m thresholds behind or at the
	// schedule instant; only the 1 minute warning remains.
	_ = s.Schedule(ctx, KindRestart, 5, "admin")
	s.Tick(ctx)
	if got := disp.count(events.RestartWarning); got != 0 {
		t.Fatalf("warnings at schedule time = %d, want 0", got)
	}

	clk.Advance(4 * time.Minute)
	s.Tick(ctx)
	if got := disp.count(events.RestartWarning); got != 1 {
		t.Fatalf("warnings at t+4m = %d, want 1", got)
	}

	clk.Advance(time.Minute)
	s.Tick(ctx)
	if got := disp.count(events.RestartExecuted); got != 1 || exec.restarts != 1 {
		t.Fatalf("executed = %d restarts = %d, want 1/1", got, exec.restarts)
	}
}

func TestCancelClearsPendingState(t *testing.T) {
	t.Parallel()
	s, disp, exec, clk := newTestScheduler(t)
	ctx := context.Background()

	_ = s.Schedule(ctx, KindRestart, 15, "admin")
	_ = s.Schedule(ctx, KindStop, 30, "admin")

	cancelled := s.Cancel(ctx, "admin", KindRestart)
	if len(cancelled) != 1 || cancelled[0] != KindRestart {
		t.Fatalf("cancelled = %v, want [restart]", cancelled)
	}
	if got := disp.count(events.ActionsCancelled); got != 1 {
		t.Fatalf("cancel events = %d, want 1", got)
	}

	// The cancelled restart must never warn or execute.
	clk.Advance(2 * time.Hour)
	s.Tick(ctx)
	if got := disp.count(events.RestartWarning); got != 0 {
		t.Fatalf("restart warnings after cancel = %d, want 0", got)
	}
	if got := disp.count(events.RestartExecuted); got != 0 {
		t.Fatalf("restart executions after cancel = %d, want 0", got)
	}
	if exec.restarts != 0 {
		t.Fatalf("executor restarts after cancel = %d, want 0", exec.restarts)
	}
	// The stop was not cancelled and fires normally.
	if exec.stops != 1 {
		t.Fatalf("executor stops = %d, want 1", exec.stops)
	}
}

func TestCancelAllReportsRemainingTime(t *testing.T) {
	t.Parallel()
	s, disp, _, _ := newTestScheduler(t)
	ctx := context.Background()

	_ = s.Schedule(ctx, KindRestart, 15, "admin")
	_ = s.Schedule(ctx, KindUpdate, 60, "admin")

	cancelled := s.Cancel(ctx, "admin")
	if len(cancelled) != 2 {
		t.Fatalf("cancelled = %v, want two kinds", cancelled)
	}

	disp.mu.Lock()
	defer disp.mu.Unlock()
	last := disp.vars[len(disp.vars)-1]
	actionsVar := last["actions"]
	if actionsVar == "" {
		t.Fatal("consolidated cancel event missing actions context")
	}
	for _, want := range []string{"restart (15m left)", "update (60m left)"} {
		if !strings.Contains(actionsVar, want) {
			t.Fatalf("actions %q missing %q", actionsVar, want)
		}
	}
}

func TestCancelNothingPending(t *testing.T) {
	t.Parallel()
	s, disp, _, _ := newTestScheduler(t)

	if got := s.Cancel(context.Background(), "admin"); got != nil {
		t.Fatalf("Cancel with nothing pending = %v, want nil", got)
	}
	if got := disp.count(events.ActionsCancelled); got != 0 {
		t.Fatalf("cancel events = %d, want 0", got)
	}
}

func TestImmediateBypassesScheduling(t *testing.T) {
	t.Parallel()
	s, disp, exec, _ := newTestScheduler(t)
	ctx := context.Background()

	if err := s.Immediate(ctx, KindUpdate, "admin"); err != nil {
		t.Fatal(err)
	}
	if got := disp.count(events.UpdateImmediate); got != 1 {
		t.Fatalf("immediate events = %d, want 1", got)
	}
	if exec.updates != 1 {
		t.Fatalf("executor updates = %d, want 1", exec.updates)
	}
	if len(s.Describe()) != 0 {
		t.Fatal("immediate action must not leave pending state")
	}
}

func TestDescribeCeiling(t *testing.T) {
	t.Parallel()
	s, _, _, clk := newTestScheduler(t)
	ctx := context.Background()

	_ = s.Schedule(ctx, KindRestart, 10, "admin")
	clk.Advance(30 * time.Second)

	got := s.Describe()
	// 9m30s remaining rounds up to 10 whole minutes.
	if got[KindRestart] != 10 {
		t.Fatalf("Describe remaining = %d, want 10", got[KindRestart])
	}

	clk.Advance(time.Minute)
	if got := s.Describe()[KindRestart]; got != 9 {
		t.Fatalf("Describe remaining = %d, want 9", got)
	}
}

func TestExecutorFailureReportsToChat(t *testing.T) {
	t.Parallel()
	s, disp, exec, clk := newTestScheduler(t)
	exec.err = context.DeadlineExceeded
	ctx := context.Background()

	_ = s.Schedule(ctx, KindStop, 1, "admin")
	clk.Advance(time.Minute)
	s.Tick(ctx)

	if got := disp.count(events.CommandExecuted); got != 1 {
		t.Fatalf("failure reports = %d, want 1", got)
	}
}
