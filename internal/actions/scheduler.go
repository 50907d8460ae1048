// Package actions tracks pending restart/stop/update operations and fires
// staged warnings before executing them.
package actions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"warden/internal/clock"
	"warden/internal/events"
)

// Kind enumerates the schedulable operations. At most one pending instance
// exists per kind.
type Kind int

const (
	KindRestart Kind = iota
	KindStop
	KindUpdate
)

func (k Kind) String() string {
	switch k {
	case KindRestart:
		return "restart"
	case KindStop:
		return "stop"
	case KindUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// MaxDelayMinutes bounds how far ahead an action may be scheduled.
const MaxDelayMinutes = 180

// warningOffsets are the staged warning thresholds, largest first.
var warningOffsets = []time.Duration{10 * time.Minute, 5 * time.Minute, time.Minute}

var (
	ErrAlreadyScheduled = errors.New("action already scheduled")
	ErrDelayOutOfRange  = fmt.Errorf("delay must be between 1 and %d minutes", MaxDelayMinutes)
)

// Executor performs the real server operation when a scheduled action fires.
type Executor interface {
	Restart(ctx context.Context) error
	Stop(ctx context.Context) error
	Update(ctx context.Context) error
}

// Dispatcher is the slice of the event bus the scheduler emits through.
type Dispatcher interface {
	Dispatch(ctx context.Context, key events.Key, vars map[string]string, opts events.DispatchOptions)
}

type action struct {
	triggerAt   time.Time
	scheduledAt time.Time
	warned      map[time.Duration]bool
}

// Scheduler owns the pending actions. All mutation goes through its mutex;
// ticks and command handlers share one logical thread of control but the
// mutex keeps that an invariant rather than an accident.
type Scheduler struct {
	log  zerolog.Logger
	clk  clock.Clock
	bus  Dispatcher
	exec Executor

	mu      sync.Mutex
	pending map[Kind]*action
}

func NewScheduler(bus Dispatcher, exec Executor, clk clock.Clock, log zerolog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{
		log:     log.With().Str("component", "actions").Logger(),
		clk:     clk,
		bus:     bus,
		exec:    exec,
		pending: map[Kind]*action{},
	}
}

// Schedule creates the pending instance for kind. Valid only when kind is
// idle and 0 < delayMinutes <= MaxDelayMinutes.
func (s *Scheduler) Schedule(ctx context.Context, kind Kind, delayMinutes int, requester string) error {
	if delayMinutes <= 0 || delayMinutes > MaxDelayMinutes {
		return ErrDelayOutOfRange
	}
	now := s.clk.Now()

	s.mu.Lock()
	if s.pending[kind] != nil {
		s.mu.Unlock()
		return ErrAlreadyScheduled
	}
	a := &action{
		triggerAt:   now.Add(time.Duration(delayMinutes) * time.Minute),
		scheduledAt: now,
		warned:      map[time.Duration]bool{},
	}
	// Thresholds already behind us never fire: a 5 minute delay must not
	// produce a "10 minutes" warning, and the scheduled event itself covers
	// the threshold coinciding with now.
	for _, off := range warningOffsets {
		if !a.triggerAt.Add(-off).After(now) {
			a.warned[off] = true
		}
	}
	s.pending[kind] = a
	s.mu.Unlock()

	s.log.Info().Str("kind", kind.String()).Int("minutes", delayMinutes).Str("requester", requester).Msg("action scheduled")
	s.bus.Dispatch(ctx, scheduledEvent(kind), map[string]string{
		"minutes":   fmt.Sprintf("%d", delayMinutes),
		"requester": requester,
	}, events.DispatchOptions{})
	return nil
}

// Tick advances every pending action: staged warnings fire once when their
// threshold is crossed, and at the trigger time the terminal event fires,
// the executor runs, and the instance is discarded.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clk.Now()

	type due struct {
		kind    Kind
		warns   []time.Duration
		execute bool
	}
	var work []due

	s.mu.Lock()
	for kind, a := range s.pending {
		if a == nil {
			continue
		}
		d := due{kind: kind}
		if !now.Before(a.triggerAt) {
			d.execute = true
			delete(s.pending, kind)
		} else {
			for _, off := range warningOffsets {
				if !a.warned[off] && !now.Before(a.triggerAt.Add(-off)) {
					a.warned[off] = true
					d.warns = append(d.warns, off)
				}
			}
		}
		if d.execute || len(d.warns) > 0 {
			work = append(work, d)
		}
	}
	s.mu.Unlock()

	// Stable order so restart/stop/update interleave deterministically.
	sort.Slice(work, func(i, j int) bool { return work[i].kind < work[j].kind })

	for _, d := range work {
		for _, off := range d.warns {
			minutes := int(off / time.Minute)
			s.bus.Dispatch(ctx, warningEvent(d.kind), map[string]string{
				"minutes": fmt.Sprintf("%d", minutes),
			}, events.DispatchOptions{})
		}
		if d.execute {
			s.bus.Dispatch(ctx, executedEvent(d.kind), nil, events.DispatchOptions{})
			s.runExecutor(ctx, d.kind)
		}
	}
}

// Immediate bypasses scheduling: terminal event plus synchronous execution.
func (s *Scheduler) Immediate(ctx context.Context, kind Kind, requester string) error {
	s.bus.Dispatch(ctx, immediateEvent(kind), map[string]string{"requester": requester}, events.DispatchOptions{})
	return s.execute(ctx, kind)
}

// Cancel clears the pending instances for the given kinds (all pending when
// none are named) without firing their terminal events. One consolidated
// cancellation event reports what was cancelled and the time that remained.
// Returns the cancelled kinds.
func (s *Scheduler) Cancel(ctx context.Context, requester string, kinds ...Kind) []Kind {
	now := s.clk.Now()
	if len(kinds) == 0 {
		kinds = []Kind{KindRestart, KindStop, KindUpdate}
	}

	type cancelled struct {
		kind      Kind
		remaining time.Duration
	}
	var dropped []cancelled

	s.mu.Lock()
	for _, kind := range kinds {
		a := s.pending[kind]
		if a == nil {
			continue
		}
		dropped = append(dropped, cancelled{kind: kind, remaining: a.triggerAt.Sub(now)})
		delete(s.pending, kind)
	}
	s.mu.Unlock()

	if len(dropped) == 0 {
		return nil
	}

	parts := make([]string, 0, len(dropped))
	out := make([]Kind, 0, len(dropped))
	for _, c := range dropped {
		parts = append(parts, fmt.Sprintf("%s (%dm left)", c.kind, remainingMinutes(c.remaining)))
		out = append(out, c.kind)
	}
	s.log.Info().Str("cancelled", strings.Join(parts, ", ")).Str("requester", requester).Msg("actions cancelled")
	s.bus.Dispatch(ctx, events.ActionsCancelled, map[string]string{
		"actions":   strings.Join(parts, ", "),
		"requester": requester,
	}, events.DispatchOptions{})
	return out
}

// Describe reports the remaining whole minutes (ceiling) per pending kind.
// Read-only; no side effects.
func (s *Scheduler) Describe() map[Kind]int {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[Kind]int{}
	for kind, a := range s.pending {
		if a != nil {
			out[kind] = remainingMinutes(a.triggerAt.Sub(now))
		}
	}
	return out
}

func (s *Scheduler) runExecutor(ctx context.Context, kind Kind) {
	if err := s.execute(ctx, kind); err != nil {
		s.log.Error().Err(err).Str("kind", kind.String()).Msg("scheduled action failed")
		s.bus.Dispatch(ctx, events.CommandExecuted, map[string]string{
			"command": kind.String(),
			"result":  ":x: " + kind.String() + " failed - check logs",
		}, events.DispatchOptions{SkipRateLimit: true})
	}
}

func (s *Scheduler) execute(ctx context.Context, kind Kind) error {
	if s.exec == nil {
		return errors.New("no executor configured")
	}
	switch kind {
	case KindRestart:
		return s.exec.Restart(ctx)
	case KindStop:
		return s.exec.Stop(ctx)
	case KindUpdate:
		return s.exec.Update(ctx)
	default:
		return fmt.Errorf("unknown action kind %d", kind)
	}
}

func remainingMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

func scheduledEvent(k Kind) events.Key {
	switch k {
	case KindStop:
		return events.StopScheduled
	case KindUpdate:
		return events.UpdateScheduled
	default:
		return events.RestartScheduled
	}
}

func warningEvent(k Kind) events.Key {
	switch k {
	case KindStop:
		return events.StopWarning
	case KindUpdate:
		return events.UpdateWarning
	default:
		return events.RestartWarning
	}
}

func executedEvent(k Kind) events.Key {
	switch k {
	case KindStop:
		return events.StopExecuted
	case KindUpdate:
		return events.UpdateExecuted
	default:
		return events.RestartExecuted
	}
}

func immediateEvent(k Kind) events.Key {
	switch k {
	case KindStop:
		return events.StopImmediate
	case KindUpdate:
		return events.UpdateImmediate
	default:
		return events.RestartImmediate
	}
}
