package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock reads and sleeps so the engine's timing rules
// (rate limiting, retry backoff, warning offsets) are deterministic in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real reads the system clock.
type Real struct{}

func (Real) Now() time.Time        { return time.Now() }
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a manually advanced clock for tests. Sleep advances the clock
// instead of blocking, so backoff paths run instantly.
type Fake struct {
	mu  sync.Mutex
	now time.Time

	// Slept records every Sleep call in order.
	Slept []time.Duration
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d > 0 {
		f.now = f.now.Add(d)
	}
	f.Slept = append(f.Slept, d)
}

// Advance moves the clock forward without recording a sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
