package events

import "time"

// historyRetention bounds how long last-dispatch stamps are kept.
const historyRetention = 24 * time.Hour

// Allowed decides whether an event may fire now given its priority and the
// last successful dispatch. It is a pure function so the policy is testable
// without a bus.
//
// A tie (elapsed == interval) still counts as limited.
func Allowed(p Priority, last time.Time, hasLast bool, now time.Time) bool {
	interval := p.MinInterval()
	if interval == 0 {
		return true
	}
	if !hasLast {
		return true
	}
	return now.Sub(last) > interval
}
