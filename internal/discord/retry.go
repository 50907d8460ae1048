package discord

import (
	"errors"
	"time"
)

// MaxAttempts is the hard cap on delivery attempts per destination.
const MaxAttempts = 5

// Decision is the outcome of the retry policy for one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// NextDelay is the single retry policy for outbound delivery. attempt is
// 1-based (the attempt that just failed). The taxonomy:
//
//   - 429: honor the server Retry-After when present, otherwise exponential
//     backoff min(2^attempt, 30)s; either way add a 1s safety buffer.
//   - 403/404: permission/not-found, never retried.
//   - 400: malformed payload, retrying cannot help.
//   - anything else (network, 5xx, timeout): min(1s * 2^attempt, 30s).
func NextDelay(err error, attempt int) Decision {
	var re *RESTError
	if errors.As(err, &re) {
		switch {
		case re.Status == 429:
			d := re.RetryAfter
			if d <= 0 {
				d = expBackoff(time.Second, attempt, 30*time.Second)
			}
			return Decision{Retry: true, Delay: d + time.Second}
		case re.Status == 403, re.Status == 404:
			return Decision{Retry: false}
		case re.Status == 400:
			return Decision{Retry: false}
		}
	}
	// Network errors, timeouts, 5xx and any other status.
	return Decision{Retry: true, Delay: expBackoff(time.Second, attempt, 30*time.Second)}
}

func expBackoff(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
