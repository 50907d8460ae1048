package config

import (
	"fmt"
	"strings"
	"time"
)

// The engine's timing knobs arrive as duration strings. Ticks feed cron
// @every entries and must be strictly positive; intervals may be zero, which
// disables whatever they drive.

func parseTick(field, raw string) (time.Duration, error) {
	d, err := parseInterval(field, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: tick must be a positive duration", field)
	}
	return d, nil
}

func parseInterval(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}

// SchedulerTickDuration is the delayed-action tick spacing.
func (c *Config) SchedulerTickDuration() (time.Duration, error) {
	return parseTick("schedules.scheduler_tick", c.Schedules.SchedulerTick)
}

// PollTickDuration is the command-poll tick spacing. The ingestor enforces
// its own 30s floor on top, so a fast tick is allowed but harmless.
func (c *Config) PollTickDuration() (time.Duration, error) {
	return parseTick("schedules.poll_tick", c.Schedules.PollTick)
}

// WatchdogInterval is the health-probe spacing; zero disables the watchdog.
func (c *Config) WatchdogInterval() (time.Duration, error) {
	return parseInterval("server.health_interval", c.Server.HealthInterval)
}
