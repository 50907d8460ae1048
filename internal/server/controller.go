// Package server defines the game-server control surface the engine drives,
// plus the systemd-backed implementation.
package server

import (
	"context"
	"time"
)

// Health is a point-in-time view of the game server process.
type Health struct {
	Active bool
	// State is the raw supervisor state (active, inactive, failed, ...).
	State string
	// Since is when the unit entered its current active state; zero when
	// unknown or inactive.
	Since time.Time
}

// Controller performs the real server operations. The engine only ever
// observes errors; process supervision details stay behind this interface.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error

	// Update patches the server installation (steamcmd run, rsync, ...).
	Update(ctx context.Context) error

	// Backup snapshots the world data and returns a short human summary.
	Backup(ctx context.Context) (string, error)

	Health(ctx context.Context) (Health, error)
}
