//go:build linux

package server

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/rs/zerolog"
)

// SystemdController drives the game server through its systemd unit over
// D-Bus. Update and backup run the configured shell commands; their output
// is logged, only a short summary travels back to chat.
type SystemdController struct {
	unit          string
	updateCommand string
	backupCommand string
	log           zerolog.Logger

	conn *dbus.Conn
}

func NewSystemdController(ctx context.Context, unit, updateCommand, backupCommand string, log zerolog.Logger) (*SystemdController, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("systemd connection: %w", err)
	}
	return &SystemdController{
		unit:          normalizeUnit(unit),
		updateCommand: updateCommand,
		backupCommand: backupCommand,
		log:           log.With().Str("component", "server").Logger(),
		conn:          conn,
	}, nil
}

func (c *SystemdController) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *SystemdController) Start(ctx context.Context) error {
	c.log.Info().Str("unit", c.unit).Msg("starting unit")
	if _, err := c.conn.StartUnitContext(ctx, c.unit, "replace", nil); err != nil {
		return fmt.Errorf("start %s: %w", c.unit, err)
	}
	return nil
}

func (c *SystemdController) Stop(ctx context.Context) error {
	c.log.Info().Str("unit", c.unit).Msg("stopping unit")
	if _, err := c.conn.StopUnitContext(ctx, c.unit, "replace", nil); err != nil {
		return fmt.Errorf("stop %s: %w", c.unit, err)
	}
	return nil
}

func (c *SystemdController) Restart(ctx context.Context) error {
	c.log.Info().Str("unit", c.unit).Msg("restarting unit")
	if _, err := c.conn.RestartUnitContext(ctx, c.unit, "replace", nil); err != nil {
		return fmt.Errorf("restart %s: %w", c.unit, err)
	}
	return nil
}

func (c *SystemdController) Update(ctx context.Context) error {
	if strings.TrimSpace(c.updateCommand) == "" {
		return fmt.Errorf("no update command configured")
	}
	c.log.Info().Str("unit", c.unit).Msg("running update command")
	out, err := exec.CommandContext(ctx, "/bin/sh", "-c", c.updateCommand).CombinedOutput()
	if err != nil {
		c.log.Error().Err(err).Str("output", tail(string(out), 512)).Msg("update command failed")
		return fmt.Errorf("update command: %w", err)
	}
	c.log.Info().Str("output", tail(string(out), 512)).Msg("update command finished")
	return nil
}

func (c *SystemdController) Backup(ctx context.Context) (string, error) {
	if strings.TrimSpace(c.backupCommand) == "" {
		return "", fmt.Errorf("no backup command configured")
	}
	started := time.Now()
	out, err := exec.CommandContext(ctx, "/bin/sh", "-c", c.backupCommand).CombinedOutput()
	if err != nil {
		c.log.Error().Err(err).Str("output", tail(string(out), 512)).Msg("backup command failed")
		return "", fmt.Errorf("backup command: %w", err)
	}
	return fmt.Sprintf("completed in %s", time.Since(started).Round(time.Second)), nil
}

func (c *SystemdController) Health(ctx context.Context) (Health, error) {
	props, err := c.conn.GetUnitPropertiesContext(ctx, c.unit)
	if err != nil {
		return Health{}, fmt.Errorf("unit properties %s: %w", c.unit, err)
	}
	h := Health{}
	if s, ok := props["ActiveState"].(string); ok {
		h.State = s
		h.Active = s == "active"
	}
	if usec, ok := props["ActiveEnterTimestamp"].(uint64); ok && usec > 0 {
		h.Since = time.UnixMicro(int64(usec))
	}
	return h, nil
}

func normalizeUnit(unit string) string {
	if unit != "" && !strings.Contains(unit, ".") {
		return unit + ".service"
	}
	return unit
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
