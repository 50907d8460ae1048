//go:build !linux

package server

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

var errUnsupported = errors.New("systemd controller requires linux")

// SystemdController is unavailable off linux; every operation fails so the
// engine surfaces the misconfiguration in chat instead of silently no-oping.
type SystemdController struct{}

func NewSystemdController(_ context.Context, _, _, _ string, _ zerolog.Logger) (*SystemdController, error) {
	return nil, errUnsupported
}

func (c *SystemdController) Close()                                {}
func (c *SystemdController) Start(context.Context) error           { return errUnsupported }
func (c *SystemdController) Stop(context.Context) error            { return errUnsupported }
func (c *SystemdController) Restart(context.Context) error         { return errUnsupported }
func (c *SystemdController) Update(context.Context) error          { return errUnsupported }
func (c *SystemdController) Backup(context.Context) (string, error) { return "", errUnsupported }
func (c *SystemdController) Health(context.Context) (Health, error) {
	return Health{}, errUnsupported
}
