package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.yaml.in/yaml/v3"

	"warden/internal/logging"
)

// Config is the full bot configuration tree, decoded from a YAML file.
// Secrets (token, guild id) may also come from the environment; env values
// win over file values so tokens can stay out of committed config.
type Config struct {
	Discord       Discord                 `yaml:"discord"`
	Logging       logging.Config          `yaml:"logging"`
	Commands      Commands                `yaml:"commands"`
	Notifications map[string]Notification `yaml:"notifications"`
	Schedules     Schedules               `yaml:"schedules"`
	Server        Server                  `yaml:"server"`
}

type Discord struct {
	Token   string `yaml:"token" env:"DISCORD_BOT_TOKEN"`
	GuildID string `yaml:"guild_id" env:"DISCORD_GUILD_ID"`

	// APIBase is overridable for tests; default is the public v10 endpoint.
	APIBase string `yaml:"api_base"`

	AdminChannelIDs  []string `yaml:"admin_channel_ids"`
	PlayerChannelIDs []string `yaml:"player_channel_ids"`

	// CommandChannelIDs are the channels polled for inbound commands.
	// Defaults to AdminChannelIDs when empty.
	CommandChannelIDs []string `yaml:"command_channel_ids"`

	AllowedRoleIDs []string `yaml:"allowed_role_ids"`
}

type Commands struct {
	Prefix string `yaml:"prefix"`

	// PollInterval is a Go duration string; the ingestor self-enforces a
	// 30s floor regardless of how often the tick fires.
	PollInterval string `yaml:"poll_interval"`
}

// Notification configures one event key's outbound template.
//
// Enabled is a pointer so an omitted flag defaults to true while an explicit
// `enabled: false` switches the event off.
type Notification struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Title   string `yaml:"title,omitempty"`
	Text    string `yaml:"text,omitempty"`
	Color   int    `yaml:"color,omitempty"`
}

func (n Notification) IsEnabled() bool { return n.Enabled == nil || *n.Enabled }

type Schedules struct {
	// Restart holds cron specs for automatic restarts, e.g. "0 5 * * *".
	Restart []string `yaml:"restart"`

	// RestartLeadMinutes is how far ahead of the cron firing the restart is
	// scheduled, so players get the staged warnings. Default 15.
	RestartLeadMinutes int `yaml:"restart_lead_minutes"`

	// SchedulerTick / PollTick drive the two engine ticks.
	SchedulerTick string `yaml:"scheduler_tick"`
	PollTick      string `yaml:"poll_tick"`
}

type Server struct {
	// Unit is the systemd unit of the game server.
	Unit string `yaml:"unit"`

	// BackupCommand / UpdateCommand are shell commands run by the
	// corresponding collaborators. Empty disables the command surface reply
	// with a config warning instead of failing.
	BackupCommand string `yaml:"backup_command"`
	UpdateCommand string `yaml:"update_command"`

	// HealthInterval is the crash-watchdog probe spacing ("0s" disables).
	HealthInterval string `yaml:"health_interval"`
}

const DefaultAPIBase = "https://discord.com/api/v10"

// Load reads, decodes, env-overlays and validates the config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := env.Parse(&cfg.Discord); err != nil {
		return nil, fmt.Errorf("env overlay: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML bytes into a Config with defaults applied.
// It does not read the environment; Load does.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Discord.APIBase == "" {
		c.Discord.APIBase = DefaultAPIBase
	}
	if len(c.Discord.CommandChannelIDs) == 0 {
		c.Discord.CommandChannelIDs = c.Discord.AdminChannelIDs
	}
	if c.Commands.Prefix == "" {
		c.Commands.Prefix = "!"
	}
	if c.Commands.PollInterval == "" {
		c.Commands.PollInterval = "30s"
	}
	if c.Schedules.RestartLeadMinutes <= 0 {
		c.Schedules.RestartLeadMinutes = 15
	}
	if c.Schedules.SchedulerTick == "" {
		c.Schedules.SchedulerTick = "5s"
	}
	if c.Schedules.PollTick == "" {
		c.Schedules.PollTick = "30s"
	}
	if c.Server.HealthInterval == "" {
		c.Server.HealthInterval = "30s"
	}
}

// Validate rejects configs the engine cannot run with. A missing token is
// deliberately NOT fatal here: the delivery client treats it as a
// configuration error per send (skip + warn), so the process keeps ticking.
func (c *Config) Validate() error {
	if len(c.Discord.AdminChannelIDs) == 0 && len(c.Discord.PlayerChannelIDs) == 0 {
		return fmt.Errorf("discord: at least one admin or player channel id required")
	}
	if _, err := parseInterval("commands.poll_interval", c.Commands.PollInterval); err != nil {
		return err
	}
	if _, err := c.SchedulerTickDuration(); err != nil {
		return err
	}
	if _, err := c.PollTickDuration(); err != nil {
		return err
	}
	if _, err := c.WatchdogInterval(); err != nil {
		return err
	}
	return nil
}

// PollIntervalOrDefault returns the parsed poll interval with a 30s floor.
func (c *Config) PollIntervalOrDefault() time.Duration {
	d, err := parseInterval("commands.poll_interval", c.Commands.PollInterval)
	if err != nil || d < 30*time.Second {
		return 30 * time.Second
	}
	return d
}
