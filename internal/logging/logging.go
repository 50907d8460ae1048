// Package logging builds the process-wide zerolog root logger.
//
// Components derive their own loggers via log.With().Str("component", ...).
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type Config struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
	File    File   `yaml:"file"`
}

type File struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// New builds the root logger from config. The returned closer releases the
// file sink (nil-safe no-op when no file sink is configured).
func New(cfg Config) (zerolog.Logger, func() error) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	lvl := parseLevel(cfg.Level, zerolog.InfoLevel)
	writers, closer := sinks(cfg, lvl)

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	return zl, closer
}

// sinks resolves the configured writers. Never returns an empty set: when
// every configured sink fails the console takes over, so the engine is never
// left logging into the void.
func sinks(cfg Config, lvl zerolog.Level) ([]io.Writer, func() error) {
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat}

	var writers []io.Writer
	closer := func() error { return nil }

	if cfg.Console || !cfg.File.Enabled {
		writers = append(writers, console)
	}
	if cfg.File.Enabled && cfg.File.Path != "" {
		f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			boot := zerolog.New(console).Level(lvl).With().Timestamp().Logger()
			boot.Warn().Err(err).Str("path", cfg.File.Path).Msg("log file unavailable, console only")
		} else {
			writers = append(writers, f)
			closer = f.Close
		}
	}
	if len(writers) == 0 {
		writers = append(writers, console)
	}
	return writers, closer
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return def
	default:
		return def
	}
}
