package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestSinksFallBackToConsoleOnFileError(t *testing.T) {
	cfg := Config{
		Console: false,
		File:    File{Enabled: true, Path: filepath.Join(t.TempDir(), "missing", "bot.log")},
	}
	writers, closer := sinks(cfg, zerolog.InfoLevel)
	defer func() { _ = closer() }()

	if len(writers) == 0 {
		t.Fatal("no sinks after file open failure; all logs would be dropped")
	}
}

func TestSinksConsoleAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	cfg := Config{
		Console: true,
		File:    File{Enabled: true, Path: path},
	}
	writers, closer := sinks(cfg, zerolog.InfoLevel)

	if len(writers) != 2 {
		t.Fatalf("writers = %d, want console + file", len(writers))
	}
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}

func TestSinksFileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	cfg := Config{File: File{Enabled: true, Path: path}}
	writers, closer := sinks(cfg, zerolog.InfoLevel)
	defer func() { _ = closer() }()

	if len(writers) != 1 {
		t.Fatalf("writers = %d, want file only", len(writers))
	}
}
