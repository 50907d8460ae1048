package config

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Manager owns the live config: initial load plus fsnotify-driven reloads.
// Reloads are validated before commit; a broken edit keeps the previous
// config in place.
type Manager struct {
	path string
	log  zerolog.Logger

	mu  sync.RWMutex
	cfg *Config

	// lastHash is the raw-bytes hash of the last committed file, so editor
	// double-writes don't cause redundant publishes.
	lastHash uint64

	onChange func(*Config)
}

func NewManager(path string, log zerolog.Logger) *Manager {
	return &Manager{path: path, log: log.With().Str("component", "config").Logger()}
}

// OnChange installs the reload callback. Must be called before Watch.
func (m *Manager) OnChange(fn func(*Config)) { m.onChange = fn }

// Load reads and commits the config file. Called once at startup.
func (m *Manager) Load() (*Config, error) {
	cfg, raw, err := m.parse()
	if err != nil {
		return nil, err
	}
	m.commit(cfg, raw)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) parse() (*Config, []byte, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, nil, err
	}
	if err := env.Parse(&cfg.Discord); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, b, nil
}

func (m *Manager) commit(cfg *Config, raw []byte) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashBytes(raw)
	m.mu.Unlock()
}

// Watch blocks until ctx is done, reloading the config on file changes.
// Events are debounced so partial editor writes don't produce half-parsed
// configs.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(m.path)); err != nil {
		return err
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg, raw, err := m.parse()
		if err != nil {
			m.log.Warn().Err(err).Str("path", m.path).Msg("config reload rejected, keeping previous")
			return
		}
		h := hashBytes(raw)
		m.mu.RLock()
		unchanged := h != 0 && h == m.lastHash
		m.mu.RUnlock()
		if unchanged {
			return
		}
		m.commit(cfg, raw)
		m.log.Info().Str("path", m.path).Msg("config reloaded")
		if m.onChange != nil {
			m.onChange(cfg)
		}
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, reload)
	}

	base := filepath.Base(m.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
