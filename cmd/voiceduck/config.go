package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the voiceduck daemon.
//
// The config file is the primary configuration surface; flags exist for small
// overrides. Ducking settings are user-tunable at runtime: the daemon re-reads
// them through the Settings store on every decision point, never caching them
// at startup.
type Config struct {
	// Ducking holds the volume-ducking settings proper.
	Ducking DuckingConfig `yaml:"ducking"`

	// IPC configuration (local control surface).
	IPC IPCConfig `yaml:"ipc"`

	// Status/metrics HTTP server configuration.
	Status StatusConfig `yaml:"status"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type DuckingConfig struct {
	// Enabled is the master switch. Turning it off closes the event-source
	// connection and restores the baseline volume if currently ducked.
	Enabled bool `yaml:"enabled"`

	// ConnectionURL is the speech-event source websocket endpoint.
	ConnectionURL string `yaml:"connection_url"`

	// AuthToken is appended to the connection URL as ?token=<urlencoded>.
	// Blank blocks connection attempts with a warning.
	AuthToken string `yaml:"auth_token"`

	// ReductionPercent is the fraction subtracted from the baseline volume
	// while ducked (5-100, step 5).
	ReductionPercent int `yaml:"reduction_percent"`

	DuckDurationMS   int `yaml:"duck_duration_ms"`   // fade-in duration when ducking starts (100-5000)
	UnduckDurationMS int `yaml:"unduck_duration_ms"` // fade-out duration when unducking (100-5000)
	UnduckDelayMS    int `yaml:"unduck_delay_ms"`    // grace period before the unduck fade begins (0-3000)

	// FPS is the shared-volume update rate during fades (5-60). Per-sound
	// fades are delegated to the host and are not tied to this rate.
	FPS int `yaml:"fps"`

	// DebugLogging enables verbose diagnostics and user notifications on
	// baseline changes.
	DebugLogging bool `yaml:"debug_logging"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StatusConfig struct {
	// Port for the HTTP status/metrics listener. 0 disables it.
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Ducking: DuckingConfig{
			Enabled:          true,
			ConnectionURL:    "ws://127.0.0.1:7777/ws",
			AuthToken:        "",
			ReductionPercent: defaultReductionPercent,
			DuckDurationMS:   defaultDuckDurationMS,
			UnduckDurationMS: defaultUnduckDurationMS,
			UnduckDelayMS:    defaultUnduckDelayMS,
			FPS:              defaultDuckingFPS,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/voiceduck.sock",
		},
		Status: StatusConfig{
			Port: 3001,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	return cfg, nil
}

// Validate checks hard config invariants. Range-limited ducking knobs are not
// errors; they get clamped by Normalize so a hand-edited file can't wedge the
// daemon with an out-of-range slider value.
func (c *Config) Validate() error {
	if c.Ducking.ConnectionURL == "" {
		return errors.New("ducking.connection_url must not be empty")
	}
	u, err := url.Parse(c.Ducking.ConnectionURL)
	if err != nil {
		return fmt.Errorf("ducking.connection_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("ducking.connection_url scheme must be ws or wss, got %q", u.Scheme)
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.Status.Port < 0 || c.Status.Port > 65535 {
		return errors.New("status.port must be between 0 and 65535")
	}
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return err
	}

	return nil
}

// Normalize clamps the range-limited ducking knobs into their valid ranges.
func (c *Config) Normalize() {
	d := &c.Ducking

	d.ReductionPercent = clampInt(d.ReductionPercent, minReductionPercent, maxReductionPercent)
	// Snap to the 5% step the settings UI exposes.
	d.ReductionPercent -= d.ReductionPercent % reductionPercentStep

	d.DuckDurationMS = clampInt(d.DuckDurationMS, minFadeDurationMS, maxFadeDurationMS)
	d.UnduckDurationMS = clampInt(d.UnduckDurationMS, minFadeDurationMS, maxFadeDurationMS)
	d.UnduckDelayMS = clampInt(d.UnduckDelayMS, 0, maxUnduckDelayMS)
	d.FPS = clampInt(d.FPS, minDuckingFPS, maxDuckingFPS)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DuckDuration returns the duck fade duration as a time.Duration.
func (d DuckingConfig) DuckDuration() time.Duration {
	return time.Duration(d.DuckDurationMS) * time.Millisecond
}

// UnduckDuration returns the unduck fade duration as a time.Duration.
func (d DuckingConfig) UnduckDuration() time.Duration {
	return time.Duration(d.UnduckDurationMS) * time.Millisecond
}

// UnduckDelay returns the unduck grace period as a time.Duration.
func (d DuckingConfig) UnduckDelay() time.Duration {
	return time.Duration(d.UnduckDelayMS) * time.Millisecond
}

// Reduction returns the ducked reduction as a fraction in [0.05, 1.0].
func (d DuckingConfig) Reduction() float64 {
	return float64(d.ReductionPercent) / 100.0
}

// ============================================================================
// Settings store - live configuration
// ============================================================================
// The user may change settings at any time, so ducking decisions always read
// through this store instead of values captured at startup. Reload swaps the
// whole snapshot atomically under the lock.
// ============================================================================

type Settings struct {
	mu     sync.RWMutex
	cfg    Config
	path   string // empty when the store is not file-backed (tests)
	logger *slog.Logger
}

// NewSettings wraps an already loaded and validated config. path may be empty
// for a store that is never reloaded from disk.
func NewSettings(cfg Config, path string, logger *slog.Logger) *Settings {
	cfg.Normalize()
	return &Settings{cfg: cfg, path: path, logger: logger}
}

// Ducking returns the current ducking settings snapshot.
func (s *Settings) Ducking() DuckingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Ducking
}

// Config returns the full current config snapshot.
func (s *Settings) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update replaces the stored config. Used by tests and by flag-driven setups
// without a config file.
func (s *Settings) Update(mutate func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.cfg)
	s.cfg.Normalize()
}

// Reload re-reads the backing file. A broken file keeps the previous snapshot.
func (s *Settings) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := LoadConfigFile(s.path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.Normalize()

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Watch reloads the backing file whenever it changes on disk and calls
// onChange after a successful reload. It blocks until ctx is canceled.
//
// The watch is placed on the directory rather than the file itself, because
// most editors replace files via rename and that drops a direct file watch.
func (s *Settings) Watch(ctx context.Context, onChange func()) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// Editors fire bursts of events per save; debounce them.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(100 * time.Millisecond)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("settings watcher error", "error", err)

		case <-pending:
			pending = nil
			if err := s.Reload(); err != nil {
				s.logger.Warn("settings reload failed; keeping previous settings", "error", err)
				continue
			}
			s.logger.Info("settings reloaded", "path", s.path)
			if onChange != nil {
				onChange()
			}
		}
	}
}
