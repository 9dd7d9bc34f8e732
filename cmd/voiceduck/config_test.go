package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Ducking.Enabled)
	assert.Equal(t, "ws://127.0.0.1:7777/ws", cfg.Ducking.ConnectionURL)
	assert.Equal(t, 30, cfg.Ducking.ReductionPercent)
	assert.Equal(t, 500, cfg.Ducking.DuckDurationMS)
	assert.Equal(t, 500, cfg.Ducking.UnduckDurationMS)
	assert.Equal(t, 0, cfg.Ducking.UnduckDelayMS)
	assert.Equal(t, 30, cfg.Ducking.FPS)
	assert.Equal(t, "/tmp/voiceduck.sock", cfg.IPC.SocketPath)
	assert.Equal(t, 3001, cfg.Status.Port)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFile_MergesOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
ducking:
  auth_token: hunter2
  reduction_percent: 50
  unduck_delay_ms: 1000
logging:
  level: debug
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "hunter2", cfg.Ducking.AuthToken)
	assert.Equal(t, 50, cfg.Ducking.ReductionPercent)
	assert.Equal(t, 1000, cfg.Ducking.UnduckDelayMS)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, "ws://127.0.0.1:7777/ws", cfg.Ducking.ConnectionURL)
	assert.Equal(t, 500, cfg.Ducking.DuckDurationMS)
}

func TestLoadConfigFile_RejectsUnknownFields(t *testing.T) {
	path := writeConfigFile(t, `
ducking:
  reduction_precent: 50
`)

	_, err := LoadConfigFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode config yaml")
}

func TestLoadConfigFile_MissingFile(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.Ducking.ConnectionURL = "" }},
		{"http scheme", func(c *Config) { c.Ducking.ConnectionURL = "http://localhost/ws" }},
		{"empty socket", func(c *Config) { c.IPC.SocketPath = "" }},
		{"port too high", func(c *Config) { c.Status.Port = 70000 }},
		{"negative port", func(c *Config) { c.Status.Port = -1 }},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }},
		{"bogus log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_AcceptsWSS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ducking.ConnectionURL = "wss://bot.example.com/duck"
	assert.NoError(t, cfg.Validate())
}

func TestNormalize_ClampsAndSnaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ducking.ReductionPercent = 47
	cfg.Ducking.DuckDurationMS = 10
	cfg.Ducking.UnduckDurationMS = 99999
	cfg.Ducking.UnduckDelayMS = -5
	cfg.Ducking.FPS = 1000

	cfg.Normalize()

	assert.Equal(t, 45, cfg.Ducking.ReductionPercent, "47 snaps down to the 5%% step")
	assert.Equal(t, 100, cfg.Ducking.DuckDurationMS)
	assert.Equal(t, 5000, cfg.Ducking.UnduckDurationMS)
	assert.Equal(t, 0, cfg.Ducking.UnduckDelayMS)
	assert.Equal(t, 60, cfg.Ducking.FPS)
}

func TestNormalize_ReductionBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ducking.ReductionPercent = 2
	cfg.Normalize()
	assert.Equal(t, 5, cfg.Ducking.ReductionPercent)

	cfg.Ducking.ReductionPercent = 150
	cfg.Normalize()
	assert.Equal(t, 100, cfg.Ducking.ReductionPercent)
}

func TestDuckingConfig_DurationHelpers(t *testing.T) {
	d := DuckingConfig{
		ReductionPercent: 30,
		DuckDurationMS:   500,
		UnduckDurationMS: 750,
		UnduckDelayMS:    1000,
	}

	assert.Equal(t, 500*time.Millisecond, d.DuckDuration())
	assert.Equal(t, 750*time.Millisecond, d.UnduckDuration())
	assert.Equal(t, time.Second, d.UnduckDelay())
	assert.InDelta(t, 0.30, d.Reduction(), 1e-9)
}

func TestSettings_UpdateRenormalizes(t *testing.T) {
	s := NewSettings(DefaultConfig(), "", discardLogger())

	s.Update(func(c *Config) {
		c.Ducking.ReductionPercent = 63
	})

	assert.Equal(t, 60, s.Ducking().ReductionPercent)
}

func TestSettings_ReloadKeepsPreviousOnBrokenFile(t *testing.T) {
	path := writeConfigFile(t, `
ducking:
  reduction_percent: 50
`)
	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	s := NewSettings(cfg, path, discardLogger())

	require.NoError(t, os.WriteFile(path, []byte("ducking: ["), 0o644))
	require.Error(t, s.Reload())

	assert.Equal(t, 50, s.Ducking().ReductionPercent, "previous snapshot survives a broken reload")
}

func TestSettings_ReloadPicksUpChanges(t *testing.T) {
	path := writeConfigFile(t, `
ducking:
  reduction_percent: 50
`)
	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	s := NewSettings(cfg, path, discardLogger())

	require.NoError(t, os.WriteFile(path, []byte("ducking:\n  reduction_percent: 25\n"), 0o644))
	require.NoError(t, s.Reload())

	assert.Equal(t, 25, s.Ducking().ReductionPercent)
}
