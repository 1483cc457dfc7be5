package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/assessor/internal/difficulty"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func TestDefault(t *testing.T) {
	cfg := Default()

	lvl, err := cfg.Difficulty.Level()
	require.NoError(t, err)
	assert.Equal(t, difficulty.Easy, lvl)
	assert.Equal(t, 2, cfg.Difficulty.ConfidenceBoostThreshold)
	assert.Equal(t, 10*time.Second, cfg.Difficulty.FastAnswerThreshold)
	assert.Equal(t, 1, cfg.Difficulty.DropThreshold)

	assert.Equal(t, 7*24*time.Hour, cfg.Selection.FreshnessWindow)
	assert.Equal(t, 10, cfg.Selection.SessionSize)
	assert.InDelta(t, 0.4, cfg.Selection.HighPriorityShare, 1e-9)
	assert.InDelta(t, 0.25, cfg.Selection.MaxTopicShare, 1e-9)

	assert.Equal(t, 10, cfg.Performance.DailyGoal)
	loc, err := cfg.Performance.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	assert.True(t, cfg.Session.AutoReplace)
	assert.Equal(t, 3, cfg.Session.MaxUpdateRetries)
	assert.Equal(t, 5*time.Millisecond, cfg.Session.RetryInitialWait)
	assert.Equal(t, 100*time.Millisecond, cfg.Session.RetryMaxWait)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingSearchFileIsFine(t *testing.T) {
	isolate(t)
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Selection.SessionSize)
}

func TestLoad_FileAndEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "assessor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
difficulty:
  initial_level: medium
  drop_threshold: 2
  fast_answer_threshold: 15s
selection:
  session_size: 5
  freshness_window: 72h
performance:
  timezone: UTC
log:
  level: debug
`), 0o644))
	t.Setenv("ASSESSOR_SELECTION_SESSION_SIZE", "8")
	t.Setenv("ASSESSOR_DB", "/tmp/env.db")

	cfg, err := Load(Options{File: path})
	require.NoError(t, err)

	lvl, err := cfg.Difficulty.Level()
	require.NoError(t, err)
	assert.Equal(t, difficulty.Medium, lvl)
	assert.Equal(t, 2, cfg.Difficulty.DropThreshold)
	assert.Equal(t, 15*time.Second, cfg.Difficulty.FastAnswerThreshold)
	assert.Equal(t, 72*time.Hour, cfg.Selection.FreshnessWindow)
	assert.Equal(t, 8, cfg.Selection.SessionSize, "env overrides file")
	assert.Equal(t, "/tmp/env.db", cfg.DB)
	assert.Equal(t, "debug", cfg.Log.Level)

	loc, err := cfg.Performance.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoad_FlagsOverride(t *testing.T) {
	isolate(t)
	t.Setenv("ASSESSOR_LOG_LEVEL", "warn")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("db", "", "")
	fs.String("log-level", "", "")
	require.NoError(t, fs.Parse([]string{"--db", "/tmp/flag.db", "--log-level", "error"}))

	cfg, err := Load(Options{Flags: fs})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/flag.db", cfg.DB)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	isolate(t)
	_, err := Load(Options{File: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad level", func(c *Config) { c.Difficulty.InitialLevel = "impossible" }},
		{"zero boost", func(c *Config) { c.Difficulty.ConfidenceBoostThreshold = 0 }},
		{"zero drop", func(c *Config) { c.Difficulty.DropThreshold = 0 }},
		{"shares over one", func(c *Config) { c.Selection.HighPriorityShare = 0.7 }},
		{"topic share", func(c *Config) { c.Selection.MaxTopicShare = 0 }},
		{"session size", func(c *Config) { c.Selection.SessionSize = 0 }},
		{"timezone", func(c *Config) { c.Performance.Timezone = "Mars/Olympus" }},
		{"retries", func(c *Config) { c.Session.MaxUpdateRetries = -1 }},
		{"retry wait", func(c *Config) { c.Session.RetryInitialWait = 0 }},
		{"retry max wait", func(c *Config) { c.Session.RetryMaxWait = time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
