// Package config loads assessor settings from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/abhisek/assessor/internal/difficulty"
	"github.com/abhisek/assessor/internal/logging"
	"github.com/abhisek/assessor/internal/selection"
)

// EnvPrefix prefixes every environment override, e.g. ASSESSOR_LOG_LEVEL.
const EnvPrefix = "ASSESSOR"

type Config struct {
	DB          string            `mapstructure:"db"`
	Log         logging.Config    `mapstructure:"log"`
	Difficulty  DifficultyConfig  `mapstructure:"difficulty"`
	Selection   SelectionConfig   `mapstructure:"selection"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Session     SessionConfig     `mapstructure:"session"`
}

type DifficultyConfig struct {
	difficulty.Config `mapstructure:",squash"`
	InitialLevel      string `mapstructure:"initial_level"`
}

type SelectionConfig struct {
	selection.Config `mapstructure:",squash"`
	SessionSize      int `mapstructure:"session_size"`
}

type PerformanceConfig struct {
	DailyGoal int    `mapstructure:"daily_goal"`
	Timezone  string `mapstructure:"timezone"`
}

type SessionConfig struct {
	AutoReplace      bool          `mapstructure:"auto_replace"`
	MaxUpdateRetries int           `mapstructure:"max_update_retries"`
	RetryInitialWait time.Duration `mapstructure:"retry_initial_wait"`
	RetryMaxWait     time.Duration `mapstructure:"retry_max_wait"`
	// AdaptiveAfter is the number of answers a profile needs before its
	// recommended level seeds new sessions.
	AdaptiveAfter int `mapstructure:"adaptive_after"`
}

func setDefaults(v *viper.Viper) {
	dc := difficulty.DefaultConfig()
	v.SetDefault("difficulty.initial_level", difficulty.Easy.String())
	v.SetDefault("difficulty.confidence_boost_threshold", dc.ConfidenceBoostThreshold)
	v.SetDefault("difficulty.fast_answer_threshold", dc.FastAnswerThreshold)
	v.SetDefault("difficulty.drop_threshold", dc.DropThreshold)

	sc := selection.DefaultConfig()
	v.SetDefault("selection.freshness_window", sc.FreshnessWindow)
	v.SetDefault("selection.session_size", 10)
	v.SetDefault("selection.high_priority_share", sc.HighPriorityShare)
	v.SetDefault("selection.medium_priority_share", sc.MediumPriorityShare)
	v.SetDefault("selection.max_topic_share", sc.MaxTopicShare)

	v.SetDefault("performance.daily_goal", 10)
	v.SetDefault("performance.timezone", "Local")

	v.SetDefault("session.auto_replace", true)
	v.SetDefault("session.max_update_retries", 3)
	v.SetDefault("session.retry_initial_wait", 5*time.Millisecond)
	v.SetDefault("session.retry_max_wait", 100*time.Millisecond)
	v.SetDefault("session.adaptive_after", 0)

	lc := logging.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.file", lc.File)
	v.SetDefault("log.max_size_mb", lc.MaxSizeMB)
	v.SetDefault("log.max_backups", lc.MaxBackups)
	v.SetDefault("log.max_age_days", lc.MaxAgeDays)
	v.SetDefault("log.compress", lc.Compress)

	v.SetDefault("db", "")
}

// Options controls where Load looks.
type Options struct {
	// File is an explicit config file. When empty the XDG config dirs are
	// searched for assessor.yaml and a missing file is not an error.
	File string
	// Flags, when set, override file and environment values. Flag names
	// map to keys: --db to db, --log-level to log.level.
	Flags *pflag.FlagSet
}

var flagKeys = map[string]string{
	"db":        "db",
	"log-level": "log.level",
}

// Load reads configuration with precedence flags > env > file > defaults.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("assessor")
		v.SetConfigType("yaml")
		for _, dir := range searchDirs() {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("db", "ASSESSOR_DB")

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return decode(v)
}

// Default returns the built-in configuration, ignoring files and the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("built-in config is invalid: %v", err))
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func searchDirs() []string {
	var dirs []string
	if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
		dirs = append(dirs, filepath.Join(x, "assessor"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "assessor"))
	}
	return dirs
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Difficulty.Level(); err != nil {
		return fmt.Errorf("difficulty.initial_level: %w", err)
	}
	if c.Difficulty.ConfidenceBoostThreshold < 1 || c.Difficulty.DropThreshold < 1 {
		return errors.New("difficulty thresholds must be at least 1")
	}
	if c.Difficulty.FastAnswerThreshold <= 0 {
		return errors.New("difficulty.fast_answer_threshold must be positive")
	}
	s := c.Selection
	if s.SessionSize < 1 {
		return errors.New("selection.session_size must be at least 1")
	}
	if s.FreshnessWindow < 0 {
		return errors.New("selection.freshness_window must not be negative")
	}
	if s.HighPriorityShare <= 0 || s.MediumPriorityShare <= 0 || s.HighPriorityShare+s.MediumPriorityShare > 1 {
		return fmt.Errorf("selection priority shares %.2f/%.2f must be positive and sum to at most 1",
			s.HighPriorityShare, s.MediumPriorityShare)
	}
	if s.MaxTopicShare <= 0 || s.MaxTopicShare > 1 {
		return errors.New("selection.max_topic_share must be in (0, 1]")
	}
	if c.Performance.DailyGoal < 1 {
		return errors.New("performance.daily_goal must be at least 1")
	}
	if _, err := c.Performance.Location(); err != nil {
		return fmt.Errorf("performance.timezone: %w", err)
	}
	if c.Session.MaxUpdateRetries < 0 {
		return errors.New("session.max_update_retries must not be negative")
	}
	if c.Session.RetryInitialWait <= 0 || c.Session.RetryMaxWait < c.Session.RetryInitialWait {
		return errors.New("session retry waits must be positive with retry_max_wait >= retry_initial_wait")
	}
	return nil
}

// Level parses the initial difficulty level.
func (d DifficultyConfig) Level() (difficulty.Level, error) {
	return difficulty.ParseLevel(d.InitialLevel)
}

// Location resolves the timezone used for daily counters.
func (p PerformanceConfig) Location() (*time.Location, error) {
	if p.Timezone == "" || strings.EqualFold(p.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(p.Timezone)
}
