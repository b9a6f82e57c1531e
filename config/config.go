// Package config loads xtriage settings from file, environment and flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Log            LogConfig       `mapstructure:"log"`
	Language       string          `mapstructure:"language"`
	DataDir        string          `mapstructure:"data_dir"`
	History        HistoryConfig   `mapstructure:"history"`
	Hang           HangConfig      `mapstructure:"hang"`
	Monitor        MonitorConfig   `mapstructure:"monitor"`
	Viewer         ViewerConfig    `mapstructure:"viewer"`
	Analysis       AnalysisConfig  `mapstructure:"analysis"`
	Recapture      RecaptureConfig `mapstructure:"recapture"`
	KB             KBConfig        `mapstructure:"kb"`
	Metrics        MetricsConfig   `mapstructure:"metrics"`
	Symbols        SymbolsConfig   `mapstructure:"symbols"`
	Tracing        TracingConfig   `mapstructure:"tracing"`
	HookFrameworks []string        `mapstructure:"hook_frameworks"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HistoryConfig locates and bounds the crash history database.
type HistoryConfig struct {
	Path       string `mapstructure:"path"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// HangConfig configures hang detection and suppression.
type HangConfig struct {
	SuppressWhenNotForeground bool   `mapstructure:"suppress_when_not_foreground"`
	ForegroundGraceSec        uint32 `mapstructure:"foreground_grace_sec"`
	ThresholdInGameSec        uint32 `mapstructure:"threshold_in_game_sec"`
	ThresholdInMenuSec        uint32 `mapstructure:"threshold_in_menu_sec"`
	ThresholdLoadingSec       uint32 `mapstructure:"threshold_loading_sec"`
}

// MonitorConfig configures the telemetry loop.
type MonitorConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	EventLog          string        `mapstructure:"event_log"`
	DeleteBenignDumps bool          `mapstructure:"delete_benign_dumps"`
}

// ViewerConfig configures the deferred crash viewer.
type ViewerConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// AnalysisConfig configures out-of-band analysis.
type AnalysisConfig struct {
	AutoAnalyze bool          `mapstructure:"auto_analyze"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RecaptureConfig configures full-memory recapture requests.
type RecaptureConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	UnknownThreshold uint32 `mapstructure:"unknown_threshold"`
}

// KBConfig configures knowledge-base reloading.
type KBConfig struct {
	Watch bool `mapstructure:"watch"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SymbolsConfig configures the address resolver.
type SymbolsConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// TracingConfig configures OTLP span export.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
	CAPath   string `mapstructure:"ca_path"`
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance so
// cobra flags bound to it take precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v, envPrefix: "XTRIAGE"}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (XTRIAGE_*)
// 3. Config file (--config, or config.yaml in the user config dir)
// 4. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		if dir := Dir(); dir != "" {
			l.v.AddConfigPath(dir)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")
	l.v.SetDefault("language", "en")

	l.v.SetDefault("data_dir", "data")
	l.v.SetDefault("history.path", filepath.Join(stateDir(), "crash_history.db"))
	l.v.SetDefault("history.max_entries", 100)

	l.v.SetDefault("hang.suppress_when_not_foreground", true)
	l.v.SetDefault("hang.foreground_grace_sec", 5)
	l.v.SetDefault("hang.threshold_in_game_sec", 10)
	l.v.SetDefault("hang.threshold_in_menu_sec", 30)
	l.v.SetDefault("hang.threshold_loading_sec", 600)

	l.v.SetDefault("monitor.interval", "1s")
	l.v.SetDefault("monitor.event_log", filepath.Join(stateDir(), "monitor.jsonl"))
	l.v.SetDefault("monitor.delete_benign_dumps", false)

	l.v.SetDefault("viewer.enabled", false)
	l.v.SetDefault("viewer.command", "")
	l.v.SetDefault("viewer.args", []string{})

	l.v.SetDefault("analysis.auto_analyze", true)
	l.v.SetDefault("analysis.timeout", "2m")

	l.v.SetDefault("recapture.enabled", false)
	l.v.SetDefault("recapture.unknown_threshold", 2)

	l.v.SetDefault("kb.watch", false)
	l.v.SetDefault("metrics.addr", "")
	l.v.SetDefault("symbols.cache_size", 4096)
	l.v.SetDefault("tracing.enabled", false)
	l.v.SetDefault("tracing.endpoint", "")
	l.v.SetDefault("tracing.insecure", true)
	l.v.SetDefault("tracing.ca_path", "")
	l.v.SetDefault("hook_frameworks", []string{})
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("log.format: unsupported value %q", c.Log.Format)
	}
	if c.History.MaxEntries <= 0 {
		return fmt.Errorf("history.max_entries: must be positive, got %d", c.History.MaxEntries)
	}
	if c.Monitor.Interval < 0 {
		return fmt.Errorf("monitor.interval: must not be negative")
	}
	if c.Viewer.Enabled && c.Viewer.Command == "" {
		return fmt.Errorf("viewer.command: required when viewer.enabled is set")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint: required when tracing.enabled is set")
	}
	return nil
}

// Dir returns $XDG_CONFIG_HOME/xtriage (or ~/.config/xtriage).
// Returns empty string if the home directory cannot be determined.
func Dir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "xtriage")
}

func stateDir() string {
	if dir := Dir(); dir != "" {
		return dir
	}
	return "."
}
