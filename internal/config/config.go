// Package config provides configuration management
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/kokjohn0824/detach/internal/detach"
	"github.com/kokjohn0824/detach/internal/logging"
	"github.com/kokjohn0824/detach/internal/task"
)

const (
	configName = ".detach"
	envPrefix  = "DETACH"
)

// Config holds the application configuration
type Config struct {
	// Where task records and captured output live
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`

	// Launch and stop timing
	StartupTimeout  time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	GracePeriod     time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
	ForceWait       time.Duration `mapstructure:"force_wait" yaml:"force_wait"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PollMaxInterval time.Duration `mapstructure:"poll_max_interval" yaml:"poll_max_interval"`

	// Output capture
	CaptureLimit  int           `mapstructure:"capture_limit" yaml:"capture_limit"`
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`

	// How long finished tasks are kept; 0 keeps them forever
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`

	// Spawn retries on transient failures
	SpawnRetries    int           `mapstructure:"spawn_retries" yaml:"spawn_retries"`
	SpawnRetryDelay time.Duration `mapstructure:"spawn_retry_delay" yaml:"spawn_retry_delay"`

	StopSignal string `mapstructure:"stop_signal" yaml:"stop_signal"`
	Supervise  bool   `mapstructure:"supervise" yaml:"supervise"`

	Log logging.Config `mapstructure:",squash" yaml:",inline"`

	// File is the config file that was read, if any
	File string `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		StateDir:        DefaultStateDir(),
		StartupTimeout:  5 * time.Second,
		GracePeriod:     5 * time.Second,
		ForceWait:       2 * time.Second,
		PollInterval:    100 * time.Millisecond,
		PollMaxInterval: 2 * time.Second,
		CaptureLimit:    task.DefaultCaptureLimit,
		FlushInterval:   time.Second,
		Retention:       7 * 24 * time.Hour,
		SpawnRetries:    3,
		SpawnRetryDelay: 50 * time.Millisecond,
		StopSignal:      "SIGTERM",
		Supervise:       true,
		Log:             logging.Config{Level: "warn", Format: logging.FormatConsole},
	}
}

// DefaultStateDir returns $XDG_STATE_HOME/detach, falling back to
// ~/.local/state/detach.
func DefaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "detach")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "detach")
	}
	return filepath.Join(home, ".local", "state", "detach")
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("startup_timeout", cfg.StartupTimeout)
	v.SetDefault("grace_period", cfg.GracePeriod)
	v.SetDefault("force_wait", cfg.ForceWait)
	v.SetDefault("poll_interval", cfg.PollInterval)
	v.SetDefault("poll_max_interval", cfg.PollMaxInterval)
	v.SetDefault("capture_limit", cfg.CaptureLimit)
	v.SetDefault("flush_interval", cfg.FlushInterval)
	v.SetDefault("retention", cfg.Retention)
	v.SetDefault("spawn_retries", cfg.SpawnRetries)
	v.SetDefault("spawn_retry_delay", cfg.SpawnRetryDelay)
	v.SetDefault("stop_signal", cfg.StopSignal)
	v.SetDefault("supervise", cfg.Supervise)
	v.SetDefault("log_level", cfg.Log.Level)
	v.SetDefault("log_file", cfg.Log.File)
	v.SetDefault("log_format", cfg.Log.Format)
}

// Load loads configuration from files and environment. An explicit path
// must exist; otherwise .detach.yaml is searched for and may be absent.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")

		// Search paths
		v.AddConfigPath(".")                    // Current directory
		v.AddConfigPath("$HOME")                // Home directory
		v.AddConfigPath("$HOME/.config/detach") // XDG config
	}

	// Environment variables
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	setDefaults(v, cfg)

	// Try to read config file (don't fail if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal to struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths converts relative paths to absolute paths
func (c *Config) resolvePaths() error {
	for _, p := range []*string{&c.StateDir, &c.Log.File} {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}

	positive := []struct {
		key string
		d   time.Duration
	}{
		{"startup_timeout", c.StartupTimeout},
		{"force_wait", c.ForceWait},
		{"poll_interval", c.PollInterval},
		{"poll_max_interval", c.PollMaxInterval},
		{"flush_interval", c.FlushInterval},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive", p.key)
		}
	}
	if c.PollMaxInterval < c.PollInterval {
		return fmt.Errorf("poll_max_interval must not be shorter than poll_interval")
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("grace_period must not be negative")
	}
	if c.Retention < 0 {
		return fmt.Errorf("retention must not be negative")
	}
	if c.CaptureLimit < 1 || c.CaptureLimit > task.MaxCaptureLimit {
		return fmt.Errorf("capture_limit must be between 1 and %d bytes", task.MaxCaptureLimit)
	}
	if c.SpawnRetries < 1 {
		return fmt.Errorf("spawn_retries must be at least 1")
	}
	if c.SpawnRetryDelay < 0 {
		return fmt.Errorf("spawn_retry_delay must not be negative")
	}
	if _, err := detach.ParseSignal(c.StopSignal); err != nil {
		return fmt.Errorf("invalid stop_signal: %w", err)
	}

	switch c.Log.Format {
	case "", logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("invalid log_format: %s", c.Log.Format)
	}
	return nil
}

// Settings returns the effective settings keyed like the config file, with
// durations rendered the way they are written.
func (c *Config) Settings() map[string]any {
	return map[string]any{
		"state_dir":         c.StateDir,
		"startup_timeout":   c.StartupTimeout.String(),
		"grace_period":      c.GracePeriod.String(),
		"force_wait":        c.ForceWait.String(),
		"poll_interval":     c.PollInterval.String(),
		"poll_max_interval": c.PollMaxInterval.String(),
		"capture_limit":     c.CaptureLimit,
		"flush_interval":    c.FlushInterval.String(),
		"retention":         c.Retention.String(),
		"spawn_retries":     c.SpawnRetries,
		"spawn_retry_delay": c.SpawnRetryDelay.String(),
		"stop_signal":       c.StopSignal,
		"supervise":         c.Supervise,
		"log_level":         c.Log.Level,
		"log_file":          c.Log.File,
		"log_format":        c.Log.Format,
	}
}

// ShimLogPath returns where shims write their log
func (c *Config) ShimLogPath() string {
	return filepath.Join(c.StateDir, "shim.log")
}

// GetConfigFilePath returns the path to the config file
func GetConfigFilePath() string {
	// Check current directory first
	if _, err := os.Stat(configName + ".yaml"); err == nil {
		return configName + ".yaml"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return configName + ".yaml"
	}

	// Then home directory
	configPath := filepath.Join(home, configName+".yaml")
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}

	// XDG config
	xdgConfig := filepath.Join(home, ".config", "detach", configName+".yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig
	}

	// Default to current directory
	return configName + ".yaml"
}

const defaultConfigTemplate = `# detach configuration
# Durations use Go syntax: 500ms, 5s, 2m, 168h.

# Where task records and captured output are kept
# state_dir: ~/.local/state/detach

startup_timeout: 5s        # how long start waits for the command to be executed
grace_period: 5s           # stop: time between the stop signal and SIGKILL
force_wait: 2s             # stop: time to wait after SIGKILL
poll_interval: 100ms       # wait/stop: first poll interval
poll_max_interval: 2s      # wait: poll backoff cap

capture_limit: 65536       # bytes kept per captured stream
flush_interval: 1s         # how often captured output is written to disk

retention: 168h            # finished tasks older than this are pruned; 0 keeps them

spawn_retries: 3           # attempts on transient spawn failures
spawn_retry_delay: 50ms    # first retry delay, doubled per attempt

stop_signal: SIGTERM       # first signal sent by stop
supervise: true            # keep a supervisor that records exit codes

log_level: warn            # debug, info, warn, error
log_format: console        # console or json
# log_file: /path/to/detach.log
`

// GenerateDefaultConfigFile creates a default config file
func GenerateDefaultConfigFile(path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
