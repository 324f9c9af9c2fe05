package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.StartupTimeout != 5*time.Second {
		t.Errorf("StartupTimeout = %v, want 5s", cfg.StartupTimeout)
	}
	if cfg.SpawnRetries != 3 {
		t.Errorf("SpawnRetries = %d, want 3", cfg.SpawnRetries)
	}
	if cfg.StopSignal != "SIGTERM" {
		t.Errorf("StopSignal = %s, want SIGTERM", cfg.StopSignal)
	}
	if !cfg.Supervise {
		t.Error("Supervise = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestDefaultStateDir(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/var/state")
	if got := DefaultStateDir(); got != "/var/state/detach" {
		t.Errorf("DefaultStateDir() = %s, want /var/state/detach", got)
	}

	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", "/home/someone")
	if got := DefaultStateDir(); got != "/home/someone/.local/state/detach" {
		t.Errorf("DefaultStateDir() = %s", got)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detach.yaml")
	content := `
state_dir: ` + filepath.Join(dir, "state") + `
grace_period: 750ms
capture_limit: 1024
stop_signal: INT
supervise: false
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.StateDir != filepath.Join(dir, "state") {
		t.Errorf("StateDir = %s", cfg.StateDir)
	}
	if cfg.GracePeriod != 750*time.Millisecond {
		t.Errorf("GracePeriod = %v, want 750ms", cfg.GracePeriod)
	}
	if cfg.CaptureLimit != 1024 {
		t.Errorf("CaptureLimit = %d, want 1024", cfg.CaptureLimit)
	}
	if cfg.StopSignal != "INT" || cfg.Supervise {
		t.Errorf("StopSignal = %s, Supervise = %v", cfg.StopSignal, cfg.Supervise)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
	// untouched keys keep their defaults
	if cfg.StartupTimeout != 5*time.Second {
		t.Errorf("StartupTimeout = %v, want default 5s", cfg.StartupTimeout)
	}
	if cfg.File != path {
		t.Errorf("File = %s, want %s", cfg.File, path)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DETACH_STARTUP_TIMEOUT", "12s")
	t.Setenv("DETACH_SPAWN_RETRIES", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StartupTimeout != 12*time.Second {
		t.Errorf("StartupTimeout = %v, want 12s", cfg.StartupTimeout)
	}
	if cfg.SpawnRetries != 5 {
		t.Errorf("SpawnRetries = %d, want 5", cfg.SpawnRetries)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want none", cfg.File)
	}
}

func TestLoad_SearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	if err := os.WriteFile(".detach.yaml", []byte("state_dir: rel/state\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !filepath.IsAbs(cfg.StateDir) || !strings.HasSuffix(cfg.StateDir, filepath.Join("rel", "state")) {
		t.Errorf("StateDir = %s, want absolute path ending in rel/state", cfg.StateDir)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing explicit file should fail")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("grace_period: [1, 2\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("Load() of malformed yaml should fail")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero grace is allowed", func(c *Config) { c.GracePeriod = 0 }, ""},
		{"no state dir", func(c *Config) { c.StateDir = "" }, "state_dir"},
		{"zero startup timeout", func(c *Config) { c.StartupTimeout = 0 }, "startup_timeout"},
		{"negative grace", func(c *Config) { c.GracePeriod = -time.Second }, "grace_period"},
		{"backoff cap below interval", func(c *Config) { c.PollMaxInterval = time.Millisecond }, "poll_max_interval"},
		{"zero capture limit", func(c *Config) { c.CaptureLimit = 0 }, "capture_limit"},
		{"huge capture limit", func(c *Config) { c.CaptureLimit = 1 << 30 }, "capture_limit"},
		{"no spawn attempts", func(c *Config) { c.SpawnRetries = 0 }, "spawn_retries"},
		{"negative retention", func(c *Config) { c.Retention = -time.Hour }, "retention"},
		{"unknown signal", func(c *Config) { c.StopSignal = "SIGNOPE" }, "stop_signal"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config_subdir")
	configPath := filepath.Join(configDir, "config.yaml")

	if err := GenerateDefaultConfigFile(configPath); err != nil {
		t.Fatalf("GenerateDefaultConfigFile() error = %v", err)
	}

	info, err := os.Stat(configDir)
	if err != nil {
		t.Fatalf("failed to stat config directory: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("config directory has permissions %o, expected 0700", perm)
	}

	// the template must load back to the defaults
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() of template error = %v", err)
	}
	def := DefaultConfig()
	if cfg.GracePeriod != def.GracePeriod || cfg.Retention != def.Retention || cfg.CaptureLimit != def.CaptureLimit {
		t.Errorf("template diverges from defaults: %+v", cfg)
	}
}

func TestConfig_Settings(t *testing.T) {
	cfg := DefaultConfig()
	out, err := yaml.Marshal(cfg.Settings())
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}

	// settings must read back through viper
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, out, 0600); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}
	if got := v.GetDuration("grace_period"); got != cfg.GracePeriod {
		t.Errorf("grace_period = %v, want %v", got, cfg.GracePeriod)
	}
	if !strings.Contains(string(out), "retention: 168h0m0s") {
		t.Errorf("durations should render as strings:\n%s", out)
	}
}

func TestShimLogPath(t *testing.T) {
	cfg := &Config{StateDir: "/tmp/state"}
	if got := cfg.ShimLogPath(); got != "/tmp/state/shim.log" {
		t.Errorf("ShimLogPath() = %s", got)
	}
}
