package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if !cfg.Watch.Enabled {
		t.Error("watching should default to enabled")
	}
	if cfg.Watch.RefreshDelayMs != 500 {
		t.Errorf("expected refresh delay 500ms, got %d", cfg.Watch.RefreshDelayMs)
	}
	if cfg.Watch.EchoWindowMs != 2000 {
		t.Errorf("expected echo window 2000ms, got %d", cfg.Watch.EchoWindowMs)
	}
	if len(cfg.Watch.Extensions) != 1 || cfg.Watch.Extensions[0] != ".ipynb" {
		t.Errorf("unexpected default extensions: %v", cfg.Watch.Extensions)
	}
	if cfg.Conflict.Resolution != "ask" {
		t.Errorf("expected default resolution ask, got %s", cfg.Conflict.Resolution)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestDerivedDurations(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Watch.RefreshDelay() != 500*time.Millisecond {
		t.Errorf("RefreshDelay = %v", cfg.Watch.RefreshDelay())
	}
	if cfg.Watch.EchoWindow() != 2*time.Second {
		t.Errorf("EchoWindow = %v", cfg.Watch.EchoWindow())
	}

	// Poll interval defaults to twice the refresh delay.
	if cfg.Watch.PollInterval() != time.Second {
		t.Errorf("derived PollInterval = %v, want 1s", cfg.Watch.PollInterval())
	}

	cfg.Watch.PollIntervalMs = 5000
	if cfg.Watch.PollInterval() != 5*time.Second {
		t.Errorf("explicit PollInterval = %v, want 5s", cfg.Watch.PollInterval())
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Watch.RefreshDelayMs != 500 {
		t.Errorf("expected defaults, got refresh delay %d", cfg.Watch.RefreshDelayMs)
	}
}

func TestLoadTOML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	content := `
version = 1

[watch]
enabled = true
extensions = [".ipynb", ".nbk"]
refresh_delay_ms = 750
echo_window_ms = 3000

[conflict]
resolution = "keepLocal"
show_notifications = false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Watch.RefreshDelayMs != 750 {
		t.Errorf("refresh delay = %d, want 750", cfg.Watch.RefreshDelayMs)
	}
	if cfg.Watch.EchoWindowMs != 3000 {
		t.Errorf("echo window = %d, want 3000", cfg.Watch.EchoWindowMs)
	}
	if len(cfg.Watch.Extensions) != 2 {
		t.Errorf("extensions = %v", cfg.Watch.Extensions)
	}
	if cfg.Conflict.Resolution != "keepLocal" {
		t.Errorf("resolution = %s", cfg.Conflict.Resolution)
	}
	if cfg.Conflict.ShowNotifications {
		t.Error("show_notifications should be false")
	}
	// Unset sections keep their defaults.
	if !cfg.Journal.Enabled {
		t.Error("journal should keep default enabled")
	}
}

func TestLoadJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	content := `{"watch": {"enabled": false, "extensions": [".ipynb"], "refresh_delay_ms": 250, "echo_window_ms": 1000}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Watch.Enabled {
		t.Error("watch should be disabled")
	}
	if cfg.Watch.RefreshDelayMs != 250 {
		t.Errorf("refresh delay = %d", cfg.Watch.RefreshDelayMs)
	}
}

func TestLoadOrDefaultFallsBackOnBrokenFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := os.WriteFile(path, []byte("this is [not toml"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadOrDefault(path)
	if err == nil {
		t.Error("expected a load error to report")
	}
	if cfg == nil {
		t.Fatal("fallback config must not be nil")
	}
	if cfg.Watch.RefreshDelayMs != 500 {
		t.Errorf("fallback should be defaults, got %d", cfg.Watch.RefreshDelayMs)
	}
}

func TestLoadOrDefaultFallsBackOnInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	content := `
[watch]
enabled = true
extensions = [".ipynb"]
refresh_delay_ms = -5
echo_window_ms = 2000
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadOrDefault(path)
	if err == nil {
		t.Error("expected a validation error to report")
	}
	if cfg.Watch.RefreshDelayMs != 500 {
		t.Errorf("fallback should be defaults, got %d", cfg.Watch.RefreshDelayMs)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative refresh delay", func(c *Config) { c.Watch.RefreshDelayMs = 0 }, "refresh_delay_ms"},
		{"negative echo window", func(c *Config) { c.Watch.EchoWindowMs = -1 }, "echo_window_ms"},
		{"no extensions", func(c *Config) { c.Watch.Extensions = nil }, "extensions"},
		{"extension without dot", func(c *Config) { c.Watch.Extensions = []string{"ipynb"} }, "extensions"},
		{"unknown resolution", func(c *Config) { c.Conflict.Resolution = "maybe" }, "resolution"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("NBWATCHD_ENABLED", "false")
	t.Setenv("NBWATCHD_LOG_LEVEL", "debug")
	t.Setenv("NBWATCHD_SOCKET_PATH", "/tmp/test-nbwatchd.sock")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Watch.Enabled {
		t.Error("NBWATCHD_ENABLED=false should disable watching")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s", cfg.Logging.Level)
	}
	if cfg.IPC.SocketPath != "/tmp/test-nbwatchd.sock" {
		t.Errorf("socket path = %s", cfg.IPC.SocketPath)
	}
}

// Env overrides apply whether or not a config file exists.
func TestEnvOverridesApplyWithoutConfigFile(t *testing.T) {
	t.Setenv("NBWATCHD_SOCKET_PATH", "/tmp/fresh-install.sock")

	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.IPC.SocketPath != "/tmp/fresh-install.sock" {
		t.Errorf("socket path = %s, override ignored on missing file", cfg.IPC.SocketPath)
	}
}

func TestEnvOverridesApplyOnFallback(t *testing.T) {
	t.Setenv("NBWATCHD_SOCKET_PATH", "/tmp/fallback.sock")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(path, []byte("this is [not toml"), 0600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cfg, err := LoadOrDefault(path)
	if err == nil {
		t.Fatal("expected a load error to report")
	}
	if cfg.IPC.SocketPath != "/tmp/fallback.sock" {
		t.Errorf("socket path = %s, override ignored on fallback", cfg.IPC.SocketPath)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()

	clone.Watch.RefreshDelayMs = 999
	clone.Watch.Extensions[0] = ".md"

	if cfg.Watch.RefreshDelayMs == 999 {
		t.Error("clone shares scalar state with original")
	}
	if cfg.Watch.Extensions[0] == ".md" {
		t.Error("clone shares extension slice with original")
	}
}

func TestDataDirOverride(t *testing.T) {
	t.Setenv("NBWATCHD_DATA_DIR", "/tmp/nbwatchd-test-data")
	if DataDir() != "/tmp/nbwatchd-test-data" {
		t.Errorf("DataDir = %s", DataDir())
	}
	if !strings.HasSuffix(ConfigPath(), "config.toml") {
		t.Errorf("ConfigPath = %s", ConfigPath())
	}
}
