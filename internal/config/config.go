// Package config handles configuration loading, validation, and hot
// reloading for nbwatchd.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Watch configures change detection for open documents.
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// Conflict configures how external changes meet local edits.
	Conflict ConflictConfig `toml:"conflict" json:"conflict" yaml:"conflict"`

	// UI holds one-time UX flags outside the core engine.
	UI UIConfig `toml:"ui" json:"ui" yaml:"ui"`

	// Journal configures the SQLite change journal.
	Journal JournalConfig `toml:"journal" json:"journal" yaml:"journal"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configures the editor/CLI bridge socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`
}

// WatchConfig holds change-detection configuration.
type WatchConfig struct {
	// Enabled turns the whole engine on or off. When off, initialization
	// is a no-op and no timers are started.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Extensions are the tracked document extensions, dot included.
	Extensions []string `toml:"extensions" json:"extensions" yaml:"extensions"`

	// RefreshDelayMs is the debounce delay before a scheduled reload fires.
	RefreshDelayMs int `toml:"refresh_delay_ms" json:"refresh_delay_ms" yaml:"refresh_delay_ms"`

	// EchoWindowMs is the trailing window after a local save during which
	// a storage change is treated as that save's echo.
	EchoWindowMs int `toml:"echo_window_ms" json:"echo_window_ms" yaml:"echo_window_ms"`

	// PollIntervalMs is the metadata poll interval. Zero derives it as
	// twice the refresh delay.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// RefreshDelay returns the debounce delay as a duration.
func (w WatchConfig) RefreshDelay() time.Duration {
	return time.Duration(w.RefreshDelayMs) * time.Millisecond
}

// EchoWindow returns the echo suppression window as a duration.
func (w WatchConfig) EchoWindow() time.Duration {
	return time.Duration(w.EchoWindowMs) * time.Millisecond
}

// PollInterval returns the effective poll interval.
func (w WatchConfig) PollInterval() time.Duration {
	if w.PollIntervalMs > 0 {
		return time.Duration(w.PollIntervalMs) * time.Millisecond
	}
	return 2 * w.RefreshDelay()
}

// ConflictConfig holds conflict policy configuration.
type ConflictConfig struct {
	// Resolution is one of "ask", "keepLocal", "useExternal".
	Resolution string `toml:"resolution" json:"resolution" yaml:"resolution"`

	// ShowNotifications surfaces passive notices (kept-local changes,
	// reload failures) to the user.
	ShowNotifications bool `toml:"show_notifications" json:"show_notifications" yaml:"show_notifications"`
}

// UIConfig holds UX flags handled outside the core engine.
type UIConfig struct {
	// ShowWelcomeBanner shows a one-time notice on first daemon start.
	ShowWelcomeBanner bool `toml:"show_welcome_banner" json:"show_welcome_banner" yaml:"show_welcome_banner"`
}

// JournalConfig holds change-journal configuration.
type JournalConfig struct {
	// Enabled turns journaling of signals and reload outcomes on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the SQLite database path.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "none", "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", "both", "none".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output includes "file".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int64 `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of rotated log files.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress gzips rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// IPCConfig holds editor/CLI bridge configuration.
type IPCConfig struct {
	// Enabled determines whether the IPC server is started.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the unix socket path.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// MaxConnections is the maximum concurrent client count.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// TimeoutSec is the per-request read/write timeout.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// DefaultConfig returns a configuration with built-in defaults. These are
// also the values the daemon falls back to when the settings file cannot
// be loaded.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Watch: WatchConfig{
			Enabled:        true,
			Extensions:     []string{".ipynb"},
			RefreshDelayMs: 500,
			EchoWindowMs:   2000,
			PollIntervalMs: 0, // derived: 2x refresh delay
		},
		Conflict: ConflictConfig{
			Resolution:        "ask",
			ShowNotifications: true,
		},
		UI: UIConfig{
			ShowWelcomeBanner: true,
		},
		Journal: JournalConfig{
			Enabled:       true,
			Path:          filepath.Join(dir, "journal.db"),
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(dir, "nbwatchd.log"),
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		IPC: IPCConfig{
			Enabled:        true,
			SocketPath:     defaultSocketPath(),
			MaxConnections: 16,
			TimeoutSec:     30,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// DataDir returns the base nbwatchd data directory, honoring the
// NBWATCHD_DATA_DIR override.
func DataDir() string {
	if envDir := os.Getenv("NBWATCHD_DATA_DIR"); envDir != "" {
		return envDir
	}

	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "nbwatchd")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "nbwatchd")
	default:
		if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
			return filepath.Join(dataHome, "nbwatchd")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "nbwatchd")
	}
}

func defaultSocketPath() string {
	switch runtime.GOOS {
	case "linux":
		if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
			return filepath.Join(xdgRuntime, "nbwatchd.sock")
		}
		return "/tmp/nbwatchd.sock"
	case "windows":
		return `\\.\pipe\nbwatchd`
	default:
		return filepath.Join(DataDir(), "nbwatchd.sock")
	}
}

// Load reads configuration from the specified path. A missing file yields
// the defaults. The format follows the extension: TOML (default), JSON,
// or YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// LoadOrDefault loads and validates the configuration at path; any failure
// falls back to built-in defaults. The returned error reports what went
// wrong so the caller can log it; the config is always usable.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return fallbackConfig(), err
	}
	if verr := cfg.Validate(); verr != nil {
		return fallbackConfig(), verr
	}
	return cfg, nil
}

// fallbackConfig is the defaults with env overrides applied; the overrides
// hold on every path out of LoadOrDefault, not only successful loads.
func fallbackConfig() *Config {
	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies NBWATCHD_* environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NBWATCHD_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Watch.Enabled = b
		}
	}
	if v := os.Getenv("NBWATCHD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("NBWATCHD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("NBWATCHD_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("NBWATCHD_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Watch.Extensions = append([]string{}, c.Watch.Extensions...)
	return &clone
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Journal.Path),
		filepath.Dir(c.Logging.FilePath),
		filepath.Dir(c.IPC.SocketPath),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
