package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains on-disk locations used by the watcher.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Backend describes the remote dashboard backend the watcher synchronizes with.
type Backend struct {
	BaseURL               string `toml:"base_url"`
	WebsocketURL          string `toml:"ws_url"`
	APIToken              string `toml:"api_token"`
	OwnerID               string `toml:"owner_id"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Channel tunes the sync channel heartbeat and reconnect policy.
type Channel struct {
	HeartbeatIntervalSeconds int `toml:"heartbeat_interval_seconds"`
	// MaxMissedPongs is the number of consecutive unanswered pings after
	// which the connection is considered half-dead and force-closed.
	MaxMissedPongs         int     `toml:"max_missed_pongs"`
	ReconnectInitialMillis int     `toml:"reconnect_initial_ms"`
	ReconnectMaxMillis     int     `toml:"reconnect_max_ms"`
	ReconnectJitter        float64 `toml:"reconnect_jitter"`
}

// Refresh controls full-refresh pulls.
type Refresh struct {
	IntervalSeconds    int `toml:"interval_seconds"`
	MinIntervalSeconds int `toml:"min_interval_seconds"`
	DefaultRangeDays   int `toml:"default_range_days"`
}

// Costs contains spend alerting settings.
type Costs struct {
	AlertThreshold float64 `toml:"alert_threshold"`
}

// API contains the local control API settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Influx configures the optional cost time-series sink.
type Influx struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Token   string `toml:"token"`
	Org     string `toml:"org"`
	Bucket  string `toml:"bucket"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for aiwatch.
//
// Configuration sections by subsystem:
//   - Paths: state cache and log directories
//   - Backend: REST and websocket endpoints plus owner identity
//   - Channel: heartbeat cadence and reconnect backoff
//   - Refresh: periodic pull cadence and manual refresh throttle
//   - Costs: spend alert threshold
//   - API: local control API bind address
//   - Influx: optional cost time-series export
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Backend Backend `toml:"backend"`
	Channel Channel `toml:"channel"`
	Refresh Refresh `toml:"refresh"`
	Costs   Costs   `toml:"costs"`
	API     API     `toml:"api"`
	Influx  Influx  `toml:"influx"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/aiwatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("aiwatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StateDBPath returns the location of the local state cache database.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.Paths.StateDir, "state.db")
}

// LockPath returns the single-instance lock file for the watcher.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "aiwatch.lock")
}

// RequestTimeout returns the per-request deadline for backend calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns the ping cadence of the sync channel.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Channel.HeartbeatIntervalSeconds) * time.Second
}

// ReconnectInitial returns the first reconnect delay.
func (c *Config) ReconnectInitial() time.Duration {
	return time.Duration(c.Channel.ReconnectInitialMillis) * time.Millisecond
}

// ReconnectMax returns the reconnect delay ceiling.
func (c *Config) ReconnectMax() time.Duration {
	return time.Duration(c.Channel.ReconnectMaxMillis) * time.Millisecond
}

// RefreshInterval returns the periodic full-refresh cadence. Zero disables it.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalSeconds) * time.Second
}

// RefreshMinInterval returns the minimum spacing between on-demand refreshes.
func (c *Config) RefreshMinInterval() time.Duration {
	return time.Duration(c.Refresh.MinIntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
