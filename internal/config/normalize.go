package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeBackend(); err != nil {
		return err
	}
	c.normalizeChannel()
	c.normalizeRefresh()
	c.normalizeAPI()
	c.normalizeInflux()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBackend() error {
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaultBackendBaseURL
	}
	c.Backend.APIToken = strings.TrimSpace(c.Backend.APIToken)
	if c.Backend.APIToken == "" {
		if value, ok := os.LookupEnv("AIWATCH_API_TOKEN"); ok {
			c.Backend.APIToken = strings.TrimSpace(value)
		}
	}
	c.Backend.OwnerID = strings.TrimSpace(c.Backend.OwnerID)
	if c.Backend.OwnerID == "" {
		if value, ok := os.LookupEnv("AIWATCH_OWNER_ID"); ok {
			c.Backend.OwnerID = strings.TrimSpace(value)
		}
	}
	c.Backend.WebsocketURL = strings.TrimSpace(c.Backend.WebsocketURL)
	if c.Backend.WebsocketURL == "" {
		derived, err := deriveWebsocketURL(c.Backend.BaseURL)
		if err != nil {
			return fmt.Errorf("backend.ws_url: %w", err)
		}
		c.Backend.WebsocketURL = derived
	}
	if c.Backend.RequestTimeoutSeconds <= 0 {
		c.Backend.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	return nil
}

// deriveWebsocketURL maps http(s)://host to ws(s)://host/api/ai/websocket,
// mirroring how the dashboard derives the channel endpoint from its origin.
func deriveWebsocketURL(base string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse backend.base_url: %w", err)
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http", "":
		parsed.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + defaultWebsocketPath
	parsed.RawQuery = ""
	return parsed.String(), nil
}

func (c *Config) normalizeChannel() {
	if c.Channel.HeartbeatIntervalSeconds <= 0 {
		c.Channel.HeartbeatIntervalSeconds = defaultHeartbeatIntervalSeconds
	}
	if c.Channel.MaxMissedPongs <= 0 {
		c.Channel.MaxMissedPongs = defaultMaxMissedPongs
	}
	if c.Channel.ReconnectInitialMillis <= 0 {
		c.Channel.ReconnectInitialMillis = defaultReconnectInitialMillis
	}
	if c.Channel.ReconnectMaxMillis <= 0 {
		c.Channel.ReconnectMaxMillis = defaultReconnectMaxMillis
	}
	if c.Channel.ReconnectMaxMillis < c.Channel.ReconnectInitialMillis {
		c.Channel.ReconnectMaxMillis = c.Channel.ReconnectInitialMillis
	}
}

func (c *Config) normalizeRefresh() {
	if c.Refresh.IntervalSeconds < 0 {
		c.Refresh.IntervalSeconds = 0
	}
	if c.Refresh.MinIntervalSeconds <= 0 {
		c.Refresh.MinIntervalSeconds = defaultRefreshMinInterval
	}
	if c.Refresh.DefaultRangeDays <= 0 {
		c.Refresh.DefaultRangeDays = defaultRangeDays
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
}

func (c *Config) normalizeInflux() {
	c.Influx.URL = strings.TrimRight(strings.TrimSpace(c.Influx.URL), "/")
	c.Influx.Org = strings.TrimSpace(c.Influx.Org)
	c.Influx.Bucket = strings.TrimSpace(c.Influx.Bucket)
	if c.Influx.Bucket == "" {
		c.Influx.Bucket = defaultInfluxBucket
	}
	c.Influx.Token = strings.TrimSpace(c.Influx.Token)
	if c.Influx.Token == "" {
		if value, ok := os.LookupEnv("AIWATCH_INFLUX_TOKEN"); ok {
			c.Influx.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
