package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateChannel(); err != nil {
		return err
	}
	if err := c.validateCosts(); err != nil {
		return err
	}
	if err := c.validateInflux(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.OwnerID == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/aiwatch/config.toml"
		}
		return fmt.Errorf("backend.owner_id is required. Set AIWATCH_OWNER_ID env var or edit %s (create with 'aiwatch config init')", defaultPath)
	}
	base, err := url.Parse(c.Backend.BaseURL)
	if err != nil || base.Host == "" {
		return fmt.Errorf("backend.base_url %q must be an absolute URL", c.Backend.BaseURL)
	}
	ws, err := url.Parse(c.Backend.WebsocketURL)
	if err != nil || ws.Host == "" {
		return fmt.Errorf("backend.ws_url %q must be an absolute URL", c.Backend.WebsocketURL)
	}
	if ws.Scheme != "ws" && ws.Scheme != "wss" {
		return fmt.Errorf("backend.ws_url must use ws or wss, got %q", ws.Scheme)
	}
	return nil
}

func (c *Config) validateChannel() error {
	if c.Channel.ReconnectJitter < 0 || c.Channel.ReconnectJitter >= 1 {
		return errors.New("channel.reconnect_jitter must be in [0, 1)")
	}
	return nil
}

func (c *Config) validateCosts() error {
	if c.Costs.AlertThreshold < 0 {
		return errors.New("costs.alert_threshold must be non-negative")
	}
	return nil
}

func (c *Config) validateInflux() error {
	if !c.Influx.Enabled {
		return nil
	}
	if c.Influx.URL == "" {
		return errors.New("influx.url must be set when influx.enabled is true")
	}
	if c.Influx.Org == "" {
		return errors.New("influx.org must be set when influx.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format must be console, json, or auto, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
