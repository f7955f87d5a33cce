// Package config loads, normalizes, and validates aiwatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AIWATCH_API_TOKEN and AIWATCH_OWNER_ID. The Config type centralizes every
// knob the watcher and CLI need: backend endpoints, channel heartbeat and
// reconnect tuning, refresh cadence, the local API bind address, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, derived websocket URLs, and clear validation errors.
package config
