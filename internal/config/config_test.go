package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"aiwatch/internal/config"
)

func TestLoadDefaultConfigUsesEnvOwnerAndExpandsPaths(t *testing.T) {
	t.Setenv("AIWATCH_OWNER_ID", "owner-1")
	t.Setenv("AIWATCH_API_TOKEN", "secret")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "aiwatch")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Backend.OwnerID != "owner-1" {
		t.Fatalf("expected owner from env, got %q", cfg.Backend.OwnerID)
	}
	if cfg.Backend.APIToken != "secret" {
		t.Fatalf("expected token from env, got %q", cfg.Backend.APIToken)
	}
	if cfg.Backend.WebsocketURL != "ws://127.0.0.1:3000/api/ai/websocket" {
		t.Fatalf("unexpected derived websocket url: %q", cfg.Backend.WebsocketURL)
	}
	if cfg.Channel.HeartbeatIntervalSeconds != 30 {
		t.Fatalf("expected 30s heartbeat, got %d", cfg.Channel.HeartbeatIntervalSeconds)
	}
	if cfg.ReconnectInitial().Milliseconds() != 3000 {
		t.Fatalf("expected 3s initial reconnect delay, got %s", cfg.ReconnectInitial())
	}
	if cfg.API.Bind != "127.0.0.1:7590" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadRequiresOwner(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("AIWATCH_OWNER_ID", "")
	t.Chdir(t.TempDir())

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error without owner id")
	}
	if !strings.Contains(err.Error(), "backend.owner_id") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "aiwatch.toml")

	type payload struct {
		Backend struct {
			BaseURL string `toml:"base_url"`
			OwnerID string `toml:"owner_id"`
		} `toml:"backend"`
		Channel struct {
			ReconnectInitialMillis int `toml:"reconnect_initial_ms"`
			ReconnectMaxMillis     int `toml:"reconnect_max_ms"`
		} `toml:"channel"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Backend.BaseURL = "https://dash.example.com/"
	custom.Backend.OwnerID = "owner-42"
	custom.Channel.ReconnectInitialMillis = 5000
	custom.Channel.ReconnectMaxMillis = 1000
	custom.Logging.Format = " JSON "

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom path to resolve, got %q exists=%v", resolved, exists)
	}
	if cfg.Backend.BaseURL != "https://dash.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.WebsocketURL != "wss://dash.example.com/api/ai/websocket" {
		t.Fatalf("unexpected websocket url: %q", cfg.Backend.WebsocketURL)
	}
	if cfg.Channel.ReconnectMaxMillis != 5000 {
		t.Fatalf("expected max delay raised to initial delay, got %d", cfg.Channel.ReconnectMaxMillis)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized log format, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBadInflux(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.OwnerID = "owner"
	cfg.Backend.WebsocketURL = "ws://127.0.0.1:3000/api/ai/websocket"
	cfg.Influx.Enabled = true

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected influx validation error")
	}
	cfg.Influx.URL = "http://influx:8086"
	cfg.Influx.Org = "acme"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("AIWATCH_OWNER_ID", "owner-sample")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Backend.OwnerID != "owner-sample" {
		t.Fatalf("expected env owner to fill empty sample value, got %q", cfg.Backend.OwnerID)
	}
}
