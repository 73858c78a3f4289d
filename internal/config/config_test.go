package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.Runner.BaseURL != "http://127.0.0.1:9090" {
		t.Errorf("Runner.BaseURL = %q", cfg.Runner.BaseURL)
	}
	if !cfg.Specs.WatchChanges {
		t.Error("WatchChanges should default to true")
	}
	if cfg.Display.LogLines != 12 {
		t.Errorf("LogLines = %d, want 12", cfg.Display.LogLines)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[runner]
base_url = "http://runner.lan:7000"

[specs]
dir = "/work/specs"
watch_changes = false

[notifications]
desktop = false
slack_webhook = "https://hooks.slack.com/services/x"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Runner.BaseURL != "http://runner.lan:7000" {
		t.Errorf("BaseURL = %q", cfg.Runner.BaseURL)
	}
	if cfg.Specs.Dir != "/work/specs" {
		t.Errorf("Specs.Dir = %q", cfg.Specs.Dir)
	}
	if cfg.Specs.WatchChanges {
		t.Error("WatchChanges should be false")
	}
	if cfg.Notifications.SlackWebhook == "" {
		t.Error("SlackWebhook not loaded")
	}
	// Unset sections keep defaults
	if cfg.Display.LogLines != 12 {
		t.Errorf("LogLines = %d, want default 12", cfg.Display.LogLines)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runner.BaseURL == "" {
		t.Error("defaults not applied")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	os.WriteFile(configPath, []byte("[[[not toml"), 0644)

	if _, err := Load(configPath); err == nil {
		t.Error("Load should fail on invalid TOML")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	if got := ExpandPath("~/specs"); got != filepath.Join(home, "specs") {
		t.Errorf("ExpandPath(~/specs) = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath(/abs/path) = %q", got)
	}
}
