package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Runner        RunnerConfig        `toml:"runner"`
	Specs         SpecsConfig         `toml:"specs"`
	Notifications NotificationsConfig `toml:"notifications"`
	Display       DisplayConfig       `toml:"display"`
}

// RunnerConfig holds backend runner settings
type RunnerConfig struct {
	BaseURL      string `toml:"base_url"`
	ScheduleFile string `toml:"schedule_file"`
}

// SpecsConfig holds specification discovery settings
type SpecsConfig struct {
	Dir          string `toml:"dir"`
	PlanCacheDB  string `toml:"plan_cache_db"`
	WatchChanges bool   `toml:"watch_changes"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// DisplayConfig holds TUI settings
type DisplayConfig struct {
	LogLines int `toml:"log_lines"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Runner: RunnerConfig{
			BaseURL: "http://127.0.0.1:9090",
		},
		Specs: SpecsConfig{
			Dir:          "specs",
			PlanCacheDB:  filepath.Join(home, ".runboard", "plans.db"),
			WatchChanges: true,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Display: DisplayConfig{
			LogLines: 12,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.Specs.Dir = ExpandPath(cfg.Specs.Dir)
	cfg.Specs.PlanCacheDB = ExpandPath(cfg.Specs.PlanCacheDB)
	cfg.Runner.ScheduleFile = ExpandPath(cfg.Runner.ScheduleFile)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "runboard", "config.toml")
}
