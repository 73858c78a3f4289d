package schedule

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Entry is one scheduled auto-start of a spec
type Entry struct {
	Spec   string `toml:"spec"`
	Cron   string `toml:"cron"`
	DryRun bool   `toml:"dry_run"`
}

// ScheduleConfig holds all scheduled entries
type ScheduleConfig struct {
	Entries []Entry `toml:"run"`
}

// Validate checks if the entry is valid
func (e *Entry) Validate() error {
	if e.Spec == "" {
		return fmt.Errorf("spec name is required")
	}
	if e.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(e.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// LoadScheduleConfig loads scheduled runs from a TOML file
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Entries {
		if err := cfg.Entries[i].Validate(); err != nil {
			return nil, fmt.Errorf("run %d: %w", i, err)
		}
	}

	return &cfg, nil
}
