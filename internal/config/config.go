package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models questpilot.yml.
type Config struct {
	Calendar struct {
		Enabled     bool     `yaml:"enabled" json:"enabled"`
		CalendarIDs []string `yaml:"calendar_ids" json:"calendar_ids"`
	} `yaml:"calendar" json:"calendar"`
	Defaults struct {
		Reward          int `yaml:"reward" json:"reward"`
		DurationMinutes int `yaml:"duration_minutes" json:"duration_minutes"`
		BreakMinutes    int `yaml:"break_minutes" json:"break_minutes"`
	} `yaml:"defaults" json:"defaults"`
	Progression struct {
		XPPerLevel int `yaml:"xp_per_level" json:"xp_per_level"`
	} `yaml:"progression" json:"progression"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with qp config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Defaults.Reward < 0 {
		return fmt.Errorf("config.defaults.reward must not be negative")
	}
	if c.Defaults.DurationMinutes < 0 || c.Defaults.BreakMinutes < 0 {
		return fmt.Errorf("config.defaults durations must not be negative")
	}
	if c.Progression.XPPerLevel <= 0 {
		return fmt.Errorf("config.progression.xp_per_level must be positive")
	}
	for _, id := range c.Calendar.CalendarIDs {
		if id == "" {
			return fmt.Errorf("config.calendar.calendar_ids contains an empty id")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "questpilot.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `calendar:
  enabled: false
  calendar_ids: []

defaults:
  reward: 5
  duration_minutes: 25
  break_minutes: 5

progression:
  xp_per_level: 100
`
