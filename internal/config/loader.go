package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads and parses the configuration file. Defaults are applied
// before validation, so a minimal config file is enough to run.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with all defaults applied, used when no
// config file is supplied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data/preferences"
	}
	if cfg.Storage.BufferSize == 0 {
		cfg.Storage.BufferSize = 100
	}

	if cfg.Hub.RateLimitPerMinute == 0 {
		cfg.Hub.RateLimitPerMinute = 60
	}
	if cfg.Hub.TimeoutSeconds == 0 {
		cfg.Hub.TimeoutSeconds = 120
	}
	if cfg.Hub.PageSize == 0 {
		cfg.Hub.PageSize = 100
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
