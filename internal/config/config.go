package config

import (
	"fmt"
	"log/slog"

	"github.com/lamim/prefharvest/internal/util"
	"github.com/lamim/prefharvest/pkg/models"
)

// Config represents the complete application configuration
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Hub     HubConfig     `toml:"hub"`
	Format  FormatConfig  `toml:"format"`
	Logging LoggingConfig `toml:"logging"`
}

// StorageConfig holds collector storage settings
type StorageConfig struct {
	Dir        string `toml:"dir"`
	BufferSize int    `toml:"buffer_size"` // Flush threshold (default: 100)
}

// HubConfig holds named-source hub settings
type HubConfig struct {
	BaseURL            string `toml:"base_url"`
	RateLimitPerMinute int    `toml:"rate_limit_per_minute"` // Requests per minute (default: 60)
	TimeoutSeconds     int    `toml:"timeout_seconds"`       // HTTP request timeout (default: 120)
	PageSize           int    `toml:"page_size"`             // Rows per request (default: 100)
}

// FormatConfig holds formatting settings
type FormatConfig struct {
	ChatTemplate string `toml:"chat_template"` // Optional text/template for chat rendering
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `toml:"level"` // debug, info, warn, error (default: info)
}

const (
	// MaxBufferSize is the maximum allowed flush threshold
	MaxBufferSize = 1_000_000
	// MaxRateLimitPerMinute is the maximum allowed hub request rate
	MaxRateLimitPerMinute = 6000
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required")
	}
	if c.Storage.BufferSize < 1 {
		return fmt.Errorf("storage.buffer_size must be at least 1 (got %d)", c.Storage.BufferSize)
	}
	if c.Storage.BufferSize > MaxBufferSize {
		return fmt.Errorf("storage.buffer_size must not exceed %d (got %d)", MaxBufferSize, c.Storage.BufferSize)
	}

	if c.Hub.RateLimitPerMinute < 1 {
		return fmt.Errorf("hub.rate_limit_per_minute must be at least 1 (got %d)", c.Hub.RateLimitPerMinute)
	}
	if c.Hub.RateLimitPerMinute > MaxRateLimitPerMinute {
		return fmt.Errorf("hub.rate_limit_per_minute must not exceed %d (got %d)", MaxRateLimitPerMinute, c.Hub.RateLimitPerMinute)
	}
	if c.Hub.TimeoutSeconds < 0 {
		return fmt.Errorf("hub.timeout_seconds must not be negative (got %d)", c.Hub.TimeoutSeconds)
	}
	if c.Hub.PageSize < 1 {
		return fmt.Errorf("hub.page_size must be at least 1 (got %d)", c.Hub.PageSize)
	}

	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return err
	}

	if c.Format.ChatTemplate != "" {
		if _, err := util.RenderTemplate(c.Format.ChatTemplate, map[string]any{
			"Messages":            []models.Message{},
			"AddGenerationPrompt": false,
		}); err != nil {
			return fmt.Errorf("format.chat_template is invalid: %w", err)
		}
	}

	return nil
}

// ParseLogLevel converts a config level string into a slog level
func ParseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging.level must be one of: debug, info, warn, error (got %q)", level)
	}
}
