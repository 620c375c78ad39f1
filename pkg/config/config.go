// Package config holds the runtime configuration of blehub.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	goble "github.com/srg/blehub/internal/device/go-ble"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel           string        `yaml:"log_level" default:"info"`
	ScanTimeout        time.Duration `yaml:"scan_timeout" default:"10s"`
	DeviceTimeout      time.Duration `yaml:"device_timeout" default:"30s"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" default:"30s"`
	EventBuffer        int           `yaml:"event_buffer" default:"64"`
	NotificationBuffer int           `yaml:"notification_buffer" default:"16"`
	AllowDuplicates    bool          `yaml:"allow_duplicates" default:"true"`
	OutputFormat       string        `yaml:"output_format" default:"table"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ScanTimeout < 0 || c.DeviceTimeout < 0 || c.ConnectTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer must be > 0, got %d", c.EventBuffer)
	}
	if c.NotificationBuffer <= 0 {
		return fmt.Errorf("notification_buffer must be > 0, got %d", c.NotificationBuffer)
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("unsupported output_format %q (want table or json)", c.OutputFormat)
	}
	return nil
}

// Level returns the configured log level, info when it does not parse.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// AdapterOptions maps the configuration onto the go-ble adapter.
func (c *Config) AdapterOptions() goble.AdapterOptions {
	return goble.AdapterOptions{
		EventBuffer:     c.EventBuffer,
		DeviceTimeout:   c.DeviceTimeout,
		AllowDuplicates: c.AllowDuplicates,
		Peripheral: goble.Options{
			NotificationBuffer: c.NotificationBuffer,
			ConnectTimeout:     c.ConnectTimeout,
		},
	}
}
