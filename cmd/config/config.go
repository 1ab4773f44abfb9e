package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/onkernel/bagctl/lib/logger"
)

// Config holds all configuration for the playback service and CLI
type Config struct {
	// Server configuration
	Port int `envconfig:"PORT" default:"10002"`

	// Absolute or relative path to the rosbag binary. If it has no slash it is resolved on $PATH.
	RosbagPath string `envconfig:"ROSBAG_PATH" default:"rosbag"`

	// Playback lifecycle
	StopGracePeriod time.Duration `envconfig:"STOP_GRACE_PERIOD" default:"2s"`
	ExitFlushDelay  time.Duration `envconfig:"EXIT_FLUSH_DELAY" default:"1s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, err
	}
	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(config *Config) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if config.RosbagPath == "" {
		return fmt.Errorf("ROSBAG_PATH is required")
	}
	if config.StopGracePeriod < 0 {
		return fmt.Errorf("STOP_GRACE_PERIOD must not be negative")
	}
	if config.ExitFlushDelay < 0 {
		return fmt.Errorf("EXIT_FLUSH_DELAY must not be negative")
	}
	if _, err := logger.ParseLevel(config.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return nil
}
