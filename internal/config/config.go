// Package config provides configuration management for flowgraph.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration for the flowgraph engine and
// its optional host-emitter collaborators.
type Config struct {
	Logging  LoggingConfig
	EventBus EventBusConfig
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"

	// BufferSize bounds the in-memory ring buffer logger.New keeps for
	// Entries. Zero disables buffering. A Flow builds its own logger with
	// a fixed buffer size and does not read this value.
	BufferSize int
}

// EventBusConfig configures the optional Redis-backed host event emitter.
// A Flow works without one; EventBusConfig only matters when the caller
// wires eventbus.New as the Graph definition's eventEmitter.
type EventBusConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// Load loads the configuration from environment variables.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Logging: LoggingConfig{
			Level:      getEnv("FLOWGRAPH_LOG_LEVEL", "info"),
			Format:     getEnv("FLOWGRAPH_LOG_FORMAT", "json"),
			BufferSize: getEnvAsInt("FLOWGRAPH_LOG_BUFFER_SIZE", 500),
		},
		EventBus: EventBusConfig{
			URL:      getEnv("FLOWGRAPH_EVENTBUS_URL", "redis://localhost:6379"),
			Password: getEnv("FLOWGRAPH_EVENTBUS_PASSWORD", ""),
			DB:       getEnvAsInt("FLOWGRAPH_EVENTBUS_DB", 0),
			PoolSize: getEnvAsInt("FLOWGRAPH_EVENTBUS_POOL_SIZE", 10),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Logging.BufferSize < 0 {
		return fmt.Errorf("log buffer size cannot be negative")
	}

	if c.EventBus.PoolSize < 0 {
		return fmt.Errorf("event bus pool size cannot be negative")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
