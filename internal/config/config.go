package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"budget/internal/log"
)

type Config struct {
	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string
	// SQLitePollInterval is how often to look for writes made by other
	// processes; zero turns it off.
	SQLitePollInterval time.Duration

	// Logging
	LogLevel string

	// Timezone is an IANA name; empty means the local zone.
	Timezone string

	// Engine
	QueueSize       int
	ShutdownTimeout time.Duration
}

func Load() *Config {
	return &Config{
		DataBackend:        getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath:       getEnv("SQLITE_DB_PATH", "./data/budget.db"),
		SQLitePollInterval: getEnvDuration("SQLITE_POLL_INTERVAL", time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		Timezone: getEnv("BUDGET_TIMEZONE", ""),

		QueueSize:       getEnvInt("ENGINE_QUEUE_SIZE", 64),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
	}
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.SQLitePollInterval != 0 && (c.SQLitePollInterval < 50*time.Millisecond || c.SQLitePollInterval > time.Minute) {
		errors = append(errors, fmt.Sprintf("invalid SQLite poll interval %v: must be 0 or between 50ms and 1 minute", c.SQLitePollInterval))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.QueueSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid engine queue size %d: must be at least 1", c.QueueSize))
	} else if c.QueueSize > 4096 {
		errors = append(errors, fmt.Sprintf("invalid engine queue size %d: must be at most 4096", c.QueueSize))
	}

	if c.ShutdownTimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 100ms", c.ShutdownTimeout))
	} else if c.ShutdownTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at most 1 minute", c.ShutdownTimeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location resolves Timezone, falling back to time.Local when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
