package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Engine      EngineConfig    `toml:"engine"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Playbooks   PlaybooksConfig `toml:"playbooks"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// EngineConfig controls the queue and worker pool. Durations are strings
// parsed at access time so config files stay readable.
type EngineConfig struct {
	PollInterval    string  `toml:"poll_interval"`    // e.g., "1s" - worker pool poll tick
	Concurrency     int     `toml:"concurrency"`      // Number of worker slots
	MaxAttempts     int     `toml:"max_attempts"`     // Default attempt budget per job
	RetryBaseDelay  string  `toml:"retry_base_delay"` // First retry delay, e.g., "5s"
	RetryMultiplier float64 `toml:"retry_multiplier"` // Backoff growth factor
	RetryMaxDelay   string  `toml:"retry_max_delay"`  // Backoff ceiling, e.g., "5m"
	CleanupMaxAge   string  `toml:"cleanup_max_age"`  // Terminal job retention, e.g., "24h"
	CleanupInterval string  `toml:"cleanup_interval"` // How often to purge, e.g., "1h"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// PlaybooksConfig contains configuration for playbook definition loading
type PlaybooksConfig struct {
	DefinitionsDir string `toml:"definitions_dir"` // Directory containing playbook definition files (TOML)
}

// WebSocketConfig contains configuration for WebSocket run streaming
type WebSocketConfig struct {
	// Throttle intervals for high-frequency event types. Map of event type
	// to duration string, e.g., {"step.log.appended": "500ms"}.
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Engine: EngineConfig{
			PollInterval:    "1s",
			Concurrency:     5,
			MaxAttempts:     3,
			RetryBaseDelay:  "5s",
			RetryMultiplier: 2.0,
			RetryMaxDelay:   "5m",
			CleanupMaxAge:   "24h",
			CleanupInterval: "1h",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
		Playbooks: PlaybooksConfig{
			DefinitionsDir: "./playbooks",
		},
		WebSocket: WebSocketConfig{
			// Throttle log streaming so a chatty step cannot flood clients
			ThrottleIntervals: map[string]string{
				"step.log.appended": "500ms",
			},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier
// files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PRAVADO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("PRAVADO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PRAVADO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Engine configuration
	if pollInterval := os.Getenv("PRAVADO_ENGINE_POLL_INTERVAL"); pollInterval != "" {
		config.Engine.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("PRAVADO_ENGINE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Engine.Concurrency = c
		}
	}
	if maxAttempts := os.Getenv("PRAVADO_ENGINE_MAX_ATTEMPTS"); maxAttempts != "" {
		if ma, err := strconv.Atoi(maxAttempts); err == nil {
			config.Engine.MaxAttempts = ma
		}
	}
	if baseDelay := os.Getenv("PRAVADO_ENGINE_RETRY_BASE_DELAY"); baseDelay != "" {
		config.Engine.RetryBaseDelay = baseDelay
	}
	if multiplier := os.Getenv("PRAVADO_ENGINE_RETRY_MULTIPLIER"); multiplier != "" {
		if m, err := strconv.ParseFloat(multiplier, 64); err == nil {
			config.Engine.RetryMultiplier = m
		}
	}
	if maxDelay := os.Getenv("PRAVADO_ENGINE_RETRY_MAX_DELAY"); maxDelay != "" {
		config.Engine.RetryMaxDelay = maxDelay
	}

	// Storage configuration
	if badgerPath := os.Getenv("PRAVADO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("PRAVADO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PRAVADO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Playbooks configuration
	if definitionsDir := os.Getenv("PRAVADO_PLAYBOOKS_DIR"); definitionsDir != "" {
		config.Playbooks.DefinitionsDir = definitionsDir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Command-line flags have highest priority.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ParseDuration parses a duration string, falling back to a default when
// the value is empty or malformed
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
