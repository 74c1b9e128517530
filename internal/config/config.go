package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML
// file. Values from the file sit between the built-in defaults and the
// environment: env vars always win.
const ConfigFileEnv = "LEDGER_CONFIG_FILE"

var (
	validBackends  = []string{"memory", "sqlite", "wal"}
	validLogLevels = []string{"debug", "info", "warn", "warning", "error"}
)

type Config struct {
	// HTTP Server
	Port               string `yaml:"port"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`

	// Backend selection
	DataBackend string `yaml:"data_backend"`
	StorageKey  string `yaml:"storage_key"`

	// Database
	SQLiteDBPath string `yaml:"sqlite_db_path"`

	// Write-ahead log
	WALDir              string `yaml:"wal_dir"`
	WALSegmentThreshold int    `yaml:"wal_segment_threshold"`
	WALMaxSegments      int    `yaml:"wal_max_segments"`

	// Memory backend seed files
	MemorySeedDir string `yaml:"memory_seed_dir"`

	// Presentation
	CurrencySymbol string `yaml:"currency_symbol"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// AMQP, disabled when the URL is empty
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	AMQPQueue    string `yaml:"amqp_queue"`

	// Audit worker
	AuditInterval time.Duration `yaml:"audit_interval"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:               "8081",
		RateLimitPerMinute: 120,

		DataBackend: "memory",
		StorageKey:  "expenses",

		SQLiteDBPath: "./data/ledger.db",

		WALDir:              "./data/wal",
		WALSegmentThreshold: 1000,
		WALMaxSegments:      10,

		MemorySeedDir: "",

		CurrencySymbol: "¥",
		LogLevel:       "info",

		AMQPURL:      "",
		AMQPExchange: "ledger",
		AMQPQueue:    "ledger_changes",

		AuditInterval:   5 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by LEDGER_CONFIG_FILE and the environment, in that order.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// MergeFile overlays the values present in a YAML file. Keys missing from
// the file keep their current value.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)

	c.DataBackend = getEnv("DATA_BACKEND", c.DataBackend)
	c.StorageKey = getEnv("STORAGE_KEY", c.StorageKey)
	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)

	c.WALDir = getEnv("WAL_DIR", c.WALDir)
	c.WALSegmentThreshold = getEnvInt("WAL_SEGMENT_THRESHOLD", c.WALSegmentThreshold)
	c.WALMaxSegments = getEnvInt("WAL_MAX_SEGMENTS", c.WALMaxSegments)

	c.MemorySeedDir = getEnv("MEMORY_SEED_DIR", c.MemorySeedDir)
	c.CurrencySymbol = getEnv("CURRENCY_SYMBOL", c.CurrencySymbol)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)

	c.AuditInterval = getEnvDuration("AUDIT_INTERVAL", c.AuditInterval)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
}

// AMQPEnabled reports whether change events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// WithoutEvents returns a copy of the configuration with change events
// switched off, for processes that only read the backend.
func (c *Config) WithoutEvents() *Config {
	cp := *c
	cp.AMQPURL = ""
	return &cp
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 || c.RateLimitPerMinute > 10000 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be between 1 and 10000 per minute", c.RateLimitPerMinute))
	}

	// Validate data backend
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if strings.TrimSpace(c.StorageKey) == "" {
		errors = append(errors, "storage key cannot be empty")
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "wal":
		if c.WALDir == "" {
			errors = append(errors, "WAL directory cannot be empty when using wal backend")
		}
		if c.WALSegmentThreshold < 1 {
			errors = append(errors, fmt.Sprintf("invalid WAL segment threshold %d: must be at least 1", c.WALSegmentThreshold))
		}
		if c.WALMaxSegments < 2 {
			errors = append(errors, fmt.Sprintf("invalid WAL max segments %d: must be at least 2", c.WALMaxSegments))
		}
	case "memory":
		if c.MemorySeedDir != "" {
			if info, err := os.Stat(c.MemorySeedDir); err != nil || !info.IsDir() {
				errors = append(errors, fmt.Sprintf("memory seed directory does not exist: %s", c.MemorySeedDir))
			}
		}
	}

	if strings.TrimSpace(c.CurrencySymbol) == "" {
		errors = append(errors, "currency symbol cannot be empty")
	}

	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.AuditInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid audit interval %v: must be at least 1 second", c.AuditInterval))
	} else if c.AuditInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid audit interval %v: must be at most 24 hours", c.AuditInterval))
	}

	if c.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be positive", c.ShutdownTimeout))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
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
