// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP Server
	Port            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Storage
	StorageBackend string
	DBPath         string

	// Auth
	JWTSecret string

	// Group locking
	LockBackend    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	LockExpiry     time.Duration
	LockTries      int
	LockRetryDelay time.Duration

	// AMQP (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// Load reads a .env file when present, then the environment.
func Load() *Config {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		CORSOrigins:     getEnvList("CORS_ORIGINS", []string{"*"}),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		StorageBackend: getEnv("STORAGE_BACKEND", "sqlite"),
		DBPath:         getEnv("DB_PATH", "./data/equalsplit.db"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		LockBackend:    getEnv("LOCK_BACKEND", "local"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		LockExpiry:     getEnvDuration("LOCK_EXPIRY", 10*time.Second),
		LockTries:      getEnvInt("LOCK_TRIES", 32),
		LockRetryDelay: getEnvDuration("LOCK_RETRY_DELAY", 50*time.Millisecond),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "equalsplit"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "equalsplit_notifications"),
	}
}

// Validate returns every configuration problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.ShutdownTimeout <= 0 {
		errors = append(errors, "shutdown timeout must be positive")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	switch c.StorageBackend {
	case "memory":
	case "sqlite":
		if c.DBPath == "" {
			errors = append(errors, "database path cannot be empty when using sqlite backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid storage backend '%s': must be sqlite or memory", c.StorageBackend))
	}

	if len(c.JWTSecret) < 16 {
		errors = append(errors, "JWT secret must be at least 16 characters")
	}

	switch c.LockBackend {
	case "local":
	case "redis":
		if c.RedisAddr == "" {
			errors = append(errors, "Redis address is required when using redis lock backend")
		}
		if c.RedisDB < 0 {
			errors = append(errors, fmt.Sprintf("invalid Redis DB %d", c.RedisDB))
		}
		if c.LockExpiry <= 0 {
			errors = append(errors, "lock expiry must be positive")
		}
		if c.LockTries < 1 {
			errors = append(errors, "lock tries must be at least 1")
		}
		if c.LockRetryDelay < 0 {
			errors = append(errors, "lock retry delay cannot be negative")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid lock backend '%s': must be local or redis", c.LockBackend))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}

// LogValue hides secrets when the config is logged.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("port", c.Port),
		slog.String("storage_backend", c.StorageBackend),
		slog.String("db_path", c.DBPath),
		slog.String("lock_backend", c.LockBackend),
		slog.Bool("amqp_enabled", c.AMQPURL != ""),
		slog.String("log_level", c.LogLevel),
		slog.String("log_format", c.LogFormat),
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("Ignoring invalid integer setting", "key", key, "value", value)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Ignoring invalid duration setting", "key", key, "value", value)
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
