package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the broker server configuration, loaded from environment
// variables with a .env file as optional fallback.
type Config struct {
	// DatabaseURL points at the control-plane database that stores
	// encrypted connection configs and usage history. It is not a user
	// database.
	DatabaseURL string

	// EncryptionKey is the hex-encoded 32-byte master key that per-user
	// encryption keys are derived from.
	EncryptionKey string

	ListenAddr string
	CORSOrigin string
	LogLevel   slog.Level

	// MaxTenants caps how many live user connections the broker holds at
	// once; the least recently used is closed past it.
	MaxTenants int

	// TunnelPortBase and TunnelPortCapacity bound the local listen ports
	// handed to SSH tunnels.
	TunnelPortBase     int
	TunnelPortCapacity int

	// RateLimitPerMinute is the per-user budget for query and schema
	// requests.
	RateLimitPerMinute int

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// Load reads configuration from the environment. A .env file in the
// working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		EncryptionKey:      os.Getenv("ENCRYPTION_KEY"),
		ListenAddr:         ":8080",
		MaxTenants:         64,
		TunnelPortBase:     15432,
		TunnelPortCapacity: 64,
		RateLimitPerMinute: 120,
		ReadHeaderTimeout:  5 * time.Second,
		IdleTimeout:        60 * time.Second,
		ShutdownTimeout:    15 * time.Second,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY environment variable is required")
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}

	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		cfg.CORSOrigin = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}

	if v := os.Getenv("MAX_TENANTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_TENANTS value %q: must be a positive integer", v)
		}
		cfg.MaxTenants = n
	}

	if v := os.Getenv("TUNNEL_PORT_BASE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("invalid TUNNEL_PORT_BASE value %q: must be a port number", v)
		}
		cfg.TunnelPortBase = n
	}

	if v := os.Getenv("TUNNEL_PORT_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid TUNNEL_PORT_CAPACITY value %q: must be a positive integer", v)
		}
		cfg.TunnelPortCapacity = n
	}

	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE value %q: must be a positive integer", v)
		}
		cfg.RateLimitPerMinute = n
	}

	if v := os.Getenv("READ_HEADER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid READ_HEADER_TIMEOUT: %w", err)
		}
		cfg.ReadHeaderTimeout = d
	}

	if v := os.Getenv("IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
		}
		cfg.IdleTimeout = d
	}

	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = d
	}

	return cfg, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
