// Package container provides dependency injection and lifecycle management
// for the dealflow service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/dealflow/internal/domain/entity"
)

// Session store backends
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database  DatabaseConfig
	Sessions  SessionConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Signing   SigningConfig
	Retention RetentionConfig
	Identity  IdentityConfig
	Server    ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file, or ":memory:"
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SessionConfig selects where signing sessions live.
type SessionConfig struct {
	// Backend is "memory" or "redis"
	Backend string

	// KeyPrefix namespaces Redis keys
	KeyPrefix string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	// BaseDir is the root directory of signature images and manifests
	BaseDir string
}

// SigningConfig holds the signing windows and the consent text shown to signers.
type SigningConfig struct {
	SessionWindow   time.Duration
	PreviewWindow   time.Duration
	RetentionWindow time.Duration
	ConsentText     string
	ConsentVersion  string
}

// RetentionConfig holds sweeper settings.
type RetentionConfig struct {
	// Enabled runs the sweeper as a background worker
	Enabled bool

	Interval  time.Duration
	Grace     time.Duration
	BatchSize int
}

// IdentityConfig holds settings of the header identity provider.
type IdentityConfig struct {
	// Secret verifies X-Identity-Signature; empty disables verification
	Secret string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/dealflow.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Sessions: SessionConfig{
			Backend:   SessionBackendMemory,
			KeyPrefix: "dealflow:",
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DialTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			BaseDir: "data/objects",
		},
		Signing: SigningConfig{
			SessionWindow:   entity.DefaultSessionWindow,
			PreviewWindow:   entity.DefaultPreviewWindow,
			RetentionWindow: entity.DefaultRetentionWindow,
			ConsentText:     entity.ConsentText,
			ConsentVersion:  entity.ConsentVersion,
		},
		Retention: RetentionConfig{
			Enabled:   true,
			Interval:  5 * time.Minute,
			Grace:     entity.DefaultSweepGrace,
			BatchSize: 500,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Sessions.Backend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis session backend")
		}
	default:
		return fmt.Errorf("sessions.backend must be %q or %q, got %q", SessionBackendMemory, SessionBackendRedis, c.Sessions.Backend)
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	if c.Signing.SessionWindow <= 0 || c.Signing.PreviewWindow <= 0 || c.Signing.RetentionWindow <= 0 {
		return fmt.Errorf("signing windows must be positive")
	}
	if c.Signing.PreviewWindow > c.Signing.RetentionWindow {
		return fmt.Errorf("signing.preview_window must not exceed signing.retention_window")
	}

	if c.Retention.Grace < 0 {
		return fmt.Errorf("retention.grace must not be negative")
	}
	if c.Retention.Enabled && c.Retention.Interval <= 0 {
		return fmt.Errorf("retention.interval must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	return nil
}
