package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/dealflow/internal/domain/entity"
)

// EnvPrefix prefixes every environment override, e.g. DEALFLOW_SERVER_PORT
const EnvPrefix = "DEALFLOW"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Signing   SigningConfig   `mapstructure:"signing"`
	Retention RetentionConfig `mapstructure:"retention"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// SessionsConfig selects the signing session store
type SessionsConfig struct {
	Backend   string `mapstructure:"backend"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// SigningConfig holds the signing windows and consent text
type SigningConfig struct {
	SessionWindow   time.Duration `mapstructure:"session_window"`
	PreviewWindow   time.Duration `mapstructure:"preview_window"`
	RetentionWindow time.Duration `mapstructure:"retention_window"`
	ConsentText     string        `mapstructure:"consent_text"`
	ConsentVersion  string        `mapstructure:"consent_version"`
}

// RetentionConfig holds sweeper configuration
type RetentionConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	Grace     time.Duration `mapstructure:"grace"`
	BatchSize int           `mapstructure:"batch_size"`
}

// IdentityConfig holds the gateway identity settings
type IdentityConfig struct {
	Secret string `mapstructure:"secret"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from an optional .env file, the config file and
// environment variables, in increasing order of precedence. An empty
// configPath uses defaults and environment only.
func Load(configPath string) (*Config, error) {
	return LoadWithEnvFile(configPath, ".env")
}

// LoadWithEnvFile is Load with an explicit .env location. A missing .env file is ignored.
func LoadWithEnvFile(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := gotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/dealflow.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Redis and session defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("sessions.backend", "memory")
	v.SetDefault("sessions.key_prefix", "dealflow:")

	v.SetDefault("storage.base_dir", "data/objects")

	// Signing defaults
	v.SetDefault("signing.session_window", entity.DefaultSessionWindow)
	v.SetDefault("signing.preview_window", entity.DefaultPreviewWindow)
	v.SetDefault("signing.retention_window", entity.DefaultRetentionWindow)
	v.SetDefault("signing.consent_text", entity.ConsentText)
	v.SetDefault("signing.consent_version", entity.ConsentVersion)

	// Retention defaults
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.interval", 5*time.Minute)
	v.SetDefault("retention.grace", entity.DefaultSweepGrace)
	v.SetDefault("retention.batch_size", 500)

	v.SetDefault("identity.secret", "")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the unprefixed names deployment tooling commonly sets for secrets
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"redis.password":  {"DEALFLOW_REDIS_PASSWORD", "REDIS_PASSWORD"},
		"redis.addr":      {"DEALFLOW_REDIS_ADDR", "REDIS_ADDR"},
		"identity.secret": {"DEALFLOW_IDENTITY_SECRET", "IDENTITY_SHARED_SECRET"},
	}
	for key, names := range bindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when sessions.backend is redis")
		}
	default:
		return fmt.Errorf("sessions.backend must be memory or redis, got %q", c.Sessions.Backend)
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	if c.Signing.SessionWindow <= 0 {
		return fmt.Errorf("signing.session_window must be positive")
	}
	if c.Signing.PreviewWindow <= 0 || c.Signing.PreviewWindow > c.Signing.RetentionWindow {
		return fmt.Errorf("signing.preview_window must be positive and not exceed signing.retention_window")
	}
	if c.Signing.ConsentText == "" || c.Signing.ConsentVersion == "" {
		return fmt.Errorf("signing.consent_text and signing.consent_version are required")
	}

	if c.Retention.Grace < 0 {
		return fmt.Errorf("retention.grace must not be negative")
	}
	if c.Retention.Enabled && c.Retention.Interval <= 0 {
		return fmt.Errorf("retention.interval must be positive when retention is enabled")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}

	return nil
}
