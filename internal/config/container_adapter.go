package config

import (
	"github.com/garyjia/dealflow/internal/container"
	"github.com/garyjia/dealflow/pkg/utils"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Sessions: container.SessionConfig{
			Backend:   c.Sessions.Backend,
			KeyPrefix: c.Sessions.KeyPrefix,
		},
		Redis: container.RedisConfig{
			Addr:        c.Redis.Addr,
			Password:    c.Redis.Password,
			DB:          c.Redis.DB,
			DialTimeout: c.Redis.DialTimeout,
		},
		Storage: container.StorageConfig{
			BaseDir: c.Storage.BaseDir,
		},
		Signing: container.SigningConfig{
			SessionWindow:   c.Signing.SessionWindow,
			PreviewWindow:   c.Signing.PreviewWindow,
			RetentionWindow: c.Signing.RetentionWindow,
			ConsentText:     c.Signing.ConsentText,
			ConsentVersion:  c.Signing.ConsentVersion,
		},
		Retention: container.RetentionConfig{
			Enabled:   c.Retention.Enabled,
			Interval:  c.Retention.Interval,
			Grace:     c.Retention.Grace,
			BatchSize: c.Retention.BatchSize,
		},
		Identity: container.IdentityConfig{
			Secret: c.Identity.Secret,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}

// ToLoggerConfig converts the logger section for utils.NewLogger
func (c *Config) ToLoggerConfig() utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
	}
}
