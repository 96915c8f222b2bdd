package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Environment   string             `mapstructure:"environment"`
	Server        ServerConfig       `mapstructure:"server"`
	Upstream      UpstreamConfig     `mapstructure:"upstream"`
	DB            DatabaseConfig     `mapstructure:"database"`
	Redis         RedisConfig        `mapstructure:"redis"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig holds the BFF HTTP server configuration
type ServerConfig struct {
	Address     string        `mapstructure:"address"`
	Mode        string        `mapstructure:"mode"` // debug, release, test
	Timeout     time.Duration `mapstructure:"timeout"`
	CorsEnabled bool          `mapstructure:"cors_enabled"`
	CorsOrigins []string      `mapstructure:"cors_origins"`
	// MaxUploadBytes bounds multipart bodies accepted by the transition endpoints.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// UpstreamConfig points at the claims backend
type UpstreamConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	WSURL   string        `mapstructure:"ws_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig holds the session store configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds the query cache configuration
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Enabled  bool          `mapstructure:"enabled"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// NotificationConfig holds the live channel settings
type NotificationConfig struct {
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	ReconnectMaxInterval time.Duration `mapstructure:"reconnect_max_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
// An empty cfgFile searches ./config.yaml, ./config/config.yaml and app.env.
func LoadConfig(cfgFile string) (Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			v.SetConfigName("app")
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				// Continue with ENV vars and defaults
				log.Debug().Err(err).Msg("No configuration file found")
			}
		} else {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("CLAIMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks the settings every command depends on
func (c Config) Validate() error {
	if strings.TrimSpace(c.Upstream.APIURL) == "" {
		return errors.New("upstream.api_url is required")
	}
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("unsupported database driver %q", c.DB.Driver)
	}
	if c.Redis.Enabled && c.Redis.TTL <= 0 {
		return errors.New("redis.ttl must be positive when the cache is enabled")
	}
	return nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// BFF server
	v.SetDefault("server.address", "0.0.0.0:8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.timeout", "30s")
	v.SetDefault("server.cors_enabled", true)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_upload_bytes", 64<<20)

	// Upstream claims API
	v.SetDefault("upstream.api_url", "http://localhost:8000")
	v.SetDefault("upstream.ws_url", "ws://localhost:8000")
	v.SetDefault("upstream.timeout", "30s")

	// Session store
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "claims-console.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")

	// Query cache
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.ttl", "30s")

	// Notifications
	v.SetDefault("notifications.poll_interval", "1m")
	v.SetDefault("notifications.reconnect_max_interval", "30s")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}
