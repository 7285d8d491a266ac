// Package config loads reportsync configuration from an optional YAML file,
// a .env file and REPORTSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Store backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// EnvPrefix prefixes environment overrides, e.g. REPORTSYNC_API_TOKEN
const EnvPrefix = "REPORTSYNC"

var validate = validator.New()

// Config holds all reportsync configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Store    StoreConfig    `mapstructure:"store"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Server   ServerConfig   `mapstructure:"server"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// APIConfig configures the cost-management API client.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// StoreConfig selects and configures the cache store.
type StoreConfig struct {
	Backend     string        `mapstructure:"backend" validate:"oneof=memory redis"`
	RedisAddr   string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	TTL         time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// DispatchConfig tunes the dispatcher.
type DispatchConfig struct {
	MaxAge          time.Duration `mapstructure:"max_age" validate:"gte=0"`
	InFlightTimeout time.Duration `mapstructure:"inflight_timeout" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	MaxConcurrent   int64         `mapstructure:"max_concurrent" validate:"gt=0"`
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// AMQPConfig configures refresh notifications. An empty URL disables them.
type AMQPConfig struct {
	URL      string `mapstructure:"url" validate:"omitempty,url"`
	Exchange string `mapstructure:"exchange" validate:"required"`
	Queue    string `mapstructure:"queue" validate:"required"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// Load reads configuration from configPath (or ./reportsync.yaml when empty),
// .env and the environment, then validates it.
func Load(configPath string) (*Config, error) {
	// .env is optional outside local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("reportsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/reportsync")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks every field and reports all failures at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// API defaults.
	v.SetDefault("api.base_url", "https://console.redhat.com/api/cost-management/v1/")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", "60s")

	// Store defaults.
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_prefix", "reportsync:")
	v.SetDefault("store.ttl", "1h")

	// Dispatch defaults. Reports expire after 30 minutes in the dashboard.
	v.SetDefault("dispatch.max_age", "30m")
	v.SetDefault("dispatch.inflight_timeout", "30s")
	v.SetDefault("dispatch.request_timeout", "60s")
	v.SetDefault("dispatch.max_concurrent", 8)

	// Server defaults.
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	// AMQP defaults.
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "reportsync")
	v.SetDefault("amqp.queue", "report_refresh")

	// Logging defaults.
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
