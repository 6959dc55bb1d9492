package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
}

type AppConfig struct {
	Port       string
	Env        string
	InstanceID string
}

type LogConfig struct {
	Level  string
	Format string // json or console
}

type DatabaseConfig struct {
	Driver string // sqlite or postgres
	DSN    string
}

type RedisConfig struct {
	Addr       string // empty keeps the listing cache in process memory
	Password   string
	DB         int
	ListingTTL time.Duration
}

type RabbitMQConfig struct {
	URL      string // empty disables cross-instance invalidation
	Exchange string
}

type KafkaConfig struct {
	Brokers string // comma separated; empty disables the event stream
	Topic   string
}

type AuthConfig struct {
	Enabled          bool
	OperatorUsername string
	OperatorPassword string
	PasswordHash     string
	JWTSecret        string
	TokenTTL         time.Duration
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("INSTANCE_ID", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "stockroom.db")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LISTING_CACHE_TTL", "5m")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("RABBITMQ_EXCHANGE", "product.listing")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "product-listing-events")
	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("OPERATOR_USERNAME", "admin")
	v.SetDefault("OPERATOR_PASSWORD", "")
	v.SetDefault("OPERATOR_PASSWORD_HASH", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TOKEN_TTL", "24h")
}

// Load reads configuration from the environment, after loading envFile
// (typically ".env") when it exists. Variables already set in the
// environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Port:       v.GetString("APP_PORT"),
			Env:        v.GetString("APP_ENV"),
			InstanceID: v.GetString("INSTANCE_ID"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:    v.GetString("DB_DSN"),
		},
		Redis: RedisConfig{
			Addr:       v.GetString("REDIS_ADDR"),
			Password:   v.GetString("REDIS_PASSWORD"),
			DB:         v.GetInt("REDIS_DB"),
			ListingTTL: v.GetDuration("LISTING_CACHE_TTL"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      v.GetString("RABBITMQ_URL"),
			Exchange: v.GetString("RABBITMQ_EXCHANGE"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetString("KAFKA_BROKERS"),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Auth: AuthConfig{
			Enabled:          v.GetBool("AUTH_ENABLED"),
			OperatorUsername: v.GetString("OPERATOR_USERNAME"),
			OperatorPassword: v.GetString("OPERATOR_PASSWORD"),
			PasswordHash:     v.GetString("OPERATOR_PASSWORD_HASH"),
			JWTSecret:        v.GetString("JWT_SECRET"),
			TokenTTL:         v.GetDuration("TOKEN_TTL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late at startup.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.App.Port, ":") && !strings.Contains(c.App.Port, ":") {
		c.App.Port = ":" + c.App.Port
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want sqlite or postgres)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED is set")
		}
		if c.Auth.OperatorPassword == "" && c.Auth.PasswordHash == "" {
			return fmt.Errorf("OPERATOR_PASSWORD or OPERATOR_PASSWORD_HASH is required when AUTH_ENABLED is set")
		}
	}
	return nil
}
