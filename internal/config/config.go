// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	LogLevel string
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	DSN      string
	MaxConns int32
}

// RedisConfig configures the watchlist cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
	TTL      time.Duration
}

// KafkaConfig configures event publishing.
type KafkaConfig struct {
	Brokers []string
	Enabled bool
}

// LoadConfig reads configuration from environment variables (and an
// optional .env file loaded by the caller).
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("DATABASE_MAX_CONNS", 10)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_TTL", "5m")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_ENABLED", true)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Addr:            v.GetString("SERVER_ADDR"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			DSN:      v.GetString("DATABASE_DSN"),
			MaxConns: v.GetInt32("DATABASE_MAX_CONNS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Enabled:  v.GetBool("REDIS_ENABLED"),
			TTL:      v.GetDuration("REDIS_TTL"),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(v.GetString("KAFKA_BROKERS"), ","),
			Enabled: v.GetBool("KAFKA_ENABLED"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("DATABASE_DSN is required")
	}
	return cfg, nil
}
