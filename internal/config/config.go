// ABOUTME: Configuration loading and validation for signalink services
// ABOUTME: Parses environment variables (with optional .env file) into a typed Config

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the complete configuration for the signalink services.
// Values come from environment variables; a .env file in the working
// directory is loaded first when present, real environment wins.
type Config struct {
	// Application
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Gateway bind address
	WSHost string `env:"WS_HOST" envDefault:"0.0.0.0"`
	WSPort int    `env:"WS_PORT" envDefault:"8001"`

	// Analytics bind address
	AnalyticsHost string `env:"ANALYTICS_HOST" envDefault:"0.0.0.0"`
	AnalyticsPort int    `env:"ANALYTICS_PORT" envDefault:"8002"`

	// WebSocket protocol keepalive, in seconds
	WSPingInterval int `env:"WS_PING_INTERVAL" envDefault:"30"`
	WSPingTimeout  int `env:"WS_PING_TIMEOUT" envDefault:"10"`

	// Durable store DSN (MySQL)
	DatabaseURL string `env:"DATABASE_URL"`

	// Volatile KV
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Pub/sub bus
	KafkaBootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS" envDefault:"localhost:9092"`
	KafkaTopicMessages    string `env:"KAFKA_TOPIC_MESSAGES" envDefault:"signalink.messages"`
	KafkaTopicAnalytics   string `env:"KAFKA_TOPIC_ANALYTICS" envDefault:"signalink.analytics"`
	KafkaConsumerGroup    string `env:"KAFKA_CONSUMER_GROUP" envDefault:"analytics-consumers"`

	// JWT authentication
	SecretKey                string `env:"SECRET_KEY"`
	Algorithm                string `env:"ALGORITHM" envDefault:"HS256"`
	AccessTokenExpireMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"30"`

	// Metrics aggregation
	MetricsWindowSeconds int `env:"METRICS_WINDOW_SECONDS" envDefault:"60"`
	MetricsRetentionDays int `env:"METRICS_RETENTION_DAYS" envDefault:"30"`

	// CORS allow-list
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:8000"`
}

// Load reads configuration from the environment and returns a validated Config.
// A .env file is loaded first when one exists; it never overrides variables
// already set in the environment.
func Load() (*Config, error) {
	// Missing .env is the normal case in production
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}
	if len(c.SecretKey) < 32 {
		return fmt.Errorf("SECRET_KEY must be at least 32 bytes, got %d", len(c.SecretKey))
	}

	switch c.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("ALGORITHM must be one of HS256, HS384, HS512 (got %q)", c.Algorithm)
	}

	if c.WSPort < 1 || c.WSPort > 65535 {
		return fmt.Errorf("WS_PORT must be 1-65535, got %d", c.WSPort)
	}
	if c.AnalyticsPort < 1 || c.AnalyticsPort > 65535 {
		return fmt.Errorf("ANALYTICS_PORT must be 1-65535, got %d", c.AnalyticsPort)
	}

	if c.WSPingInterval < 1 {
		return fmt.Errorf("WS_PING_INTERVAL must be at least 1 second, got %d", c.WSPingInterval)
	}
	if c.WSPingTimeout < 1 {
		return fmt.Errorf("WS_PING_TIMEOUT must be at least 1 second, got %d", c.WSPingTimeout)
	}

	if c.KafkaBootstrapServers == "" {
		return fmt.Errorf("KAFKA_BOOTSTRAP_SERVERS is required")
	}
	if c.KafkaTopicMessages == "" {
		return fmt.Errorf("KAFKA_TOPIC_MESSAGES is required")
	}
	if c.KafkaConsumerGroup == "" {
		return fmt.Errorf("KAFKA_CONSUMER_GROUP is required")
	}

	if c.MetricsWindowSeconds < 1 {
		return fmt.Errorf("METRICS_WINDOW_SECONDS must be at least 1, got %d", c.MetricsWindowSeconds)
	}
	if c.MetricsRetentionDays < 1 {
		return fmt.Errorf("METRICS_RETENTION_DAYS must be at least 1, got %d", c.MetricsRetentionDays)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}

	return nil
}

// GatewayAddr returns the bind address for the realtime gateway.
func (c *Config) GatewayAddr() string {
	return fmt.Sprintf("%s:%d", c.WSHost, c.WSPort)
}

// AnalyticsAddr returns the bind address for the analytics service.
func (c *Config) AnalyticsAddr() string {
	return fmt.Sprintf("%s:%d", c.AnalyticsHost, c.AnalyticsPort)
}

// KafkaSeeds returns the bootstrap servers as a broker list.
func (c *Config) KafkaSeeds() []string {
	parts := strings.Split(c.KafkaBootstrapServers, ",")
	seeds := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			seeds = append(seeds, p)
		}
	}
	return seeds
}

// PingInterval returns the protocol-level ping interval.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.WSPingInterval) * time.Second
}

// PingTimeout returns the grace period for a pong after a protocol ping.
func (c *Config) PingTimeout() time.Duration {
	return time.Duration(c.WSPingTimeout) * time.Second
}

// MetricsWindow returns the tumbling window size for aggregation.
func (c *Config) MetricsWindow() time.Duration {
	return time.Duration(c.MetricsWindowSeconds) * time.Second
}

// TokenTTL returns the lifetime for newly minted access tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}
