// ABOUTME: Tests for environment-driven configuration loading
// ABOUTME: Covers defaults, overrides, validation failures, and derived helpers

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequired sets the two variables without defaults so Load can succeed.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "signalink:signalink@tcp(localhost:3306)/signalink?parseTime=true")
	t.Setenv("SECRET_KEY", "0123456789abcdef0123456789abcdef")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:8001", cfg.GatewayAddr())
	assert.Equal(t, "0.0.0.0:8002", cfg.AnalyticsAddr())
	assert.Equal(t, 30*time.Second, cfg.PingInterval())
	assert.Equal(t, 10*time.Second, cfg.PingTimeout())
	assert.Equal(t, "signalink.messages", cfg.KafkaTopicMessages)
	assert.Equal(t, "signalink.analytics", cfg.KafkaTopicAnalytics)
	assert.Equal(t, "analytics-consumers", cfg.KafkaConsumerGroup)
	assert.Equal(t, "HS256", cfg.Algorithm)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL())
	assert.Equal(t, 60*time.Second, cfg.MetricsWindow())
	assert.Equal(t, 30, cfg.MetricsRetentionDays)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:8000"}, cfg.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("WS_PORT", "9001")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("METRICS_WINDOW_SECONDS", "120")
	t.Setenv("CORS_ORIGINS", "https://chat.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 9001, cfg.WSPort)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaSeeds())
	assert.Equal(t, 120*time.Second, cfg.MetricsWindow())
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.CORSOrigins)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SECRET_KEY", "0123456789abcdef0123456789abcdef")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_ShortSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "signalink:signalink@tcp(localhost:3306)/signalink")
	t.Setenv("SECRET_KEY", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SECRET_KEY")
}

func TestValidate_Rejections(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment:           "development",
			LogLevel:              "info",
			WSHost:                "0.0.0.0",
			WSPort:                8001,
			AnalyticsHost:         "0.0.0.0",
			AnalyticsPort:         8002,
			WSPingInterval:        30,
			WSPingTimeout:         10,
			DatabaseURL:           "user:pass@tcp(db:3306)/signalink",
			RedisURL:              "redis://localhost:6379/0",
			KafkaBootstrapServers: "localhost:9092",
			KafkaTopicMessages:    "signalink.messages",
			KafkaTopicAnalytics:   "signalink.analytics",
			KafkaConsumerGroup:    "analytics-consumers",
			SecretKey:             "0123456789abcdef0123456789abcdef",
			Algorithm:             "HS256",
			MetricsWindowSeconds:  60,
			MetricsRetentionDays:  30,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad algorithm", func(c *Config) { c.Algorithm = "RS256" }, "ALGORITHM"},
		{"bad port", func(c *Config) { c.WSPort = 0 }, "WS_PORT"},
		{"bad analytics port", func(c *Config) { c.AnalyticsPort = 70000 }, "ANALYTICS_PORT"},
		{"zero ping interval", func(c *Config) { c.WSPingInterval = 0 }, "WS_PING_INTERVAL"},
		{"zero window", func(c *Config) { c.MetricsWindowSeconds = 0 }, "METRICS_WINDOW_SECONDS"},
		{"zero retention", func(c *Config) { c.MetricsRetentionDays = 0 }, "METRICS_RETENTION_DAYS"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
		{"no kafka seeds", func(c *Config) { c.KafkaBootstrapServers = "" }, "KAFKA_BOOTSTRAP_SERVERS"},
		{"no consumer group", func(c *Config) { c.KafkaConsumerGroup = "" }, "KAFKA_CONSUMER_GROUP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestKafkaSeeds_TrimsAndSkipsEmpty(t *testing.T) {
	cfg := &Config{KafkaBootstrapServers: " kafka-1:9092 ,, kafka-2:9092"}
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaSeeds())
}
