// Package config handles configuration loading for the signalink services.
//
// # Overview
//
// Configuration comes from environment variables, parsed into a typed Config
// struct with defaults and validation. A .env file in the working directory
// is loaded first when present; variables already set in the environment
// always win.
//
// # Variables
//
// Application:
//
//	ENVIRONMENT  development | staging | production   (default: development)
//	LOG_LEVEL    debug | info | warn | error          (default: info)
//
// Bind addresses:
//
//	WS_HOST / WS_PORT                 gateway        (default: 0.0.0.0:8001)
//	ANALYTICS_HOST / ANALYTICS_PORT   analytics      (default: 0.0.0.0:8002)
//
// Realtime keepalive (seconds):
//
//	WS_PING_INTERVAL   (default: 30)
//	WS_PING_TIMEOUT    (default: 10)
//
// External systems:
//
//	DATABASE_URL               MySQL DSN, required
//	REDIS_URL                  (default: redis://localhost:6379/0)
//	KAFKA_BOOTSTRAP_SERVERS    comma-separated (default: localhost:9092)
//	KAFKA_TOPIC_MESSAGES       (default: signalink.messages)
//	KAFKA_TOPIC_ANALYTICS      (default: signalink.analytics)
//	KAFKA_CONSUMER_GROUP       (default: analytics-consumers)
//
// Authentication:
//
//	SECRET_KEY                    required, at least 32 bytes
//	ALGORITHM                     HS256 | HS384 | HS512 (default: HS256)
//	ACCESS_TOKEN_EXPIRE_MINUTES   (default: 30)
//
// Metrics aggregation:
//
//	METRICS_WINDOW_SECONDS   (default: 60)
//	METRICS_RETENTION_DAYS   (default: 30)
//
// CORS:
//
//	CORS_ORIGINS   comma-separated allow-list
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
