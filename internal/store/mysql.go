// ABOUTME: MySQL implementation of the store interfaces using sqlx
// ABOUTME: Schema bootstrap is split between chat and metrics tables

package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// MySQLStore implements MessageStore and MetricsStore on MySQL.
type MySQLStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewMySQLStore connects and pings. The DSN is normalized so DATETIME
// columns scan into time.Time regardless of how the URL was written.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	logger := slog.Default().With("component", "store")

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.ParseTime = true

	db, err := sqlx.Connect("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	logger.Info("MySQL store connected", "addr", cfg.Addr, "database", cfg.DBName)
	return &MySQLStore{
		db:     db,
		logger: logger,
	}, nil
}

// chatSchema holds the tables the gateway writes and references. Indexes are
// inline because MySQL has no CREATE INDEX IF NOT EXISTS.
var chatSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id CHAR(36) PRIMARY KEY,
		username VARCHAR(50) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		full_name VARCHAR(100),
		avatar_url VARCHAR(500),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		last_seen_at DATETIME
	)`,

	`CREATE TABLE IF NOT EXISTS channels (
		id CHAR(36) PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		description TEXT,
		is_private BOOLEAN NOT NULL DEFAULT FALSE,
		created_by CHAR(36) NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (created_by) REFERENCES users(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS channel_members (
		id CHAR(36) PRIMARY KEY,
		channel_id CHAR(36) NOT NULL,
		user_id CHAR(36) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'member',
		joined_at DATETIME NOT NULL,
		UNIQUE KEY uq_channel_members (channel_id, user_id),
		FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id CHAR(36) PRIMARY KEY,
		channel_id CHAR(36) NOT NULL,
		user_id CHAR(36) NOT NULL,
		content TEXT NOT NULL,
		message_type VARCHAR(20) NOT NULL DEFAULT 'text',
		metadata JSON,
		is_edited BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		INDEX idx_messages_channel (channel_id),
		INDEX idx_messages_user (user_id),
		INDEX idx_messages_created (created_at),
		FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
}

// metricsSchema holds the analytics tables. No foreign keys: the analytics
// service may run against its own database.
var metricsSchema = []string{
	`CREATE TABLE IF NOT EXISTS message_metrics (
		id CHAR(36) PRIMARY KEY,
		time_window DATETIME NOT NULL,
		window_duration_seconds INT NOT NULL DEFAULT 60,
		message_count INT NOT NULL DEFAULT 0,
		messages_per_second DOUBLE NOT NULL DEFAULT 0,
		active_users_count INT NOT NULL DEFAULT 0,
		unique_senders_count INT NOT NULL DEFAULT 0,
		active_channels_count INT NOT NULL DEFAULT 0,
		text_messages_count INT NOT NULL DEFAULT 0,
		image_messages_count INT NOT NULL DEFAULT 0,
		file_messages_count INT NOT NULL DEFAULT 0,
		system_messages_count INT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		INDEX idx_message_metrics_window (time_window, window_duration_seconds)
	)`,

	`CREATE TABLE IF NOT EXISTS channel_metrics (
		id CHAR(36) PRIMARY KEY,
		channel_id CHAR(36) NOT NULL,
		time_window DATETIME NOT NULL,
		window_duration_seconds INT NOT NULL DEFAULT 60,
		message_count INT NOT NULL DEFAULT 0,
		unique_senders_count INT NOT NULL DEFAULT 0,
		messages_per_second DOUBLE NOT NULL DEFAULT 0,
		created_count INT NOT NULL DEFAULT 0,
		edited_count INT NOT NULL DEFAULT 0,
		deleted_count INT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		INDEX idx_channel_metrics_channel_window (channel_id, time_window)
	)`,

	`CREATE TABLE IF NOT EXISTS user_metrics (
		id CHAR(36) PRIMARY KEY,
		user_id CHAR(36) NOT NULL,
		time_window DATETIME NOT NULL,
		window_duration_seconds INT NOT NULL DEFAULT 60,
		messages_sent INT NOT NULL DEFAULT 0,
		messages_edited INT NOT NULL DEFAULT 0,
		messages_deleted INT NOT NULL DEFAULT 0,
		channels_active INT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		INDEX idx_user_metrics_user_window (user_id, time_window)
	)`,
}

// InitChatSchema creates the gateway's tables if they don't exist.
func (s *MySQLStore) InitChatSchema(ctx context.Context) error {
	for _, stmt := range chatSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating chat schema: %w", err)
		}
	}
	s.logger.Info("chat schema ready")
	return nil
}

// InitMetricsSchema creates the analytics tables if they don't exist.
func (s *MySQLStore) InitMetricsSchema(ctx context.Context) error {
	for _, stmt := range metricsSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating metrics schema: %w", err)
		}
	}
	s.logger.Info("metrics schema ready")
	return nil
}

// Ping verifies the connection is alive.
func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
