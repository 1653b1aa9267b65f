// ABOUTME: Data types and store interfaces for chat persistence and metrics
// ABOUTME: MySQLStore implements both; MockStore covers tests

package store

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record doesn't exist
var ErrNotFound = errors.New("not found")

// Metadata is a free-form JSON object column.
type Metadata map[string]any

// Value implements driver.Valuer. Nil maps store as NULL.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return data, nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("decoding metadata: %w", err)
	}
	return nil
}

// User is an account row. The gateway never creates users at runtime; rows
// exist for foreign keys and demo seeding.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     *string    `db:"full_name" json:"full_name,omitempty"`
	AvatarURL    *string    `db:"avatar_url" json:"avatar_url,omitempty"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	IsVerified   bool       `db:"is_verified" json:"is_verified"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	LastSeenAt   *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
}

// Channel is a chat channel row.
type Channel struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	IsPrivate   bool      `db:"is_private" json:"is_private"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ChannelMember links a user to a channel.
type ChannelMember struct {
	ID        string    `db:"id" json:"id"`
	ChannelID string    `db:"channel_id" json:"channel_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Role      string    `db:"role" json:"role"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}

// Message is one persisted chat message.
type Message struct {
	ID          string    `db:"id" json:"id"`
	ChannelID   string    `db:"channel_id" json:"channel_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Content     string    `db:"content" json:"content"`
	MessageType string    `db:"message_type" json:"message_type"`
	Metadata    Metadata  `db:"metadata" json:"metadata,omitempty"`
	IsEdited    bool      `db:"is_edited" json:"is_edited"`
	IsDeleted   bool      `db:"is_deleted" json:"is_deleted"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// MessageMetrics is one system-wide aggregation window.
type MessageMetrics struct {
	ID                    string    `db:"id" json:"id"`
	TimeWindow            time.Time `db:"time_window" json:"time_window"`
	WindowDurationSeconds int       `db:"window_duration_seconds" json:"window_duration_seconds"`
	MessageCount          int       `db:"message_count" json:"message_count"`
	MessagesPerSecond     float64   `db:"messages_per_second" json:"messages_per_second"`
	ActiveUsersCount      int       `db:"active_users_count" json:"active_users_count"`
	UniqueSendersCount    int       `db:"unique_senders_count" json:"unique_senders_count"`
	ActiveChannelsCount   int       `db:"active_channels_count" json:"active_channels_count"`
	TextMessagesCount     int       `db:"text_messages_count" json:"text_messages_count"`
	ImageMessagesCount    int       `db:"image_messages_count" json:"image_messages_count"`
	FileMessagesCount     int       `db:"file_messages_count" json:"file_messages_count"`
	SystemMessagesCount   int       `db:"system_messages_count" json:"system_messages_count"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}

// ChannelMetrics is one channel's slice of an aggregation window.
type ChannelMetrics struct {
	ID                    string    `db:"id" json:"id"`
	ChannelID             string    `db:"channel_id" json:"channel_id"`
	TimeWindow            time.Time `db:"time_window" json:"time_window"`
	WindowDurationSeconds int       `db:"window_duration_seconds" json:"window_duration_seconds"`
	MessageCount          int       `db:"message_count" json:"message_count"`
	UniqueSendersCount    int       `db:"unique_senders_count" json:"unique_senders_count"`
	MessagesPerSecond     float64   `db:"messages_per_second" json:"messages_per_second"`
	CreatedCount          int       `db:"created_count" json:"created_count"`
	EditedCount           int       `db:"edited_count" json:"edited_count"`
	DeletedCount          int       `db:"deleted_count" json:"deleted_count"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}

// UserMetrics is one user's slice of an aggregation window.
type UserMetrics struct {
	ID                    string    `db:"id" json:"id"`
	UserID                string    `db:"user_id" json:"user_id"`
	TimeWindow            time.Time `db:"time_window" json:"time_window"`
	WindowDurationSeconds int       `db:"window_duration_seconds" json:"window_duration_seconds"`
	MessagesSent          int       `db:"messages_sent" json:"messages_sent"`
	MessagesEdited        int       `db:"messages_edited" json:"messages_edited"`
	MessagesDeleted       int       `db:"messages_deleted" json:"messages_deleted"`
	ChannelsActive        int       `db:"channels_active" json:"channels_active"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}

// MetricsWindow is one flushed aggregation window: a single system row plus
// per-channel and per-user rows. SaveMetricsWindow writes all of it in one
// transaction so a failed flush leaves nothing behind.
type MetricsWindow struct {
	Message  *MessageMetrics
	Channels []*ChannelMetrics
	Users    []*UserMetrics
}

// SystemStats summarizes activity since a cutoff.
type SystemStats struct {
	TotalMessages       int64   `json:"total_messages"`
	MessagesPerSecond   float64 `json:"messages_per_second"`
	ActiveUsers         int     `json:"active_users"`
	ActiveChannels      int     `json:"active_channels"`
	MostActiveChannelID *string `json:"most_active_channel_id"`
	MostActiveUserID    *string `json:"most_active_user_id"`
}

// MessageStore is the persistence the gateway needs at runtime.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *Message) error
	Ping(ctx context.Context) error
	Close() error
}

// MetricsStore is the persistence the analytics service needs.
type MetricsStore interface {
	SaveMetricsWindow(ctx context.Context, window *MetricsWindow) error

	ListMessageMetrics(ctx context.Context, since time.Time, limit int) ([]*MessageMetrics, error)
	ListChannelMetrics(ctx context.Context, channelID string, since time.Time) ([]*ChannelMetrics, error)
	ListUserMetrics(ctx context.Context, userID string, since time.Time) ([]*UserMetrics, error)
	TopChannels(ctx context.Context, since time.Time, limit int) ([]*ChannelMetrics, error)
	TopUsers(ctx context.Context, since time.Time, limit int) ([]*UserMetrics, error)
	SystemStats(ctx context.Context, since time.Time) (*SystemStats, error)
	SystemTimeseries(ctx context.Context, since time.Time) ([]*MessageMetrics, error)

	PruneMetrics(ctx context.Context, olderThan time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
