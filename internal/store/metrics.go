// ABOUTME: Metrics window persistence and the aggregate read queries
// ABOUTME: A window's rows commit in one transaction or not at all

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const insertMessageMetricsQuery = `
	INSERT INTO message_metrics (id, time_window, window_duration_seconds,
		message_count, messages_per_second, active_users_count, unique_senders_count,
		active_channels_count, text_messages_count, image_messages_count,
		file_messages_count, system_messages_count, created_at)
	VALUES (:id, :time_window, :window_duration_seconds,
		:message_count, :messages_per_second, :active_users_count, :unique_senders_count,
		:active_channels_count, :text_messages_count, :image_messages_count,
		:file_messages_count, :system_messages_count, :created_at)`

const insertChannelMetricsQuery = `
	INSERT INTO channel_metrics (id, channel_id, time_window, window_duration_seconds,
		message_count, unique_senders_count, messages_per_second,
		created_count, edited_count, deleted_count, created_at)
	VALUES (:id, :channel_id, :time_window, :window_duration_seconds,
		:message_count, :unique_senders_count, :messages_per_second,
		:created_count, :edited_count, :deleted_count, :created_at)`

const insertUserMetricsQuery = `
	INSERT INTO user_metrics (id, user_id, time_window, window_duration_seconds,
		messages_sent, messages_edited, messages_deleted, channels_active, created_at)
	VALUES (:id, :user_id, :time_window, :window_duration_seconds,
		:messages_sent, :messages_edited, :messages_deleted, :channels_active, :created_at)`

// SaveMetricsWindow writes one flushed window transactionally. IDs and
// created_at are filled in for rows that lack them.
func (s *MySQLStore) SaveMetricsWindow(ctx context.Context, window *MetricsWindow) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning metrics transaction: %w", err)
	}
	defer tx.Rollback()

	if window.Message != nil {
		if window.Message.ID == "" {
			window.Message.ID = uuid.New().String()
		}
		if window.Message.CreatedAt.IsZero() {
			window.Message.CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insertMessageMetricsQuery, window.Message); err != nil {
			return fmt.Errorf("inserting message metrics: %w", err)
		}
	}

	for _, cm := range window.Channels {
		if cm.ID == "" {
			cm.ID = uuid.New().String()
		}
		if cm.CreatedAt.IsZero() {
			cm.CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insertChannelMetricsQuery, cm); err != nil {
			return fmt.Errorf("inserting channel metrics for %s: %w", cm.ChannelID, err)
		}
	}

	for _, um := range window.Users {
		if um.ID == "" {
			um.ID = uuid.New().String()
		}
		if um.CreatedAt.IsZero() {
			um.CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insertUserMetricsQuery, um); err != nil {
			return fmt.Errorf("inserting user metrics for %s: %w", um.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing metrics transaction: %w", err)
	}

	s.logger.Debug("metrics window saved",
		"channels", len(window.Channels),
		"users", len(window.Users))
	return nil
}

// ListMessageMetrics returns system windows since the cutoff, newest first.
func (s *MySQLStore) ListMessageMetrics(ctx context.Context, since time.Time, limit int) ([]*MessageMetrics, error) {
	const query = `
		SELECT * FROM message_metrics
		WHERE time_window >= ?
		ORDER BY time_window DESC
		LIMIT ?`

	out := []*MessageMetrics{}
	if err := s.db.SelectContext(ctx, &out, query, since, limit); err != nil {
		return nil, fmt.Errorf("listing message metrics: %w", err)
	}
	return out, nil
}

// ListChannelMetrics returns one channel's windows since the cutoff, newest
// first.
func (s *MySQLStore) ListChannelMetrics(ctx context.Context, channelID string, since time.Time) ([]*ChannelMetrics, error) {
	const query = `
		SELECT * FROM channel_metrics
		WHERE channel_id = ? AND time_window >= ?
		ORDER BY time_window DESC`

	out := []*ChannelMetrics{}
	if err := s.db.SelectContext(ctx, &out, query, channelID, since); err != nil {
		return nil, fmt.Errorf("listing channel metrics: %w", err)
	}
	return out, nil
}

// ListUserMetrics returns one user's windows since the cutoff, newest first.
func (s *MySQLStore) ListUserMetrics(ctx context.Context, userID string, since time.Time) ([]*UserMetrics, error) {
	const query = `
		SELECT * FROM user_metrics
		WHERE user_id = ? AND time_window >= ?
		ORDER BY time_window DESC`

	out := []*UserMetrics{}
	if err := s.db.SelectContext(ctx, &out, query, userID, since); err != nil {
		return nil, fmt.Errorf("listing user metrics: %w", err)
	}
	return out, nil
}

// TopChannels ranks channels by total messages since the cutoff and returns
// each ranked channel's latest window row.
func (s *MySQLStore) TopChannels(ctx context.Context, since time.Time, limit int) ([]*ChannelMetrics, error) {
	const query = `
		SELECT cm.* FROM channel_metrics cm
		JOIN (
			SELECT channel_id, MAX(time_window) AS latest, SUM(message_count) AS total
			FROM channel_metrics
			WHERE time_window >= ?
			GROUP BY channel_id
			ORDER BY total DESC
			LIMIT ?
		) top ON cm.channel_id = top.channel_id AND cm.time_window = top.latest
		ORDER BY top.total DESC`

	out := []*ChannelMetrics{}
	if err := s.db.SelectContext(ctx, &out, query, since, limit); err != nil {
		return nil, fmt.Errorf("ranking channels: %w", err)
	}
	return out, nil
}

// TopUsers ranks users by messages sent since the cutoff and returns each
// ranked user's latest window row.
func (s *MySQLStore) TopUsers(ctx context.Context, since time.Time, limit int) ([]*UserMetrics, error) {
	const query = `
		SELECT um.* FROM user_metrics um
		JOIN (
			SELECT user_id, MAX(time_window) AS latest, SUM(messages_sent) AS total
			FROM user_metrics
			WHERE time_window >= ?
			GROUP BY user_id
			ORDER BY total DESC
			LIMIT ?
		) top ON um.user_id = top.user_id AND um.time_window = top.latest
		ORDER BY top.total DESC`

	out := []*UserMetrics{}
	if err := s.db.SelectContext(ctx, &out, query, since, limit); err != nil {
		return nil, fmt.Errorf("ranking users: %w", err)
	}
	return out, nil
}

// SystemStats summarizes the message_metrics windows since the cutoff plus
// the most active channel and user.
func (s *MySQLStore) SystemStats(ctx context.Context, since time.Time) (*SystemStats, error) {
	stats := &SystemStats{}

	const totalsQuery = `
		SELECT
			COALESCE(SUM(message_count), 0) AS total_messages,
			COALESCE(AVG(messages_per_second), 0) AS messages_per_second,
			COALESCE(MAX(active_users_count), 0) AS active_users,
			COALESCE(MAX(active_channels_count), 0) AS active_channels
		FROM message_metrics
		WHERE time_window >= ?`

	row := struct {
		TotalMessages     int64   `db:"total_messages"`
		MessagesPerSecond float64 `db:"messages_per_second"`
		ActiveUsers       int     `db:"active_users"`
		ActiveChannels    int     `db:"active_channels"`
	}{}
	if err := s.db.GetContext(ctx, &row, totalsQuery, since); err != nil {
		return nil, fmt.Errorf("reading system totals: %w", err)
	}
	stats.TotalMessages = row.TotalMessages
	stats.MessagesPerSecond = row.MessagesPerSecond
	stats.ActiveUsers = row.ActiveUsers
	stats.ActiveChannels = row.ActiveChannels

	const topChannelQuery = `
		SELECT channel_id FROM channel_metrics
		WHERE time_window >= ?
		GROUP BY channel_id
		ORDER BY SUM(message_count) DESC
		LIMIT 1`

	var channelID string
	err := s.db.GetContext(ctx, &channelID, topChannelQuery, since)
	switch {
	case err == nil:
		stats.MostActiveChannelID = &channelID
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("finding most active channel: %w", err)
	}

	const topUserQuery = `
		SELECT user_id FROM user_metrics
		WHERE time_window >= ?
		GROUP BY user_id
		ORDER BY SUM(messages_sent) DESC
		LIMIT 1`

	var userID string
	err = s.db.GetContext(ctx, &userID, topUserQuery, since)
	switch {
	case err == nil:
		stats.MostActiveUserID = &userID
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("finding most active user: %w", err)
	}

	return stats, nil
}

// SystemTimeseries returns system windows since the cutoff in ascending
// order for charting.
func (s *MySQLStore) SystemTimeseries(ctx context.Context, since time.Time) ([]*MessageMetrics, error) {
	const query = `
		SELECT * FROM message_metrics
		WHERE time_window >= ?
		ORDER BY time_window ASC`

	out := []*MessageMetrics{}
	if err := s.db.SelectContext(ctx, &out, query, since); err != nil {
		return nil, fmt.Errorf("reading timeseries: %w", err)
	}
	return out, nil
}

// PruneMetrics deletes windows older than the cutoff from all three metrics
// tables and returns the total rows removed.
func (s *MySQLStore) PruneMetrics(ctx context.Context, olderThan time.Time) (int64, error) {
	var total int64

	for _, table := range []string{"message_metrics", "channel_metrics", "user_metrics"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE time_window < ?", table), olderThan)
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("counting pruned rows in %s: %w", table, err)
		}
		total += n
	}

	if total > 0 {
		s.logger.Info("pruned metrics rows", "rows", total, "older_than", olderThan)
	}
	return total, nil
}
