// ABOUTME: Message persistence plus user and channel seeding helpers
// ABOUTME: InsertMessage is the durable step before any fan-out happens

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const insertMessageQuery = `
	INSERT INTO messages (id, channel_id, user_id, content, message_type, metadata,
		is_edited, is_deleted, created_at, updated_at)
	VALUES (:id, :channel_id, :user_id, :content, :message_type, :metadata,
		:is_edited, :is_deleted, :created_at, :updated_at)`

// InsertMessage persists one message. Missing ID and timestamps are filled
// in; the caller reads them back for the fan-out frame.
func (s *MySQLStore) InsertMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = now
	}
	if msg.MessageType == "" {
		msg.MessageType = "text"
	}

	if _, err := s.db.NamedExecContext(ctx, insertMessageQuery, msg); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("message inserted",
		"message_id", msg.ID,
		"channel_id", msg.ChannelID,
		"user_id", msg.UserID)
	return nil
}

const upsertUserQuery = `
	INSERT INTO users (id, username, email, password_hash, full_name, avatar_url,
		is_active, is_verified, created_at)
	VALUES (:id, :username, :email, :password_hash, :full_name, :avatar_url,
		:is_active, :is_verified, :created_at)
	ON DUPLICATE KEY UPDATE username = VALUES(username), email = VALUES(email)`

// UpsertUser creates or refreshes a user row. Used by demo seeding; account
// management proper belongs to the REST tier.
func (s *MySQLStore) UpsertUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	if _, err := s.db.NamedExecContext(ctx, upsertUserQuery, user); err != nil {
		return fmt.Errorf("upserting user %s: %w", user.Username, err)
	}
	return nil
}

const upsertChannelQuery = `
	INSERT INTO channels (id, name, description, is_private, created_by, created_at, updated_at)
	VALUES (:id, :name, :description, :is_private, :created_by, :created_at, :updated_at)
	ON DUPLICATE KEY UPDATE name = VALUES(name), updated_at = VALUES(updated_at)`

// UpsertChannel creates or refreshes a channel row.
func (s *MySQLStore) UpsertChannel(ctx context.Context, channel *Channel) error {
	if channel.ID == "" {
		channel.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = now
	}
	channel.UpdatedAt = now

	if _, err := s.db.NamedExecContext(ctx, upsertChannelQuery, channel); err != nil {
		return fmt.Errorf("upserting channel %s: %w", channel.Name, err)
	}
	return nil
}

const addChannelMemberQuery = `
	INSERT INTO channel_members (id, channel_id, user_id, role, joined_at)
	VALUES (:id, :channel_id, :user_id, :role, :joined_at)
	ON DUPLICATE KEY UPDATE role = VALUES(role)`

// AddChannelMember links a user to a channel, idempotently.
func (s *MySQLStore) AddChannelMember(ctx context.Context, member *ChannelMember) error {
	if member.ID == "" {
		member.ID = uuid.New().String()
	}
	if member.Role == "" {
		member.Role = "member"
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}

	if _, err := s.db.NamedExecContext(ctx, addChannelMemberQuery, member); err != nil {
		return fmt.Errorf("adding channel member: %w", err)
	}
	return nil
}
