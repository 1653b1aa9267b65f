// ABOUTME: Redis-backed KV for presence keys and typing hashes
// ABOUTME: All state is volatile and expires on its own TTL

package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// presenceTTL keeps a user online for this long past their last
	// attach or refresh.
	presenceTTL = 5 * time.Minute
	// typingTTL expires a channel's typing hash when no one refreshes it.
	typingTTL = 10 * time.Second
)

func presenceKey(userID string) string {
	return "user:presence:" + userID
}

func typingKey(channelID string) string {
	return "typing:" + channelID
}

// RedisKV implements KV on a single Redis instance.
type RedisKV struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisKV parses a redis:// URL and connects.
func NewRedisKV(url string, logger *slog.Logger) (*RedisKV, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisKV{
		client: redis.NewClient(opts),
		logger: logger.With("component", "kv"),
	}, nil
}

// MarkOnline sets the user's presence key, refreshing its TTL.
func (r *RedisKV) MarkOnline(ctx context.Context, userID string) error {
	if err := r.client.SetEx(ctx, presenceKey(userID), "online", presenceTTL).Err(); err != nil {
		return fmt.Errorf("marking user %s online: %w", userID, err)
	}
	return nil
}

// MarkOffline deletes the user's presence key.
func (r *RedisKV) MarkOffline(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("marking user %s offline: %w", userID, err)
	}
	return nil
}

// IsOnline reports whether the user's presence key exists.
func (r *RedisKV) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking presence for user %s: %w", userID, err)
	}
	return n > 0, nil
}

// SetTyping records the user in the channel's typing hash and refreshes the
// hash TTL.
func (r *RedisKV) SetTyping(ctx context.Context, channelID, userID, username string) error {
	key := typingKey(channelID)
	if err := r.client.HSet(ctx, key, userID, username).Err(); err != nil {
		return fmt.Errorf("setting typing state in channel %s: %w", channelID, err)
	}
	if err := r.client.Expire(ctx, key, typingTTL).Err(); err != nil {
		return fmt.Errorf("refreshing typing ttl for channel %s: %w", channelID, err)
	}
	return nil
}

// ClearTyping removes the user from the channel's typing hash.
func (r *RedisKV) ClearTyping(ctx context.Context, channelID, userID string) error {
	if err := r.client.HDel(ctx, typingKey(channelID), userID).Err(); err != nil {
		return fmt.Errorf("clearing typing state in channel %s: %w", channelID, err)
	}
	return nil
}

// TypingUsers returns user ID to username for everyone typing in the channel.
func (r *RedisKV) TypingUsers(ctx context.Context, channelID string) (map[string]string, error) {
	users, err := r.client.HGetAll(ctx, typingKey(channelID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading typing state for channel %s: %w", channelID, err)
	}
	return users, nil
}

// Connected reports whether Redis answers a ping.
func (r *RedisKV) Connected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return r.client.Ping(ctx).Err() == nil
}

// Close releases the client's connections.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
