// ABOUTME: Broker adapter interfaces for the pub/sub bus and volatile shared state
// ABOUTME: KafkaBus and RedisKV are the production implementations

package broker

import (
	"context"
	"errors"
)

// PresenceTopic carries presence.update frames for all users.
const PresenceTopic = "presence:updates"

var (
	// ErrClosed is returned by operations on a closed broker.
	ErrClosed = errors.New("broker is closed")
)

// ChannelTopic returns the fan-out topic for a channel's messages.
func ChannelTopic(channelID string) string {
	return "channel:" + channelID
}

// TypingTopic returns the fan-out topic for a channel's typing indicators.
func TypingTopic(channelID string) string {
	return ChannelTopic(channelID) + ":typing"
}

// Handler receives one record payload from a subscribed topic. Handlers are
// invoked in record order for a topic and must not block; slow consumers
// drop records downstream instead of stalling the poll loop.
type Handler func(topic string, payload []byte)

// Bus is the pub/sub fabric connecting gateway instances. Topics are created
// on first use; records with the same key preserve their relative order.
type Bus interface {
	// Publish sends one record. It retries transient failures with capped
	// backoff and returns the last error once retries are exhausted.
	Publish(ctx context.Context, topic, key string, payload []byte) error

	// Subscribe registers a handler for a topic and returns a subscription
	// ID for Unsubscribe. The first handler on a topic starts consumption
	// from the broker.
	Subscribe(topic string, h Handler) (string, error)

	// Unsubscribe removes a handler. Removing the last handler on a topic
	// stops consumption from the broker. Unknown IDs are ignored.
	Unsubscribe(topic, subID string)

	// Connected reports whether the broker currently answers requests.
	Connected(ctx context.Context) bool

	Close()
}

// KV is the volatile shared state between instances: presence keys and
// per-channel typing hashes, both expiring on their own.
type KV interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)

	SetTyping(ctx context.Context, channelID, userID, username string) error
	ClearTyping(ctx context.Context, channelID, userID string) error
	TypingUsers(ctx context.Context, channelID string) (map[string]string, error)

	Connected(ctx context.Context) bool
	Close() error
}
