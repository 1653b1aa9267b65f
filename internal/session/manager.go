// ABOUTME: Manager tracks local sessions and their channel memberships
// ABOUTME: Bridges broker fan-out records onto per-session outbound queues

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/2389/signalink/internal/broker"
	"github.com/2389/signalink/internal/protocol"
)

const detachTimeout = 5 * time.Second

// channelSub holds the bus subscription ids backing one channel's local
// fan-in. Created when the first local session joins, released on the last.
type channelSub struct {
	messages string
	typing   string
}

// Manager is the per-instance connection registry. It maps users to their
// sessions and channels to their local members, and it owns this instance's
// bus subscriptions. All delivery is non-blocking; a session that cannot
// keep up is detached instead of stalling the fan-out.
type Manager struct {
	bus    broker.Bus
	kv     broker.KV
	logger *slog.Logger

	mu          sync.RWMutex
	sessions    map[string]map[string]*Session  // user id -> session id -> session
	channels    map[string]map[string]*Session  // channel id -> session id -> session
	joined      map[string]map[string]struct{}  // session id -> channel ids
	subs        map[string]*channelSub          // channel id -> bus subscriptions
	presenceSub string
	started     bool
}

// NewManager creates a manager bound to the given bus and presence store.
func NewManager(bus broker.Bus, kv broker.KV, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		bus:      bus,
		kv:       kv,
		logger:   logger.With("component", "session-manager"),
		sessions: make(map[string]map[string]*Session),
		channels: make(map[string]map[string]*Session),
		joined:   make(map[string]map[string]struct{}),
		subs:     make(map[string]*channelSub),
	}
}

// Start subscribes the manager to the shared presence topic. Presence
// updates go to every local session regardless of channel membership.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	subID, err := m.bus.Subscribe(broker.PresenceTopic, m.handlePresenceRecord)
	if err != nil {
		return fmt.Errorf("subscribing to presence updates: %w", err)
	}
	m.presenceSub = subID
	m.started = true
	return nil
}

// Attach registers a session and refreshes the user's presence. The first
// session for a user announces the user as online on the shared bus;
// additional devices only refresh the volatile presence key.
func (m *Manager) Attach(ctx context.Context, s *Session) {
	m.mu.Lock()
	userSessions := m.sessions[s.UserID]
	if userSessions == nil {
		userSessions = make(map[string]*Session)
		m.sessions[s.UserID] = userSessions
	}
	first := len(userSessions) == 0
	userSessions[s.ID] = s
	m.joined[s.ID] = make(map[string]struct{})
	m.mu.Unlock()

	if err := m.kv.MarkOnline(ctx, s.UserID); err != nil {
		m.logger.Warn("presence refresh failed", "user_id", s.UserID, "error", err)
	}
	if first {
		m.publishPresence(ctx, s.UserID, protocol.StatusOnline)
	}
	m.logger.Info("session attached",
		"session_id", s.ID,
		"user_id", s.UserID,
		"username", s.Username)
}

// Detach unregisters a session, leaving every channel it joined. The last
// session for a user announces the user as offline. Safe to call more than
// once for the same session.
func (m *Manager) Detach(ctx context.Context, s *Session) {
	m.mu.Lock()
	userSessions := m.sessions[s.UserID]
	if _, ok := userSessions[s.ID]; !ok {
		m.mu.Unlock()
		return
	}
	for channelID := range m.joined[s.ID] {
		m.removeFromChannelLocked(s, channelID)
	}
	delete(m.joined, s.ID)
	delete(userSessions, s.ID)
	lastOfUser := len(userSessions) == 0
	if lastOfUser {
		delete(m.sessions, s.UserID)
	}
	m.mu.Unlock()

	s.Close()

	if lastOfUser {
		if err := m.kv.MarkOffline(ctx, s.UserID); err != nil {
			m.logger.Warn("presence clear failed", "user_id", s.UserID, "error", err)
		}
		m.publishPresence(ctx, s.UserID, protocol.StatusOffline)
	}
	m.logger.Info("session detached", "session_id", s.ID, "user_id", s.UserID)
}

// SubscribeChannel adds a session to a channel's local membership. The
// first local member opens the channel's bus subscriptions; repeat calls
// for the same session are no-ops.
func (m *Manager) SubscribeChannel(ctx context.Context, s *Session, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	joined, ok := m.joined[s.ID]
	if !ok {
		return fmt.Errorf("session %s is not attached", s.ID)
	}
	if _, ok := joined[channelID]; ok {
		return nil
	}

	chanSessions := m.channels[channelID]
	if chanSessions == nil {
		chanSessions = make(map[string]*Session)
		m.channels[channelID] = chanSessions
	}
	if len(chanSessions) == 0 {
		msgSub, err := m.bus.Subscribe(broker.ChannelTopic(channelID), m.handleChannelRecord)
		if err != nil {
			delete(m.channels, channelID)
			return fmt.Errorf("subscribing to channel %s: %w", channelID, err)
		}
		typingSub, err := m.bus.Subscribe(broker.TypingTopic(channelID), m.handleTypingRecord)
		if err != nil {
			m.bus.Unsubscribe(broker.ChannelTopic(channelID), msgSub)
			delete(m.channels, channelID)
			return fmt.Errorf("subscribing to channel %s typing: %w", channelID, err)
		}
		m.subs[channelID] = &channelSub{messages: msgSub, typing: typingSub}
	}
	chanSessions[s.ID] = s
	joined[channelID] = struct{}{}

	m.logger.Debug("channel subscribed", "session_id", s.ID, "channel_id", channelID)
	return nil
}

// UnsubscribeChannel removes a session from a channel's local membership.
// The last local member releases the channel's bus subscriptions.
func (m *Manager) UnsubscribeChannel(ctx context.Context, s *Session, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	joined, ok := m.joined[s.ID]
	if !ok {
		return fmt.Errorf("session %s is not attached", s.ID)
	}
	if _, ok := joined[channelID]; !ok {
		return nil
	}
	m.removeFromChannelLocked(s, channelID)
	delete(joined, channelID)

	m.logger.Debug("channel unsubscribed", "session_id", s.ID, "channel_id", channelID)
	return nil
}

// removeFromChannelLocked drops a session from a channel and tears down the
// bus subscriptions when the channel has no local members left. Caller
// holds m.mu.
func (m *Manager) removeFromChannelLocked(s *Session, channelID string) {
	chanSessions := m.channels[channelID]
	if chanSessions == nil {
		return
	}
	delete(chanSessions, s.ID)
	if len(chanSessions) > 0 {
		return
	}
	delete(m.channels, channelID)
	if sub := m.subs[channelID]; sub != nil {
		m.bus.Unsubscribe(broker.ChannelTopic(channelID), sub.messages)
		m.bus.Unsubscribe(broker.TypingTopic(channelID), sub.typing)
		delete(m.subs, channelID)
	}
}

// Deliver queues a frame for one session.
func (m *Manager) Deliver(s *Session, frame *protocol.ServerFrame) {
	data, err := frame.Encode()
	if err != nil {
		m.logger.Error("frame encode failed", "type", frame.Type, "error", err)
		return
	}
	m.deliver(s, data)
}

// BroadcastChannel queues an encoded frame for every local member of a
// channel, skipping sessions owned by excludeUserID when set.
func (m *Manager) BroadcastChannel(channelID string, data []byte, excludeUserID string) {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.channels[channelID]))
	for _, s := range m.channels[channelID] {
		if excludeUserID != "" && s.UserID == excludeUserID {
			continue
		}
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	for _, s := range targets {
		m.deliver(s, data)
	}
}

// broadcastAll queues an encoded frame for every local session.
func (m *Manager) broadcastAll(data []byte) {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.joined))
	for _, userSessions := range m.sessions {
		for _, s := range userSessions {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range targets {
		m.deliver(s, data)
	}
}

// deliver hands a frame to one session without blocking. A full buffer
// marks the session stale and detaches it in the background; fan-out never
// waits on a slow client.
func (m *Manager) deliver(s *Session, data []byte) {
	if s.trySend(data) {
		return
	}
	if s.stale.CompareAndSwap(false, true) {
		m.logger.Warn("outbound buffer full, detaching slow session",
			"session_id", s.ID,
			"user_id", s.UserID)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
			defer cancel()
			m.Detach(ctx, s)
		}()
	}
}

// handleChannelRecord fans one chat message out to the channel's local
// members. The sender receives their own message; delivery is the
// confirmation.
func (m *Manager) handleChannelRecord(topic string, payload []byte) {
	channelID := strings.TrimPrefix(topic, "channel:")
	m.BroadcastChannel(channelID, payload, "")
}

// handleTypingRecord fans a typing indicator out to the channel's local
// members, excluding the typist's own sessions.
func (m *Manager) handleTypingRecord(topic string, payload []byte) {
	channelID := strings.TrimSuffix(strings.TrimPrefix(topic, "channel:"), ":typing")
	frame, err := protocol.ParseServerFrame(payload)
	if err != nil {
		m.logger.Warn("undecodable typing record", "topic", topic, "error", err)
		return
	}
	m.BroadcastChannel(channelID, payload, frame.UserID)
}

// handlePresenceRecord fans a presence update out to every local session.
func (m *Manager) handlePresenceRecord(topic string, payload []byte) {
	m.broadcastAll(payload)
}

// publishPresence announces a user's status on the shared presence topic.
// A failed publish is logged and dropped; presence converges through the
// volatile key's TTL.
func (m *Manager) publishPresence(ctx context.Context, userID, status string) {
	data, err := protocol.NewPresenceUpdate(userID, status).Encode()
	if err != nil {
		m.logger.Error("presence encode failed", "user_id", userID, "error", err)
		return
	}
	if err := m.bus.Publish(ctx, broker.PresenceTopic, userID, data); err != nil {
		m.logger.Warn("presence publish failed",
			"user_id", userID,
			"status", status,
			"error", err)
	}
}

// SessionCount returns the number of attached sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.joined)
}

// OnlineUsers returns the sorted ids of users with at least one session.
func (m *Manager) OnlineUsers() []string {
	m.mu.RLock()
	users := make([]string, 0, len(m.sessions))
	for userID := range m.sessions {
		users = append(users, userID)
	}
	m.mu.RUnlock()
	sort.Strings(users)
	return users
}

// ChannelCount returns the number of channels with local members.
func (m *Manager) ChannelCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels)
}

// ChannelSessionCount returns the number of local members in one channel.
func (m *Manager) ChannelSessionCount(channelID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels[channelID])
}

// Shutdown detaches every session and releases the presence subscription.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.joined))
	for _, userSessions := range m.sessions {
		for _, s := range userSessions {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range targets {
		m.Detach(ctx, s)
	}

	m.mu.Lock()
	if m.presenceSub != "" {
		m.bus.Unsubscribe(broker.PresenceTopic, m.presenceSub)
		m.presenceSub = ""
	}
	m.started = false
	m.mu.Unlock()

	m.logger.Info("session manager stopped")
}
