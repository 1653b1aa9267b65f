// ABOUTME: In-memory store implementations for testing
// ABOUTME: Allow failure injection so callers' error paths are reachable

package store

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory MessageStore.
type MockStore struct {
	mu       sync.RWMutex
	messages []*Message

	// InsertErr, when set, is returned by InsertMessage.
	InsertErr error
	// PingErr, when set, is returned by Ping.
	PingErr error
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// InsertMessage records a copy of the message, filling defaults the same
// way the MySQL store does.
func (m *MockStore) InsertMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertErr != nil {
		return m.InsertErr
	}

	if msg.ID == "" {
		msg.ID = "msg-" + time.Now().UTC().Format("150405.000000000")
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

	stored := *msg
	m.messages = append(m.messages, &stored)
	return nil
}

// Messages returns copies of everything inserted so far.
func (m *MockStore) Messages() []*Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Message, 0, len(m.messages))
	for _, msg := range m.messages {
		copied := *msg
		out = append(out, &copied)
	}
	return out
}

// Ping returns PingErr.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PingErr
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// MockMetricsStore is an in-memory MetricsStore.
type MockMetricsStore struct {
	mu      sync.RWMutex
	windows []*MetricsWindow

	// SaveErr, when set, is returned by SaveMetricsWindow.
	SaveErr error
	// PingErr, when set, is returned by Ping.
	PingErr error
}

// NewMockMetricsStore creates an empty MockMetricsStore.
func NewMockMetricsStore() *MockMetricsStore {
	return &MockMetricsStore{}
}

// SaveMetricsWindow records the window, or fails with SaveErr without
// recording anything.
func (m *MockMetricsStore) SaveMetricsWindow(ctx context.Context, window *MetricsWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.windows = append(m.windows, window)
	return nil
}

// Windows returns every saved window.
func (m *MockMetricsStore) Windows() []*MetricsWindow {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*MetricsWindow, len(m.windows))
	copy(out, m.windows)
	return out
}

// ListMessageMetrics filters saved system rows by cutoff, newest first.
func (m *MockMetricsStore) ListMessageMetrics(ctx context.Context, since time.Time, limit int) ([]*MessageMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*MessageMetrics{}
	for i := len(m.windows) - 1; i >= 0; i-- {
		mm := m.windows[i].Message
		if mm == nil || mm.TimeWindow.Before(since) {
			continue
		}
		out = append(out, mm)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListChannelMetrics filters saved channel rows, newest first.
func (m *MockMetricsStore) ListChannelMetrics(ctx context.Context, channelID string, since time.Time) ([]*ChannelMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*ChannelMetrics{}
	for i := len(m.windows) - 1; i >= 0; i-- {
		for _, cm := range m.windows[i].Channels {
			if cm.ChannelID == channelID && !cm.TimeWindow.Before(since) {
				out = append(out, cm)
			}
		}
	}
	return out, nil
}

// ListUserMetrics filters saved user rows, newest first.
func (m *MockMetricsStore) ListUserMetrics(ctx context.Context, userID string, since time.Time) ([]*UserMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*UserMetrics{}
	for i := len(m.windows) - 1; i >= 0; i-- {
		for _, um := range m.windows[i].Users {
			if um.UserID == userID && !um.TimeWindow.Before(since) {
				out = append(out, um)
			}
		}
	}
	return out, nil
}

// TopChannels ranks saved channel rows by total message count.
func (m *MockMetricsStore) TopChannels(ctx context.Context, since time.Time, limit int) ([]*ChannelMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := map[string]int{}
	latest := map[string]*ChannelMetrics{}
	for _, w := range m.windows {
		for _, cm := range w.Channels {
			if cm.TimeWindow.Before(since) {
				continue
			}
			totals[cm.ChannelID] += cm.MessageCount
			prev, ok := latest[cm.ChannelID]
			if !ok || cm.TimeWindow.After(prev.TimeWindow) {
				latest[cm.ChannelID] = cm
			}
		}
	}

	out := []*ChannelMetrics{}
	for len(out) < limit && len(totals) > 0 {
		best := ""
		for id := range totals {
			if best == "" || totals[id] > totals[best] {
				best = id
			}
		}
		out = append(out, latest[best])
		delete(totals, best)
	}
	return out, nil
}

// TopUsers ranks saved user rows by messages sent.
func (m *MockMetricsStore) TopUsers(ctx context.Context, since time.Time, limit int) ([]*UserMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := map[string]int{}
	latest := map[string]*UserMetrics{}
	for _, w := range m.windows {
		for _, um := range w.Users {
			if um.TimeWindow.Before(since) {
				continue
			}
			totals[um.UserID] += um.MessagesSent
			prev, ok := latest[um.UserID]
			if !ok || um.TimeWindow.After(prev.TimeWindow) {
				latest[um.UserID] = um
			}
		}
	}

	out := []*UserMetrics{}
	for len(out) < limit && len(totals) > 0 {
		best := ""
		for id := range totals {
			if best == "" || totals[id] > totals[best] {
				best = id
			}
		}
		out = append(out, latest[best])
		delete(totals, best)
	}
	return out, nil
}

// SystemStats summarizes saved system rows since the cutoff.
func (m *MockMetricsStore) SystemStats(ctx context.Context, since time.Time) (*SystemStats, error) {
	m.mu.RLock()
	stats := &SystemStats{}
	var mpsSum float64
	var rows int
	for _, w := range m.windows {
		mm := w.Message
		if mm == nil || mm.TimeWindow.Before(since) {
			continue
		}
		rows++
		stats.TotalMessages += int64(mm.MessageCount)
		mpsSum += mm.MessagesPerSecond
		if mm.ActiveUsersCount > stats.ActiveUsers {
			stats.ActiveUsers = mm.ActiveUsersCount
		}
		if mm.ActiveChannelsCount > stats.ActiveChannels {
			stats.ActiveChannels = mm.ActiveChannelsCount
		}
	}
	if rows > 0 {
		stats.MessagesPerSecond = mpsSum / float64(rows)
	}
	m.mu.RUnlock()

	if top, _ := m.TopChannels(ctx, since, 1); len(top) > 0 {
		stats.MostActiveChannelID = &top[0].ChannelID
	}
	if top, _ := m.TopUsers(ctx, since, 1); len(top) > 0 {
		stats.MostActiveUserID = &top[0].UserID
	}
	return stats, nil
}

// SystemTimeseries returns saved system rows since the cutoff, oldest first.
func (m *MockMetricsStore) SystemTimeseries(ctx context.Context, since time.Time) ([]*MessageMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*MessageMetrics{}
	for _, w := range m.windows {
		if w.Message != nil && !w.Message.TimeWindow.Before(since) {
			out = append(out, w.Message)
		}
	}
	return out, nil
}

// PruneMetrics drops saved windows older than the cutoff.
func (m *MockMetricsStore) PruneMetrics(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned int64
	kept := m.windows[:0]
	for _, w := range m.windows {
		if w.Message != nil && w.Message.TimeWindow.Before(olderThan) {
			pruned += int64(1 + len(w.Channels) + len(w.Users))
			continue
		}
		kept = append(kept, w)
	}
	m.windows = kept
	return pruned, nil
}

// Ping returns PingErr.
func (m *MockMetricsStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PingErr
}

// Close is a no-op.
func (m *MockMetricsStore) Close() error {
	return nil
}
