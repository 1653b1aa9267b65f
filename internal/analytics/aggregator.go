// ABOUTME: Tumbling-window aggregation of message lifecycle events
// ABOUTME: Buffers one window in memory and flushes it transactionally on rollover

package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/signalink/internal/metrics"
	"github.com/2389/signalink/internal/protocol"
	"github.com/2389/signalink/internal/store"
)

const defaultWindow = 60 * time.Second

type channelBuffer struct {
	count   int
	senders map[string]struct{}
	created int
	edited  int
	deleted int
}

type userBuffer struct {
	sent     int
	edited   int
	deleted  int
	channels map[string]struct{}
}

// Aggregator folds the event stream into fixed windows aligned to the Unix
// epoch. Buffers belong to the current window only; a rollover flushes them
// to the metrics store and starts fresh. A failed flush keeps the buffers so
// the window is retried instead of dropped.
type Aggregator struct {
	store   store.MetricsStore
	metrics *metrics.Analytics
	logger  *slog.Logger
	window  time.Duration
	now     func() time.Time

	mu             sync.Mutex
	windowStart    time.Time
	messageCount   int
	senders        map[string]struct{}
	activeChannels map[string]struct{}
	messageTypes   map[string]int
	perChannel     map[string]*channelBuffer
	perUser        map[string]*userBuffer
}

// NewAggregator creates an aggregator flushing to st every window.
func NewAggregator(st store.MetricsStore, window time.Duration, mx *metrics.Analytics, logger *slog.Logger) *Aggregator {
	if window <= 0 {
		window = defaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		store:   st,
		metrics: mx,
		logger:  logger.With("component", "aggregator"),
		window:  window,
		now:     time.Now,
	}
	a.resetLocked()
	return a
}

// alignWindow floors t to the window boundary, anchored at the Unix epoch.
func (a *Aggregator) alignWindow(t time.Time) time.Time {
	w := int64(a.window / time.Second)
	return time.Unix(t.Unix()/w*w, 0).UTC()
}

// Ingest folds one event into the current window. Arrival time decides the
// window; an event landing past the current boundary flushes first. Events
// without a user or channel id are counted and skipped.
func (a *Aggregator) Ingest(ctx context.Context, event *protocol.MessageEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.alignWindow(a.now())
	if a.windowStart.IsZero() {
		a.windowStart = start
	} else if start.After(a.windowStart) {
		a.rollLocked(ctx, start)
	}

	if event.UserID == "" || event.ChannelID == "" {
		a.metrics.EventsMalformed.Inc()
		a.logger.Warn("skipping event with missing ids",
			"event_type", event.EventType,
			"user_id", event.UserID,
			"channel_id", event.ChannelID)
		return
	}

	switch event.EventType {
	case protocol.EventMessageCreated:
		messageType := event.MessageType
		if messageType == "" {
			messageType = protocol.MessageTypeText
		}
		a.messageCount++
		a.senders[event.UserID] = struct{}{}
		a.activeChannels[event.ChannelID] = struct{}{}
		a.messageTypes[messageType]++

		cb := a.channelBuf(event.ChannelID)
		cb.count++
		cb.created++
		cb.senders[event.UserID] = struct{}{}

		ub := a.userBuf(event.UserID)
		ub.sent++
		ub.channels[event.ChannelID] = struct{}{}

	case protocol.EventMessageEdited:
		a.channelBuf(event.ChannelID).edited++
		a.userBuf(event.UserID).edited++

	case protocol.EventMessageDeleted:
		a.channelBuf(event.ChannelID).deleted++
		a.userBuf(event.UserID).deleted++
	}
}

// FlushAged flushes the current window when its wall-clock age has reached
// the window size. Called from a timer so sparse traffic still lands within
// one window of real time.
func (a *Aggregator) FlushAged(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.windowStart.IsZero() {
		return
	}
	now := a.now()
	if now.Sub(a.windowStart) < a.window {
		return
	}
	a.rollLocked(ctx, a.alignWindow(now))
}

// FlushNow flushes whatever is buffered regardless of window age. Used on
// shutdown so a partial window is not lost.
func (a *Aggregator) FlushNow(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.flushLocked(ctx); err != nil {
		return err
	}
	a.resetLocked()
	a.windowStart = time.Time{}
	return nil
}

// rollLocked flushes the current window and advances to newStart. On flush
// failure the buffers and window stay put; the next event or timer tick
// retries. Caller holds a.mu.
func (a *Aggregator) rollLocked(ctx context.Context, newStart time.Time) {
	if err := a.flushLocked(ctx); err != nil {
		a.logger.Error("metrics flush failed, retaining window",
			"window", a.windowStart.Format(time.RFC3339),
			"error", err)
		return
	}
	a.resetLocked()
	a.windowStart = newStart
}

// flushLocked writes the buffered window to the store. Empty windows write
// nothing. Caller holds a.mu.
func (a *Aggregator) flushLocked(ctx context.Context) error {
	if a.messageCount == 0 && len(a.perChannel) == 0 && len(a.perUser) == 0 {
		return nil
	}

	window := a.buildWindowLocked()
	if err := a.store.SaveMetricsWindow(ctx, window); err != nil {
		a.metrics.FlushFailures.Inc()
		return err
	}
	a.metrics.WindowsFlushed.Inc()

	a.logger.Info("metrics window flushed",
		"window", a.windowStart.Format(time.RFC3339),
		"messages", a.messageCount,
		"channels", len(a.perChannel),
		"users", len(a.perUser))
	return nil
}

// buildWindowLocked turns the buffers into store rows. Caller holds a.mu.
func (a *Aggregator) buildWindowLocked() *store.MetricsWindow {
	windowSeconds := int(a.window / time.Second)
	seconds := a.window.Seconds()

	// Only message.created marks a user active, so the sender set doubles
	// as the active-user set.
	msg := &store.MessageMetrics{
		TimeWindow:            a.windowStart,
		WindowDurationSeconds: windowSeconds,
		MessageCount:          a.messageCount,
		MessagesPerSecond:     float64(a.messageCount) / seconds,
		ActiveUsersCount:      len(a.senders),
		UniqueSendersCount:    len(a.senders),
		ActiveChannelsCount:   len(a.activeChannels),
		TextMessagesCount:     a.messageTypes[protocol.MessageTypeText],
		ImageMessagesCount:    a.messageTypes[protocol.MessageTypeImage],
		FileMessagesCount:     a.messageTypes[protocol.MessageTypeFile],
		SystemMessagesCount:   a.messageTypes[protocol.MessageTypeSystem],
	}

	channels := make([]*store.ChannelMetrics, 0, len(a.perChannel))
	for channelID, cb := range a.perChannel {
		channels = append(channels, &store.ChannelMetrics{
			ChannelID:             channelID,
			TimeWindow:            a.windowStart,
			WindowDurationSeconds: windowSeconds,
			MessageCount:          cb.count,
			UniqueSendersCount:    len(cb.senders),
			MessagesPerSecond:     float64(cb.count) / seconds,
			CreatedCount:          cb.created,
			EditedCount:           cb.edited,
			DeletedCount:          cb.deleted,
		})
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ChannelID < channels[j].ChannelID })

	users := make([]*store.UserMetrics, 0, len(a.perUser))
	for userID, ub := range a.perUser {
		users = append(users, &store.UserMetrics{
			UserID:                userID,
			TimeWindow:            a.windowStart,
			WindowDurationSeconds: windowSeconds,
			MessagesSent:          ub.sent,
			MessagesEdited:        ub.edited,
			MessagesDeleted:       ub.deleted,
			ChannelsActive:        len(ub.channels),
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })

	return &store.MetricsWindow{Message: msg, Channels: channels, Users: users}
}

// resetLocked clears the buffers for a new window. Caller holds a.mu.
func (a *Aggregator) resetLocked() {
	a.messageCount = 0
	a.senders = make(map[string]struct{})
	a.activeChannels = make(map[string]struct{})
	a.messageTypes = make(map[string]int)
	a.perChannel = make(map[string]*channelBuffer)
	a.perUser = make(map[string]*userBuffer)
}

func (a *Aggregator) channelBuf(channelID string) *channelBuffer {
	cb := a.perChannel[channelID]
	if cb == nil {
		cb = &channelBuffer{senders: make(map[string]struct{})}
		a.perChannel[channelID] = cb
	}
	return cb
}

func (a *Aggregator) userBuf(userID string) *userBuffer {
	ub := a.perUser[userID]
	if ub == nil {
		ub = &userBuffer{channels: make(map[string]struct{})}
		a.perUser[userID] = ub
	}
	return ub
}
