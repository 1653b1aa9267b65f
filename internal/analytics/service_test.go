// ABOUTME: Test fixtures for the analytics service plus run-loop coverage
// ABOUTME: Fake event source drives the consumer path without Kafka

package analytics

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/signalink/internal/broker"
	"github.com/2389/signalink/internal/config"
	"github.com/2389/signalink/internal/protocol"
	"github.com/2389/signalink/internal/store"
)

type fakeSource struct {
	events chan *protocol.MessageEvent
	down   bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan *protocol.MessageEvent, 16)}
}

func (f *fakeSource) Run(ctx context.Context, fn broker.EventFunc) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-f.events:
			fn(event)
		}
	}
}

func (f *fakeSource) Connected(ctx context.Context) bool { return !f.down }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type serviceEnv struct {
	service *Service
	store   *store.MockMetricsStore
	source  *fakeSource
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	st := store.NewMockMetricsStore()
	source := newFakeSource()
	cfg := &config.Config{
		Environment:          "test",
		AnalyticsHost:        "127.0.0.1",
		AnalyticsPort:        0,
		MetricsWindowSeconds: 60,
		MetricsRetentionDays: 30,
		CORSOrigins:          []string{"*"},
	}
	svc := New(cfg, Deps{
		Store:    st,
		Consumer: source,
		Logger:   testLogger(),
		Registry: prometheus.NewRegistry(),
	})
	return &serviceEnv{service: svc, store: st, source: source}
}

func createdEvent(userID, channelID, messageType string) *protocol.MessageEvent {
	return &protocol.MessageEvent{
		EventID:     "evt-" + userID + "-" + channelID,
		EventType:   protocol.EventMessageCreated,
		UserID:      userID,
		ChannelID:   channelID,
		MessageType: messageType,
	}
}

func TestService_RunConsumesAndFlushesOnShutdown(t *testing.T) {
	env := newServiceEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.service.Run(ctx) }()

	env.source.events <- createdEvent("user-1", "11111111-1111-1111-1111-111111111111", "text")
	env.source.events <- createdEvent("user-2", "11111111-1111-1111-1111-111111111111", "text")

	require.Eventually(t, func() bool {
		return len(env.source.events) == 0
	}, 2*time.Second, 10*time.Millisecond, "events should be drained")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}

	windows := env.store.Windows()
	require.Len(t, windows, 1, "the partial window flushes on shutdown")
	assert.Equal(t, 2, windows[0].Message.MessageCount)
	assert.Equal(t, 2, windows[0].Message.UniqueSendersCount)
	require.Len(t, windows[0].Channels, 1)
	assert.Equal(t, 2, windows[0].Channels[0].MessageCount)
}

func TestService_RunSuppressesRedeliveredEvents(t *testing.T) {
	env := newServiceEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.service.Run(ctx) }()

	event := createdEvent("user-1", "11111111-1111-1111-1111-111111111111", "text")
	env.source.events <- event
	env.source.events <- event // consumer group rebalance replays the record

	require.Eventually(t, func() bool {
		return len(env.source.events) == 0
	}, 2*time.Second, 10*time.Millisecond, "events should be drained")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}

	windows := env.store.Windows()
	require.Len(t, windows, 1)
	assert.Equal(t, 1, windows[0].Message.MessageCount, "redelivered event must not count twice")
	assert.Equal(t, 1, windows[0].Message.UniqueSendersCount)
}

func TestService_RunCountsEventsWithoutEventID(t *testing.T) {
	env := newServiceEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.service.Run(ctx) }()

	// Events from producers that never stamped an event_id skip dedupe
	// rather than all colliding on the empty key.
	for range 2 {
		env.source.events <- &protocol.MessageEvent{
			EventType: protocol.EventMessageCreated,
			UserID:    "user-1",
			ChannelID: "11111111-1111-1111-1111-111111111111",
		}
	}

	require.Eventually(t, func() bool {
		return len(env.source.events) == 0
	}, 2*time.Second, 10*time.Millisecond, "events should be drained")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}

	windows := env.store.Windows()
	require.Len(t, windows, 1)
	assert.Equal(t, 2, windows[0].Message.MessageCount)
}
