// ABOUTME: Test fixtures for the gateway server
// ABOUTME: In-memory bus and KV fakes plus a ready-to-serve Server builder

package realtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/2389/signalink/internal/auth"
	"github.com/2389/signalink/internal/broker"
	"github.com/2389/signalink/internal/config"
	"github.com/2389/signalink/internal/store"
)

type fakeBus struct {
	mu       sync.Mutex
	handlers map[string]map[string]broker.Handler
	nextID   int
	down     bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]map[string]broker.Handler)}
}

func (b *fakeBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	b.mu.Lock()
	targets := make([]broker.Handler, 0, len(b.handlers[topic]))
	for _, h := range b.handlers[topic] {
		targets = append(targets, h)
	}
	b.mu.Unlock()
	for _, h := range targets {
		h(topic, payload)
	}
	return nil
}

func (b *fakeBus) Subscribe(topic string, h broker.Handler) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := fmt.Sprintf("sub-%d", b.nextID)
	m := b.handlers[topic]
	if m == nil {
		m = make(map[string]broker.Handler)
		b.handlers[topic] = m
	}
	m[id] = h
	return id, nil
}

func (b *fakeBus) Unsubscribe(topic, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m := b.handlers[topic]; m != nil {
		delete(m, subID)
		if len(m) == 0 {
			delete(b.handlers, topic)
		}
	}
}

func (b *fakeBus) Connected(ctx context.Context) bool { return !b.down }

func (b *fakeBus) Close() {}

type fakeKV struct {
	mu     sync.Mutex
	online map[string]bool
	typing map[string]map[string]string
	down   bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		online: make(map[string]bool),
		typing: make(map[string]map[string]string),
	}
}

func (k *fakeKV) MarkOnline(ctx context.Context, userID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.online[userID] = true
	return nil
}

func (k *fakeKV) MarkOffline(ctx context.Context, userID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.online, userID)
	return nil
}

func (k *fakeKV) IsOnline(ctx context.Context, userID string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.online[userID], nil
}

func (k *fakeKV) SetTyping(ctx context.Context, channelID, userID, username string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	m := k.typing[channelID]
	if m == nil {
		m = make(map[string]string)
		k.typing[channelID] = m
	}
	m[userID] = username
	return nil
}

func (k *fakeKV) ClearTyping(ctx context.Context, channelID, userID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if m := k.typing[channelID]; m != nil {
		delete(m, userID)
	}
	return nil
}

func (k *fakeKV) TypingUsers(ctx context.Context, channelID string) (map[string]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[string]string, len(k.typing[channelID]))
	for id, name := range k.typing[channelID] {
		out[id] = name
	}
	return out, nil
}

func (k *fakeKV) Connected(ctx context.Context) bool { return !k.down }

func (k *fakeKV) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	server   *Server
	bus      *fakeBus
	kv       *fakeKV
	store    *store.MockStore
	verifier *auth.JWTVerifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	bus := newFakeBus()
	kv := newFakeKV()
	st := store.NewMockStore()
	verifier, err := auth.NewJWTVerifier([]byte("0123456789abcdef0123456789abcdef"), "HS256")
	require.NoError(t, err)

	cfg := &config.Config{
		Environment:        "test",
		WSHost:             "127.0.0.1",
		WSPort:             8001,
		WSPingInterval:     30,
		WSPingTimeout:      10,
		KafkaTopicMessages: "signalink.messages",
		CORSOrigins:        []string{"*"},
	}
	s := New(cfg, Deps{
		Bus:      bus,
		KV:       kv,
		Store:    st,
		Verifier: verifier,
		Logger:   testLogger(),
		Registry: prometheus.NewRegistry(),
	})
	return &testEnv{server: s, bus: bus, kv: kv, store: st, verifier: verifier}
}
