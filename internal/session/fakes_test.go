// ABOUTME: In-memory Bus and KV fakes for session tests
// ABOUTME: The fake bus dispatches synchronously so tests see deterministic fan-out

package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/signalink/internal/broker"
	"github.com/2389/signalink/internal/protocol"
)

type publishedRecord struct {
	topic   string
	key     string
	payload []byte
}

// fakeBus is an in-memory broker.Bus. Publish dispatches to every
// subscribed handler in the same call, which stands in for the real
// bus's per-instance fan-out.
type fakeBus struct {
	mu         sync.Mutex
	handlers   map[string]map[string]broker.Handler
	published  []publishedRecord
	publishErr error
	nextID     int
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]map[string]broker.Handler)}
}

func (b *fakeBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	b.mu.Lock()
	if b.publishErr != nil {
		err := b.publishErr
		b.mu.Unlock()
		return err
	}
	b.published = append(b.published, publishedRecord{topic: topic, key: key, payload: payload})
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

func (b *fakeBus) Connected(ctx context.Context) bool { return true }

func (b *fakeBus) Close() {}

func (b *fakeBus) publishedTo(topic string) []publishedRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publishedRecord
	for _, rec := range b.published {
		if rec.topic == topic {
			out = append(out, rec)
		}
	}
	return out
}

func (b *fakeBus) handlerCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[topic])
}

// fakeKV is an in-memory broker.KV.
type fakeKV struct {
	mu        sync.Mutex
	online    map[string]bool
	typing    map[string]map[string]string
	markErr   error
	typingErr error
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
	if k.markErr != nil {
		return k.markErr
	}
	k.online[userID] = true
	return nil
}

func (k *fakeKV) MarkOffline(ctx context.Context, userID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.markErr != nil {
		return k.markErr
	}
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
	if k.typingErr != nil {
		return k.typingErr
	}
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
	if k.typingErr != nil {
		return k.typingErr
	}
	if m := k.typing[channelID]; m != nil {
		delete(m, userID)
		if len(m) == 0 {
			delete(k.typing, channelID)
		}
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

func (k *fakeKV) Connected(ctx context.Context) bool { return true }

func (k *fakeKV) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// readFrame pops one delivered frame off a session's outbound queue.
func readFrame(t *testing.T, s *Session) *protocol.ServerFrame {
	t.Helper()
	select {
	case data := <-s.outbound:
		frame, err := protocol.ParseServerFrame(data)
		require.NoError(t, err)
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func assertNoFrame(t *testing.T, s *Session) {
	t.Helper()
	select {
	case data := <-s.outbound:
		t.Fatalf("unexpected frame delivered: %s", data)
	default:
	}
}

func drainFrames(s *Session) {
	for {
		select {
		case <-s.outbound:
		default:
			return
		}
	}
}
