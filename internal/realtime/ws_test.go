// ABOUTME: End-to-end tests over a real WebSocket connection
// ABOUTME: Exercises the auth close codes and the subscribe/send/receive flow

package realtime

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/signalink/internal/protocol"
)

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn
}

// readUntil reads frames until one of the wanted type arrives, skipping
// unrelated traffic such as presence updates.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) *protocol.ServerFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame protocol.ServerFrame
		require.NoError(t, conn.ReadJSON(&frame), "waiting for %s frame", frameType)
		if frame.Type == frameType {
			return &frame
		}
	}
}

func expectClose(t *testing.T, conn *websocket.Conn, code int, text string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, code, closeErr.Code)
	assert.Equal(t, text, closeErr.Text)
}

func TestWS_MissingToken(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "")
	defer conn.Close()

	expectClose(t, conn, websocket.ClosePolicyViolation, "Missing authentication token")
}

func TestWS_InvalidToken(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "not-a-jwt")
	defer conn.Close()

	expectClose(t, conn, websocket.ClosePolicyViolation, "Invalid authentication token")
}

func TestWS_ChatRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.server.Manager().Start())

	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	adaToken, err := env.verifier.Generate("user-ada", "ada", time.Hour)
	require.NoError(t, err)
	graceToken, err := env.verifier.Generate("user-grace", "grace", time.Hour)
	require.NoError(t, err)

	ada := dialWS(t, srv, adaToken)
	defer ada.Close()
	grace := dialWS(t, srv, graceToken)
	defer grace.Close()

	channelID := "22222222-2222-2222-2222-222222222222"
	require.NoError(t, ada.WriteJSON(map[string]any{
		"type":       protocol.TypeChannelSubscribe,
		"channel_id": channelID,
	}))
	sub := readUntil(t, ada, protocol.TypeSuccess)
	assert.Equal(t, "Subscribed to channel "+channelID, sub.Message)
	assert.Equal(t, channelID, sub.Data["channel_id"])

	require.NoError(t, grace.WriteJSON(map[string]any{
		"type":       protocol.TypeChannelSubscribe,
		"channel_id": channelID,
	}))
	readUntil(t, grace, protocol.TypeSuccess)

	require.NoError(t, ada.WriteJSON(map[string]any{
		"type":       protocol.TypeMessageSend,
		"channel_id": channelID,
		"content":    "hello from ada",
	}))

	got := readUntil(t, grace, protocol.TypeMessageReceive)
	assert.Equal(t, channelID, got.ChannelID)
	assert.Equal(t, "user-ada", got.UserID)
	assert.Equal(t, "ada", got.Username)
	assert.Equal(t, "hello from ada", got.Content)
	assert.Equal(t, protocol.MessageTypeText, got.MessageType)
	assert.NotEmpty(t, got.MessageID)

	// The sender gets the same fan-out frame as everyone else.
	echo := readUntil(t, ada, protocol.TypeMessageReceive)
	assert.Equal(t, got.MessageID, echo.MessageID)

	messages := env.store.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, got.MessageID, messages[0].ID)
	assert.Equal(t, "user-ada", messages[0].UserID)
}

func TestWS_PingPong(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	token, err := env.verifier.Generate("user-ada", "ada", time.Hour)
	require.NoError(t, err)

	conn := dialWS(t, srv, token)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": protocol.TypePing}))
	pong := readUntil(t, conn, protocol.TypePong)
	assert.False(t, pong.Timestamp.IsZero())

	online, err := env.kv.IsOnline(context.Background(), "user-ada")
	require.NoError(t, err)
	assert.True(t, online)
}
