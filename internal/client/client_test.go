// ABOUTME: Tests for the gateway chat client
// ABOUTME: Round-trips frames against a local upgrade handler

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/signalink/internal/protocol"
)

func TestWSURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"http scheme", "http://localhost:8001", "ws://localhost:8001/ws?token=tok"},
		{"https scheme", "https://gw.example.com", "wss://gw.example.com/ws?token=tok"},
		{"ws passthrough", "ws://localhost:8001/ws", "ws://localhost:8001/ws?token=tok"},
		{"bare slash path", "http://localhost:8001/", "ws://localhost:8001/ws?token=tok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := wsURL(tt.in, "tok")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWSURL_RejectsUnknownScheme(t *testing.T) {
	_, err := wsURL("ftp://somewhere", "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported gateway url scheme")
}

func TestClient_FrameRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan *protocol.ClientFrame, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-1", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for range 2 {
			var frame protocol.ClientFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			received <- &frame
		}
		_ = conn.WriteJSON(map[string]any{
			"type":      protocol.TypeSuccess,
			"timestamp": time.Now().UTC(),
			"message":   "Subscribed to channel chan-1",
		})
		// Hold the socket open until the client closes it.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c, err := Dial(context.Background(), srv.URL, "tok-1")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Subscribe("chan-1"))
	require.NoError(t, c.SendMessage("chan-1", "hello", "text", map[string]any{"trace": "abc"}))

	frame, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeSuccess, frame.Type)
	assert.Equal(t, "Subscribed to channel chan-1", frame.Message)

	sub := <-received
	assert.Equal(t, protocol.TypeChannelSubscribe, sub.Type)
	assert.Equal(t, "chan-1", sub.ChannelID)

	msg := <-received
	assert.Equal(t, protocol.TypeMessageSend, msg.Type)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "text", msg.MessageType)
	assert.Equal(t, "abc", msg.Metadata["trace"])
}
