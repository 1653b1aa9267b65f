// ABOUTME: WebSocket chat client for the gateway
// ABOUTME: Typed frame helpers over one authenticated connection

package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/signalink/internal/protocol"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	closeGrace   = time.Second
)

// Client is one authenticated connection to the gateway. Reads and writes
// may run on separate goroutines; writes are serialized internally, reads
// must stay on a single goroutine.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Dial connects and authenticates against a gateway. gatewayURL accepts
// http(s) or ws(s) schemes; the /ws path and token query are filled in.
// Note the gateway only rejects a bad token after the upgrade, so Dial
// succeeding does not prove the token: the first Read surfaces the policy
// close.
func Dial(ctx context.Context, gatewayURL, token string) (*Client, error) {
	target, err := wsURL(gatewayURL, token)
	if err != nil {
		return nil, err
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = dialTimeout

	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing gateway: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return &Client{conn: conn}, nil
}

// wsURL normalizes a gateway URL to the websocket endpoint with the token
// attached.
func wsURL(gatewayURL, token string) (string, error) {
	u, err := url.Parse(gatewayURL)
	if err != nil {
		return "", fmt.Errorf("parsing gateway url: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported gateway url scheme %q", u.Scheme)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Read blocks for the next server frame. A policy close (bad token, for
// example) comes back as a *websocket.CloseError.
func (c *Client) Read() (*protocol.ServerFrame, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	frame, err := protocol.ParseServerFrame(data)
	if err != nil {
		return nil, fmt.Errorf("decoding server frame: %w", err)
	}
	return frame, nil
}

// SendMessage publishes a chat message to a channel.
func (c *Client) SendMessage(channelID, content, messageType string, metadata map[string]any) error {
	return c.send(&protocol.ClientFrame{
		Type:        protocol.TypeMessageSend,
		ChannelID:   channelID,
		Content:     content,
		MessageType: messageType,
		Metadata:    metadata,
	})
}

// Subscribe joins a channel's live feed.
func (c *Client) Subscribe(channelID string) error {
	return c.send(&protocol.ClientFrame{
		Type:      protocol.TypeChannelSubscribe,
		ChannelID: channelID,
	})
}

// Unsubscribe leaves a channel's live feed.
func (c *Client) Unsubscribe(channelID string) error {
	return c.send(&protocol.ClientFrame{
		Type:      protocol.TypeChannelUnsubscribe,
		ChannelID: channelID,
	})
}

// TypingStart signals composing in a channel.
func (c *Client) TypingStart(channelID string) error {
	return c.send(&protocol.ClientFrame{
		Type:      protocol.TypeTypingStart,
		ChannelID: channelID,
	})
}

// TypingStop clears the composing signal.
func (c *Client) TypingStop(channelID string) error {
	return c.send(&protocol.ClientFrame{
		Type:      protocol.TypeTypingStop,
		ChannelID: channelID,
	})
}

// Ping asks for a pong and refreshes presence.
func (c *Client) Ping() error {
	return c.send(&protocol.ClientFrame{Type: protocol.TypePing})
}

func (c *Client) send(frame *protocol.ClientFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("sending %s frame: %w", frame.Type, err)
	}
	return nil
}

// Close performs a normal closure handshake and drops the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace))
	c.writeMu.Unlock()
	return c.conn.Close()
}
