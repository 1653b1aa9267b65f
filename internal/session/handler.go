// ABOUTME: Handler runs one WebSocket connection's read and write pumps
// ABOUTME: Dispatches client frames to persistence, the broker, and presence

package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/signalink/internal/auth"
	"github.com/2389/signalink/internal/broker"
	"github.com/2389/signalink/internal/protocol"
	"github.com/2389/signalink/internal/store"
)

const (
	// writeWait bounds a single socket write, pings and close frames
	// included.
	writeWait = 10 * time.Second

	// maxFrameBytes caps inbound client frames.
	maxFrameBytes = 64 * 1024

	// sendMessageTimeout bounds the persist-then-publish pipeline for one
	// chat message. Detached from the connection context so a disconnect
	// mid-send cannot lose a message that already hit the database.
	sendMessageTimeout = 10 * time.Second

	defaultPingInterval = 30 * time.Second
	defaultPingTimeout  = 10 * time.Second
)

// HandlerConfig carries the collaborators for one connection handler.
type HandlerConfig struct {
	Manager *Manager
	Store   store.MessageStore
	Bus     broker.Bus
	KV      broker.KV
	Logger  *slog.Logger

	// EventsTopic receives one lifecycle event per persisted message for
	// the analytics consumers.
	EventsTopic string

	// PingInterval is how often the server pings; PingTimeout is how long
	// after a due ping the peer may stay silent before the read fails.
	PingInterval time.Duration
	PingTimeout  time.Duration
}

// Handler owns one authenticated connection. The read pump parses and
// dispatches client frames; the write pump is the only goroutine that
// writes to the socket.
type Handler struct {
	conn    *websocket.Conn
	session *Session

	manager *Manager
	store   store.MessageStore
	bus     broker.Bus
	kv      broker.KV
	logger  *slog.Logger

	eventsTopic  string
	pingInterval time.Duration
	pingTimeout  time.Duration
}

// NewHandler creates a handler for an authenticated connection.
func NewHandler(conn *websocket.Conn, claims *auth.Claims, cfg HandlerConfig) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	session := NewSession(claims.UserID, claims.Username)
	return &Handler{
		conn:    conn,
		session: session,
		manager: cfg.Manager,
		store:   cfg.Store,
		bus:     cfg.Bus,
		kv:      cfg.KV,
		logger: logger.With("component", "session",
			"session_id", session.ID,
			"user_id", claims.UserID,
			"username", claims.Username),
		eventsTopic:  cfg.EventsTopic,
		pingInterval: cfg.PingInterval,
		pingTimeout:  cfg.PingTimeout,
	}
}

// Session returns the handler's session.
func (h *Handler) Session() *Session {
	return h.session
}

// Run attaches the session and blocks until the connection ends. Cleanup
// always runs, whatever ended the connection.
func (h *Handler) Run(ctx context.Context) {
	h.manager.Attach(ctx, h.session)
	defer h.teardown()

	go h.writePump()
	h.readPump(ctx)
}

func (h *Handler) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
	defer cancel()
	h.manager.Detach(ctx, h.session)
	h.conn.Close()
	h.logger.Info("session closed")
}

// readPump reads client frames until the connection errors or the peer
// goes silent past the pong deadline.
func (h *Handler) readPump(ctx context.Context) {
	pongWait := h.pingInterval + h.pingTimeout
	h.conn.SetReadLimit(maxFrameBytes)
	h.conn.SetReadDeadline(time.Now().Add(pongWait))
	h.conn.SetPongHandler(func(string) error {
		return h.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				h.logger.Warn("connection read failed", "error", err)
			}
			return
		}
		h.handleFrame(ctx, data)
	}
}

// writePump drains the session's outbound queue onto the socket and keeps
// the connection alive with periodic pings.
func (h *Handler) writePump() {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		h.conn.Close()
	}()

	for {
		select {
		case data := <-h.session.outbound:
			h.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("connection write failed", "error", err)
				return
			}
		case <-ticker.C:
			h.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-h.session.done:
			h.conn.SetWriteDeadline(time.Now().Add(writeWait))
			h.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleFrame dispatches one client frame. A malformed or unknown frame
// gets an error frame back; the connection stays open.
func (h *Handler) handleFrame(ctx context.Context, data []byte) {
	frame, err := protocol.ParseClientFrame(data)
	if err != nil {
		h.sendError("Invalid message format", "")
		return
	}

	switch frame.Type {
	case protocol.TypeMessageSend:
		h.handleMessageSend(frame)
	case protocol.TypeChannelSubscribe:
		h.handleSubscribe(ctx, frame)
	case protocol.TypeChannelUnsubscribe:
		h.handleUnsubscribe(ctx, frame)
	case protocol.TypeTypingStart:
		h.handleTyping(ctx, frame, true)
	case protocol.TypeTypingStop:
		h.handleTyping(ctx, frame, false)
	case protocol.TypePing:
		h.handlePing(ctx)
	default:
		h.sendError(fmt.Sprintf("Unknown message type: %s", frame.Type), "")
	}
}

// handleMessageSend persists a chat message and then publishes it for
// fan-out. The insert comes first: only durable messages reach the bus,
// and a failed publish after a durable insert is logged, not reported as
// a failed send.
func (h *Handler) handleMessageSend(frame *protocol.ClientFrame) {
	if uuid.Validate(frame.ChannelID) != nil {
		h.sendError("Failed to send message: invalid channel id", "")
		return
	}
	if strings.TrimSpace(frame.Content) == "" {
		h.sendError("Failed to send message: content is required", "")
		return
	}
	messageType := frame.MessageType
	if messageType == "" {
		messageType = protocol.MessageTypeText
	}
	if !protocol.ValidMessageType(messageType) {
		h.sendError("Failed to send message: invalid message type", "")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendMessageTimeout)
	defer cancel()

	msg := &store.Message{
		ChannelID:   frame.ChannelID,
		UserID:      h.session.UserID,
		Content:     frame.Content,
		MessageType: messageType,
		Metadata:    store.Metadata(frame.Metadata),
	}
	if err := h.store.InsertMessage(ctx, msg); err != nil {
		h.logger.Error("message insert failed", "channel_id", frame.ChannelID, "error", err)
		h.sendError("Failed to send message", "")
		return
	}

	out := protocol.NewMessageReceive(msg.ID, msg.ChannelID, msg.UserID,
		h.session.Username, msg.Content, msg.MessageType, frame.Metadata, msg.CreatedAt)
	data, err := out.Encode()
	if err != nil {
		h.logger.Error("message encode failed", "message_id", msg.ID, "error", err)
		return
	}
	if err := h.bus.Publish(ctx, broker.ChannelTopic(msg.ChannelID), msg.ChannelID, data); err != nil {
		h.logger.Error("message publish failed",
			"message_id", msg.ID,
			"channel_id", msg.ChannelID,
			"error", err)
	}

	h.publishMessageEvent(ctx, msg, frame.Metadata)
}

// publishMessageEvent emits one lifecycle event for the analytics
// consumers. Best effort after the durable insert.
func (h *Handler) publishMessageEvent(ctx context.Context, msg *store.Message, metadata map[string]any) {
	if h.eventsTopic == "" {
		return
	}
	event := &protocol.MessageEvent{
		EventID:     uuid.New().String(),
		EventType:   protocol.EventMessageCreated,
		Timestamp:   protocol.EventTime{Time: msg.CreatedAt},
		UserID:      msg.UserID,
		MessageID:   msg.ID,
		ChannelID:   msg.ChannelID,
		Content:     msg.Content,
		MessageType: msg.MessageType,
		Metadata:    metadata,
	}
	data, err := event.Encode()
	if err != nil {
		h.logger.Error("event encode failed", "message_id", msg.ID, "error", err)
		return
	}
	if err := h.bus.Publish(ctx, h.eventsTopic, msg.ChannelID, data); err != nil {
		h.logger.Warn("event publish failed",
			"message_id", msg.ID,
			"topic", h.eventsTopic,
			"error", err)
	}
}

func (h *Handler) handleSubscribe(ctx context.Context, frame *protocol.ClientFrame) {
	if uuid.Validate(frame.ChannelID) != nil {
		h.sendError("Failed to subscribe: invalid channel id", "")
		return
	}
	if err := h.manager.SubscribeChannel(ctx, h.session, frame.ChannelID); err != nil {
		h.logger.Error("channel subscribe failed", "channel_id", frame.ChannelID, "error", err)
		h.sendError("Failed to subscribe", "")
		return
	}
	h.sendSuccess(fmt.Sprintf("Subscribed to channel %s", frame.ChannelID),
		map[string]any{"channel_id": frame.ChannelID})
}

func (h *Handler) handleUnsubscribe(ctx context.Context, frame *protocol.ClientFrame) {
	if uuid.Validate(frame.ChannelID) != nil {
		h.sendError("Failed to unsubscribe: invalid channel id", "")
		return
	}
	if err := h.manager.UnsubscribeChannel(ctx, h.session, frame.ChannelID); err != nil {
		h.logger.Error("channel unsubscribe failed", "channel_id", frame.ChannelID, "error", err)
		h.sendError("Failed to unsubscribe", "")
		return
	}
	h.sendSuccess(fmt.Sprintf("Unsubscribed from channel %s", frame.ChannelID),
		map[string]any{"channel_id": frame.ChannelID})
}

// handleTyping updates the channel's volatile typing state and publishes
// the indicator. Failures are logged without an error frame; typing is
// best effort.
func (h *Handler) handleTyping(ctx context.Context, frame *protocol.ClientFrame, started bool) {
	if uuid.Validate(frame.ChannelID) != nil {
		h.logger.Warn("typing frame with invalid channel id", "channel_id", frame.ChannelID)
		return
	}

	var err error
	if started {
		err = h.kv.SetTyping(ctx, frame.ChannelID, h.session.UserID, h.session.Username)
	} else {
		err = h.kv.ClearTyping(ctx, frame.ChannelID, h.session.UserID)
	}
	if err != nil {
		h.logger.Warn("typing state update failed",
			"channel_id", frame.ChannelID,
			"started", started,
			"error", err)
		return
	}

	indicator := protocol.NewTypingIndicator(frame.ChannelID, h.session.UserID, h.session.Username, started)
	data, err := indicator.Encode()
	if err != nil {
		h.logger.Error("typing encode failed", "channel_id", frame.ChannelID, "error", err)
		return
	}
	if err := h.bus.Publish(ctx, broker.TypingTopic(frame.ChannelID), h.session.UserID, data); err != nil {
		h.logger.Warn("typing publish failed", "channel_id", frame.ChannelID, "error", err)
	}
}

// handlePing answers the application-level keepalive and refreshes the
// user's volatile presence key.
func (h *Handler) handlePing(ctx context.Context) {
	h.manager.Deliver(h.session, protocol.NewPong())
	if err := h.kv.MarkOnline(ctx, h.session.UserID); err != nil {
		h.logger.Warn("presence refresh failed", "error", err)
	}
}

func (h *Handler) sendError(message, code string) {
	h.manager.Deliver(h.session, protocol.NewError(message, code))
}

func (h *Handler) sendSuccess(message string, data map[string]any) {
	h.manager.Deliver(h.session, protocol.NewSuccess(message, data))
}
