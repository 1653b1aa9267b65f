// ABOUTME: WebSocket frame types exchanged between clients and the gateway
// ABOUTME: Tagged union over the "type" field with constructors for server frames

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Client to server frame types
const (
	TypeMessageSend        = "message.send"
	TypeChannelSubscribe   = "channel.subscribe"
	TypeChannelUnsubscribe = "channel.unsubscribe"
	TypeTypingStart        = "typing.start"
	TypeTypingStop         = "typing.stop"
	TypePing               = "ping"
)

// Server to client frame types
const (
	TypeMessageReceive  = "message.receive"
	TypeTypingIndicator = "typing.indicator"
	TypePresenceUpdate  = "presence.update"
	TypeSuccess         = "success"
	TypeError           = "error"
	TypePong            = "pong"
)

// Message content types
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// Presence statuses
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
)

// ErrEmptyType is returned when a frame carries no "type" field
var ErrEmptyType = errors.New("frame has no type")

// ValidMessageType reports whether t is in the message type enumeration.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// ClientFrame is a frame received from a client. Fields beyond Type are
// populated depending on the frame type; unused fields stay zero.
type ClientFrame struct {
	Type        string         `json:"type"`
	ChannelID   string         `json:"channel_id,omitempty"`
	Content     string         `json:"content,omitempty"`
	MessageType string         `json:"message_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`
}

// ParseClientFrame decodes a single JSON frame from a client.
func ParseClientFrame(data []byte) (*ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if f.Type == "" {
		return nil, ErrEmptyType
	}
	return &f, nil
}

// ServerFrame is a frame sent to clients, and also the payload carried on
// the fan-out, typing, and presence bus topics. Every frame has Type and
// Timestamp; the remaining fields depend on the type.
type ServerFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// message.receive
	MessageID   string         `json:"message_id,omitempty"`
	ChannelID   string         `json:"channel_id,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	Username    string         `json:"username,omitempty"`
	Content     string         `json:"content,omitempty"`
	MessageType string         `json:"message_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`

	// typing.indicator
	IsTyping *bool `json:"is_typing,omitempty"`

	// presence.update
	Status string `json:"status,omitempty"`

	// success
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`

	// error
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// ParseServerFrame decodes a frame received from the bus or the gateway.
func ParseServerFrame(data []byte) (*ServerFrame, error) {
	var f ServerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if f.Type == "" {
		return nil, ErrEmptyType
	}
	return &f, nil
}

// Encode serializes the frame to its JSON wire form.
func (f *ServerFrame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", f.Type, err)
	}
	return data, nil
}

func now() time.Time {
	return time.Now().UTC()
}

// NewMessageReceive builds the fan-out frame for a persisted message.
func NewMessageReceive(messageID, channelID, userID, username, content, messageType string, metadata map[string]any, createdAt time.Time) *ServerFrame {
	created := createdAt.UTC()
	return &ServerFrame{
		Type:        TypeMessageReceive,
		Timestamp:   now(),
		MessageID:   messageID,
		ChannelID:   channelID,
		UserID:      userID,
		Username:    username,
		Content:     content,
		MessageType: messageType,
		Metadata:    metadata,
		CreatedAt:   &created,
	}
}

// NewTypingIndicator builds a typing state frame for a channel.
func NewTypingIndicator(channelID, userID, username string, isTyping bool) *ServerFrame {
	return &ServerFrame{
		Type:      TypeTypingIndicator,
		Timestamp: now(),
		ChannelID: channelID,
		UserID:    userID,
		Username:  username,
		IsTyping:  &isTyping,
	}
}

// NewPresenceUpdate builds a presence transition frame for a user.
func NewPresenceUpdate(userID, status string) *ServerFrame {
	return &ServerFrame{
		Type:      TypePresenceUpdate,
		Timestamp: now(),
		UserID:    userID,
		Status:    status,
	}
}

// NewSuccess builds an operation confirmation frame.
func NewSuccess(message string, data map[string]any) *ServerFrame {
	return &ServerFrame{
		Type:      TypeSuccess,
		Timestamp: now(),
		Message:   message,
		Data:      data,
	}
}

// NewError builds an error frame. code may be empty.
func NewError(message, code string) *ServerFrame {
	return &ServerFrame{
		Type:      TypeError,
		Timestamp: now(),
		Error:     message,
		Code:      code,
	}
}

// NewPong builds the reply to a client ping.
func NewPong() *ServerFrame {
	return &ServerFrame{
		Type:      TypePong,
		Timestamp: now(),
	}
}
