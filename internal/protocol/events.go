// ABOUTME: Message lifecycle events consumed from the analytics topic
// ABOUTME: EventTime tolerates timestamps with or without a zone designator

package protocol

import (
	"encoding/json"
	"time"
)

// Message lifecycle event types
const (
	EventMessageCreated = "message.created"
	EventMessageEdited  = "message.edited"
	EventMessageDeleted = "message.deleted"
)

// eventTimeLayouts are tried in order when decoding an EventTime. Producers
// outside this repo emit ISO-8601 without a zone designator, so the naive
// layouts are accepted and read as UTC.
var eventTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// EventTime is a time.Time that decodes from the timestamp formats seen on
// the events topic. Unparseable values decode to the zero time rather than
// failing the whole event.
type EventTime struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *EventTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range eventTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t EventTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// MessageEvent is one message lifecycle record from the events topic.
type MessageEvent struct {
	EventID     string         `json:"event_id"`
	EventType   string         `json:"event_type"`
	Timestamp   EventTime      `json:"timestamp"`
	UserID      string         `json:"user_id,omitempty"`
	MessageID   string         `json:"message_id,omitempty"`
	ChannelID   string         `json:"channel_id,omitempty"`
	Content     string         `json:"content,omitempty"`
	MessageType string         `json:"message_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IsEdited    bool           `json:"is_edited"`
	IsDeleted   bool           `json:"is_deleted"`
}

// ParseMessageEvent decodes one event record from the events topic.
func ParseMessageEvent(data []byte) (*MessageEvent, error) {
	var e MessageEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Encode serializes the event to its JSON wire form.
func (e *MessageEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
