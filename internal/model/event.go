package model

import (
	"time"
)

// EventType represents the type of conversation lifecycle event.
type EventType string

const (
	EventTypeStarted  EventType = "started"
	EventTypeThinking EventType = "thinking"
	EventTypeMessage  EventType = "message"
	EventTypeError    EventType = "error"
	EventTypeEnded    EventType = "ended"
)

// ConversationEvent is one element of the scheduler's tagged event stream.
// Exactly which fields are set depends on Type: Speaker for thinking events,
// Message for message events, Reason for error events, Metadata for ended
// events (total message count and duration).
type ConversationEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Speaker   string         `json:"speaker,omitempty"`
	Message   *Message       `json:"message,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Critical  bool           `json:"critical,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
