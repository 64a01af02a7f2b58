package model

import (
	"time"
)

// SpeakerUser is the sentinel speaker name for externally supplied prompts.
const SpeakerUser = "User"

// Message represents one exchanged utterance. Messages are immutable once
// created by the ledger.
type Message struct {
	ID          string         `json:"id"`
	SpeakerName string         `json:"speaker_name"`
	Content     string         `json:"content"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Stats is the derived statistics block computed over the ledger.
type Stats struct {
	// TotalMessages counts every append ever made, trimming included.
	TotalMessages     int            `json:"total_messages"`
	MessagesByPersona map[string]int `json:"messages_by_persona"`
	// AverageMessageLength is computed over retained messages only.
	AverageMessageLength float64 `json:"average_message_length"`
	DurationMillis       int64   `json:"duration_ms"`
}

// Transcript is the full serialized snapshot produced by the ledger's JSON
// export.
type Transcript struct {
	Messages      []Message  `json:"messages"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Topic         string     `json:"topic,omitempty"`
	TotalMessages int        `json:"total_messages"`
	Stats         Stats      `json:"stats"`
}
