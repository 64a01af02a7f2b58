package model

import (
	"time"
)

// SummaryKind classifies why a summary was produced.
type SummaryKind string

const (
	SummaryKindPeriodic       SummaryKind = "periodic"
	SummaryKindContextCompact SummaryKind = "context_compact"
	SummaryKindFinal          SummaryKind = "final"
)

// ConversationSummary is a produced summary artifact.
type ConversationSummary struct {
	ID      string      `json:"id"`
	Kind    SummaryKind `json:"kind"`
	Content string      `json:"content"`

	// CoveredStart and CoveredEnd are indices into the summarized slice.
	CoveredStart int `json:"covered_start"`
	CoveredEnd   int `json:"covered_end"`

	CreatedAt time.Time `json:"created_at"`

	// KeyTopics is ordered most-significant-first.
	KeyTopics []string `json:"key_topics,omitempty"`

	// Contributions maps speaker name to a short description of their part.
	Contributions map[string]string `json:"contributions,omitempty"`
}

// ResponseTimeStats describes gaps between consecutive message timestamps.
// Non-positive gaps are ignored.
type ResponseTimeStats struct {
	Average time.Duration `json:"average"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
}

// ConversationStatistics is the aggregate analysis over a message slice.
type ConversationStatistics struct {
	TotalMessages     int               `json:"total_messages"`
	MessagesByPersona map[string]int    `json:"messages_by_persona"`
	AverageLength     float64           `json:"average_length"`
	Duration          time.Duration     `json:"duration"`
	ResponseTimes     ResponseTimeStats `json:"response_times"`
	TopicProgression  []string          `json:"topic_progression,omitempty"`
	Insights          []string          `json:"insights,omitempty"`
	TopicChanges      int               `json:"topic_changes"`
}
