// Package ledger implements the append-only conversation message store with
// bounded retention and a sliding context window.
package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duetlabs/persona-duet/internal/model"
	"github.com/duetlabs/persona-duet/pkg/metrics"
)

const (
	// DefaultMaxRetain bounds memory for long-running conversations.
	DefaultMaxRetain = 1000

	// DefaultContextWindowSize is the number of recent messages rendered
	// for the generation backend.
	DefaultContextWindowSize = 20
)

// Options configures a Ledger.
type Options struct {
	// MaxRetain is the maximum number of messages kept in memory. Older
	// messages are trimmed silently; the total-message counter is not
	// affected. Zero means DefaultMaxRetain.
	MaxRetain int

	// ContextWindowSize is the width of the rendered context window.
	// Zero means DefaultContextWindowSize.
	ContextWindowSize int

	// Topic is an optional free-text label for the conversation.
	Topic string
}

// Ledger is the append-only message store. All methods are safe for
// concurrent use, though during an active conversation the scheduler is the
// sole writer.
type Ledger struct {
	mu sync.RWMutex

	messages      []model.Message
	startTime     time.Time
	endTime       *time.Time
	topic         string
	totalMessages int

	maxRetain         int
	contextWindowSize int
}

// New creates a Ledger with start time set to now.
func New(opts Options) *Ledger {
	if opts.MaxRetain <= 0 {
		opts.MaxRetain = DefaultMaxRetain
	}
	if opts.ContextWindowSize <= 0 {
		opts.ContextWindowSize = DefaultContextWindowSize
	}
	return &Ledger{
		startTime:         time.Now(),
		topic:             opts.Topic,
		maxRetain:         opts.MaxRetain,
		contextWindowSize: opts.ContextWindowSize,
	}
}

// Append creates a message at the tail and returns a copy of it. Retention
// trimming removes oldest messages silently; the monotonic total counter is
// unaffected. Empty content is legal.
func (l *Ledger) Append(speakerName, content string, metadata map[string]any) model.Message {
	msg := model.Message{
		ID:          uuid.Must(uuid.NewV7()).String(),
		SpeakerName: speakerName,
		Content:     content,
		Timestamp:   time.Now(),
		Metadata:    metadata,
	}

	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.totalMessages++
	if len(l.messages) > l.maxRetain {
		l.messages = l.messages[len(l.messages)-l.maxRetain:]
	}
	retained := len(l.messages)
	l.mu.Unlock()

	metrics.MessagesTotal.WithLabelValues(speakerName).Inc()
	metrics.LedgerRetained.Set(float64(retained))

	return msg
}

// All returns an independent copy of the retained messages in append order.
func (l *Ledger) All() []model.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Last returns the most recent retained message, or false if empty.
func (l *Ledger) Last() (model.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.messages) == 0 {
		return model.Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// LastN returns the last min(n, retained) messages, oldest first. Negative
// counts are clamped to zero.
func (l *Ledger) LastN(n int) []model.Message {
	if n < 0 {
		n = 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.messages) {
		n = len(l.messages)
	}
	out := make([]model.Message, n)
	copy(out, l.messages[len(l.messages)-n:])
	return out
}

// ByPersona filters retained messages by exact speaker name, order preserved.
func (l *Ledger) ByPersona(name string) []model.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []model.Message
	for _, m := range l.messages {
		if m.SpeakerName == name {
			out = append(out, m)
		}
	}
	return out
}

// ContextWindow renders the last contextWindowSize retained messages as
// "speaker: content" strings, oldest first.
func (l *Ledger) ContextWindow() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := len(l.messages) - l.contextWindowSize
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(l.messages)-start)
	for _, m := range l.messages[start:] {
		out = append(out, m.SpeakerName+": "+m.Content)
	}
	return out
}

// ContextWindowSize returns the configured window width.
func (l *Ledger) ContextWindowSize() int {
	return l.contextWindowSize
}

// Search returns retained messages whose content or speaker name contains
// query as a substring. Matching is case-insensitive unless caseSensitive.
func (l *Ledger) Search(query string, caseSensitive bool) []model.Message {
	if !caseSensitive {
		query = strings.ToLower(query)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []model.Message
	for _, m := range l.messages {
		content, speaker := m.Content, m.SpeakerName
		if !caseSensitive {
			content = strings.ToLower(content)
			speaker = strings.ToLower(speaker)
		}
		if strings.Contains(content, query) || strings.Contains(speaker, query) {
			out = append(out, m)
		}
	}
	return out
}

// Stats computes the derived statistics block. Average length covers retained
// messages only; the total counter covers every append ever made.
func (l *Ledger) Stats() model.Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.statsLocked()
}

func (l *Ledger) statsLocked() model.Stats {
	byPersona := make(map[string]int)
	totalLen := 0
	for _, m := range l.messages {
		byPersona[m.SpeakerName]++
		totalLen += len(m.Content)
	}
	avg := 0.0
	if len(l.messages) > 0 {
		avg = float64(totalLen) / float64(len(l.messages))
	}
	return model.Stats{
		TotalMessages:        l.totalMessages,
		MessagesByPersona:    byPersona,
		AverageMessageLength: avg,
		DurationMillis:       l.durationLocked().Milliseconds(),
	}
}

// ExportJSON serializes the full transcript snapshot. A missing end time is
// reported as now without mutating stored state.
func (l *Ledger) ExportJSON() (string, error) {
	l.mu.RLock()
	end := l.endTime
	if end == nil {
		now := time.Now()
		end = &now
	}
	t := model.Transcript{
		Messages:      append([]model.Message(nil), l.messages...),
		StartTime:     l.startTime,
		EndTime:       end,
		Topic:         l.topic,
		TotalMessages: l.totalMessages,
		Stats:         l.statsLocked(),
	}
	l.mu.RUnlock()

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	return string(data), nil
}

// ExportMarkdown renders the transcript as a human-readable document.
func (l *Ledger) ExportMarkdown() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var b strings.Builder
	b.WriteString("# AI Conversation\n\n")
	if l.topic != "" {
		fmt.Fprintf(&b, "**Topic:** %s\n\n", l.topic)
	}
	fmt.Fprintf(&b, "**Started:** %s\n\n", l.startTime.Format(time.RFC1123))
	fmt.Fprintf(&b, "**Duration:** %s\n\n", FormatDuration(l.durationLocked()))
	fmt.Fprintf(&b, "**Total messages:** %d\n\n", l.totalMessages)

	stats := l.statsLocked()
	if len(stats.MessagesByPersona) > 0 {
		b.WriteString("**Messages per persona:**\n\n")
		// Stable order: first appearance in the retained transcript.
		seen := make(map[string]bool)
		for _, m := range l.messages {
			if seen[m.SpeakerName] {
				continue
			}
			seen[m.SpeakerName] = true
			fmt.Fprintf(&b, "- %s: %d\n", m.SpeakerName, stats.MessagesByPersona[m.SpeakerName])
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	for _, m := range l.messages {
		fmt.Fprintf(&b, "## %s (%s)\n\n%s\n\n", m.SpeakerName, m.Timestamp.Local().Format("15:04:05"), m.Content)
	}
	return b.String()
}

// End sets the end time to now. Repeated calls overwrite with a newer now.
func (l *Ledger) End() {
	l.mu.Lock()
	now := time.Now()
	l.endTime = &now
	l.mu.Unlock()
}

// Clear drops all retained messages, zeroes the total counter, resets the
// start time and unsets the end time.
func (l *Ledger) Clear() {
	l.mu.Lock()
	l.messages = nil
	l.totalMessages = 0
	l.startTime = time.Now()
	l.endTime = nil
	l.mu.Unlock()
	metrics.LedgerRetained.Set(0)
}

// SetTopic overwrites the current topic label.
func (l *Ledger) SetTopic(topic string) {
	l.mu.Lock()
	l.topic = topic
	l.mu.Unlock()
}

// Topic returns the current topic label.
func (l *Ledger) Topic() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.topic
}

// StartTime returns the ledger construction (or last clear) instant.
func (l *Ledger) StartTime() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.startTime
}

// Duration returns elapsed time since start, frozen once End has been called.
func (l *Ledger) Duration() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.durationLocked()
}

func (l *Ledger) durationLocked() time.Duration {
	if l.endTime != nil {
		return l.endTime.Sub(l.startTime)
	}
	return time.Since(l.startTime)
}

// FormatDuration renders a duration as "1h 1m 1s", omitting zero-valued
// leading units. Sub-second durations render as "0s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 || h > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	parts = append(parts, fmt.Sprintf("%ds", s))
	return strings.Join(parts, " ")
}
