// Package scheduler drives the alternating-turn conversation loop between
// two personas.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duetlabs/persona-duet/internal/analytics"
	"github.com/duetlabs/persona-duet/internal/ledger"
	"github.com/duetlabs/persona-duet/internal/llm"
	"github.com/duetlabs/persona-duet/internal/model"
	"github.com/duetlabs/persona-duet/pkg/logger"
	"github.com/duetlabs/persona-duet/pkg/metrics"
)

// promptContextEntries caps how many context-window entries are rendered into
// the per-turn prompt text.
const promptContextEntries = 10

// eventBufferSize bounds the event channel; the loop drops events rather
// than blocking when no consumer drains them.
const eventBufferSize = 64

// GenerationError wraps a failed turn. Non-critical failures are reported
// and the loop proceeds to the next turn; critical ones end the conversation.
type GenerationError struct {
	Speaker  string
	Critical bool
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for %s: %v", e.Speaker, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Options configures one conversation run.
type Options struct {
	Topic    string
	MaxTurns int
	// TurnDelay is the inter-turn pacing suspension.
	TurnDelay time.Duration
	Model     string

	// CompactEnabled switches the prompt context to the compaction policy
	// when the context window approaches its budget.
	CompactEnabled   bool
	CompactThreshold float64
	KeepRecent       int
}

// State is a read-only snapshot of the scheduler.
type State struct {
	Active         bool
	TurnIndex      int
	MaxTurns       int
	CurrentSpeaker string
	ContextWindow  []string
}

// Scheduler owns the ledger exclusively during an active conversation. The
// loop is logically sequential: one generation call and one ledger mutation
// at a time.
type Scheduler struct {
	ledger   *ledger.Ledger
	backend  llm.Client
	analyzer *analytics.Analyzer
	pair     model.PersonaPair
	log      *logger.Logger

	events chan model.ConversationEvent

	stopRequested atomic.Bool
	paused        atomic.Bool

	mu        sync.Mutex
	active    bool
	ended     bool
	turnIndex int
	opts      Options
	snapshot  []string
}

// New creates a scheduler for the given pair.
func New(led *ledger.Ledger, backend llm.Client, analyzer *analytics.Analyzer, pair model.PersonaPair, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		ledger:   led,
		backend:  backend,
		analyzer: analyzer,
		pair:     pair,
		log:      log,
		events:   make(chan model.ConversationEvent, eventBufferSize),
	}
}

// Events returns the lifecycle event stream. The channel is closed after the
// ended event once the conversation finishes.
func (s *Scheduler) Events() <-chan model.ConversationEvent {
	return s.events
}

// State returns an independent snapshot of the scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Active:         s.active,
		TurnIndex:      s.turnIndex,
		MaxTurns:       s.opts.MaxTurns,
		CurrentSpeaker: s.pair.Speaker(s.turnIndex).DisplayName,
		ContextWindow:  append([]string(nil), s.snapshot...),
	}
}

// Stop requests a cooperative stop. A turn already in flight completes before
// the request is observed at the top of the next iteration.
func (s *Scheduler) Stop() {
	s.stopRequested.Store(true)
}

// Pause is an accepted control signal with no effect on the loop.
func (s *Scheduler) Pause() {
	s.paused.Store(true)
	s.log.Info("pause requested (no-op)")
}

// Resume is an accepted control signal with no effect on the loop.
func (s *Scheduler) Resume() {
	s.paused.Store(false)
	s.log.Info("resume requested (no-op)")
}

// Start runs the conversation to completion. It verifies backend
// connectivity first; on failure the scheduler stays idle and the error wraps
// llm.ErrBackendUnavailable. Start blocks until the conversation ends.
func (s *Scheduler) Start(ctx context.Context, initialPrompt string, opts Options) error {
	if err := s.backend.CheckConnectivity(ctx); err != nil {
		return fmt.Errorf("connectivity check: %w", err)
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return fmt.Errorf("conversation already active")
	}
	if s.ended {
		s.mu.Unlock()
		return fmt.Errorf("conversation already ended")
	}
	s.active = true
	s.turnIndex = 0
	s.opts = opts
	s.mu.Unlock()

	if opts.Topic != "" {
		s.ledger.SetTopic(opts.Topic)
	}

	metrics.ConversationsTotal.Inc()
	s.log.Info("conversation started",
		zap.String("primary", s.pair.Primary.DisplayName),
		zap.String("secondary", s.pair.Secondary.DisplayName),
		zap.Int("max_turns", opts.MaxTurns),
	)

	s.emit(model.ConversationEvent{Type: model.EventTypeStarted, Metadata: map[string]any{
		"topic":     opts.Topic,
		"max_turns": opts.MaxTurns,
	}})

	initial := s.ledger.Append(model.SpeakerUser, initialPrompt, nil)
	s.emit(model.ConversationEvent{Type: model.EventTypeMessage, Speaker: initial.SpeakerName, Message: &initial})

	s.run(ctx)
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	for {
		if s.shouldStop(ctx) {
			break
		}
		if critical := s.takeTurn(ctx); critical {
			break
		}
		if s.shouldStop(ctx) {
			break
		}
		s.pace(ctx)
	}
	s.end()
}

func (s *Scheduler) shouldStop(ctx context.Context) bool {
	if s.stopRequested.Load() || ctx.Err() != nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.MaxTurns > 0 && s.turnIndex >= s.opts.MaxTurns
}

// takeTurn executes one loop iteration. Returns true only for critical
// failures that must end the conversation.
func (s *Scheduler) takeTurn(ctx context.Context) bool {
	s.mu.Lock()
	turn := s.turnIndex
	opts := s.opts
	s.mu.Unlock()

	speaker := s.pair.Speaker(turn)
	s.emit(model.ConversationEvent{Type: model.EventTypeThinking, Speaker: speaker.DisplayName})

	window := s.ledger.ContextWindow()
	prompt, err := s.buildPrompt(ctx, speaker, window, opts)
	if err != nil {
		// Prompt building only fails when compaction is wired to a
		// broken analyzer; fall back to the raw window.
		prompt = s.rawPrompt(speaker, window, opts.Topic)
	}

	start := time.Now()
	resp, err := s.backend.Generate(ctx, &llm.GenerateRequest{
		Prompt:            prompt,
		SystemInstruction: speaker.SystemPrompt(),
		Context:           window,
		Model:             opts.Model,
	})
	if err != nil {
		genErr := &GenerationError{
			Speaker:  speaker.DisplayName,
			Critical: ctx.Err() != nil,
			Err:      err,
		}
		metrics.TurnsTotal.WithLabelValues(speaker.DisplayName, "error").Inc()
		metrics.RecordGeneration(opts.Model, "error", time.Since(start).Seconds(), 0)
		s.log.Warn("turn generation failed",
			zap.String("speaker", speaker.DisplayName),
			zap.Bool("critical", genErr.Critical),
			zap.Error(err),
		)
		s.emit(model.ConversationEvent{
			Type:     model.EventTypeError,
			Speaker:  speaker.DisplayName,
			Reason:   genErr.Error(),
			Critical: genErr.Critical,
		})
		s.advance(turn)
		return genErr.Critical
	}

	msg := s.ledger.Append(speaker.DisplayName, strings.TrimSpace(resp.Text), map[string]any{
		"turn_index": turn,
		"model":      resp.Model,
	})
	metrics.TurnsTotal.WithLabelValues(speaker.DisplayName, "ok").Inc()
	metrics.RecordGeneration(resp.Model, "ok", time.Since(start).Seconds(), resp.TokensUsed)
	s.emit(model.ConversationEvent{Type: model.EventTypeMessage, Speaker: speaker.DisplayName, Message: &msg})

	s.advance(turn)
	return false
}

// advance increments the turn counter and refreshes the cached context
// snapshot. Speaker alternation is derived from the counter.
func (s *Scheduler) advance(turn int) {
	window := s.ledger.ContextWindow()
	s.mu.Lock()
	s.turnIndex = turn + 1
	s.snapshot = window
	s.mu.Unlock()
}

// buildPrompt assembles the user-facing prompt for the current turn:
// optional topic line, the recent context, and an in-character instruction.
func (s *Scheduler) buildPrompt(ctx context.Context, speaker model.PersonaConfig, window []string, opts Options) (string, error) {
	if opts.CompactEnabled && s.analyzer != nil {
		retained := s.ledger.All()
		if analytics.ShouldCompact(len(retained), s.ledger.ContextWindowSize(), opts.CompactThreshold) {
			compacted, _, err := s.analyzer.Compact(ctx, retained, opts.KeepRecent, s.pair)
			if err != nil {
				return "", err
			}
			return s.assemblePrompt(speaker, compacted, opts.Topic), nil
		}
	}
	return s.rawPrompt(speaker, window, opts.Topic), nil
}

func (s *Scheduler) rawPrompt(speaker model.PersonaConfig, window []string, topic string) string {
	if len(window) > promptContextEntries {
		window = window[len(window)-promptContextEntries:]
	}
	return s.assemblePrompt(speaker, strings.Join(window, "\n"), topic)
}

func (s *Scheduler) assemblePrompt(speaker model.PersonaConfig, contextText, topic string) string {
	var b strings.Builder
	if topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n\n", topic)
	}
	if contextText != "" {
		b.WriteString(contextText)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Respond to the conversation above in character as %s. Keep it natural and conversational.", speaker.DisplayName)
	return b.String()
}

// pace suspends between turns; cancellation cuts the wait short.
func (s *Scheduler) pace(ctx context.Context) {
	if s.opts.TurnDelay <= 0 {
		return
	}
	select {
	case <-time.After(s.opts.TurnDelay):
	case <-ctx.Done():
	}
}

// end transitions to Ended: deactivate, close the ledger, emit the final
// event and close the stream.
func (s *Scheduler) end() {
	s.mu.Lock()
	s.active = false
	s.ended = true
	s.mu.Unlock()

	s.ledger.End()
	stats := s.ledger.Stats()

	s.log.Info("conversation ended",
		zap.Int("total_messages", stats.TotalMessages),
		zap.Int64("duration_ms", stats.DurationMillis),
	)

	s.emit(model.ConversationEvent{Type: model.EventTypeEnded, Metadata: map[string]any{
		"total_messages": stats.TotalMessages,
		"duration_ms":    stats.DurationMillis,
	}})
	close(s.events)
}

// emit pushes an event without ever blocking the loop.
func (s *Scheduler) emit(ev model.ConversationEvent) {
	ev.ID = uuid.Must(uuid.NewV7()).String()
	ev.CreatedAt = time.Now()
	select {
	case s.events <- ev:
	default:
		s.log.Debug("event dropped, no consumer", zap.String("type", string(ev.Type)))
	}
}
