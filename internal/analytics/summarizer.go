package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duetlabs/persona-duet/internal/llm"
	"github.com/duetlabs/persona-duet/internal/model"
	"github.com/duetlabs/persona-duet/pkg/logger"
)

// ErrEmptySlice is returned when summarization is requested on no messages.
var ErrEmptySlice = errors.New("cannot summarize an empty message slice")

// Analyzer produces summaries and statistics. Summaries prefer the generation
// backend and always degrade to a deterministic local form on failure.
type Analyzer struct {
	backend llm.Client
	log     *logger.Logger
	modelID string
}

// NewAnalyzer creates an Analyzer. A nil backend forces local summaries.
func NewAnalyzer(backend llm.Client, modelID string, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Analyzer{backend: backend, log: log, modelID: modelID}
}

// summaryPayload is the JSON shape the backend is asked to return.
type summaryPayload struct {
	Summary       string            `json:"summary"`
	KeyTopics     []string          `json:"key_topics"`
	Contributions map[string]string `json:"contributions"`
}

// Summarize produces a summary of msgs. The backend is asked for a
// JSON-shaped structured summary; on backend or parse failure, a
// deterministic local summary is produced instead. Only an empty slice is an
// error.
func (a *Analyzer) Summarize(ctx context.Context, msgs []model.Message, kind model.SummaryKind, pair model.PersonaPair) (*model.ConversationSummary, error) {
	if len(msgs) == 0 {
		return nil, ErrEmptySlice
	}

	summary := &model.ConversationSummary{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Kind:         kind,
		CoveredStart: 0,
		CoveredEnd:   len(msgs) - 1,
		CreatedAt:    time.Now(),
	}

	if a.backend != nil {
		payload, err := a.requestSummary(ctx, msgs, pair)
		if err == nil {
			summary.Content = payload.Summary
			summary.KeyTopics = payload.KeyTopics
			summary.Contributions = payload.Contributions
			return summary, nil
		}
		a.log.Warn("backend summary failed, using local fallback", zap.Error(err))
	}

	a.fillLocalSummary(summary, msgs)
	return summary, nil
}

func (a *Analyzer) requestSummary(ctx context.Context, msgs []model.Message, pair model.PersonaPair) (*summaryPayload, error) {
	var transcript strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&transcript, "%s: %s\n", m.SpeakerName, m.Content)
	}

	prompt := fmt.Sprintf(
		"Summarize this conversation between %s and %s. Respond with a JSON object "+
			`{"summary": "...", "key_topics": ["..."], "contributions": {"name": "..."}} `+
			"and nothing else.\n\n%s",
		pair.Primary.DisplayName, pair.Secondary.DisplayName, transcript.String(),
	)

	resp, err := a.backend.Generate(ctx, &llm.GenerateRequest{
		Prompt: prompt,
		Model:  a.modelID,
	})
	if err != nil {
		return nil, err
	}

	payload, err := parseSummaryJSON(resp.Text)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// parseSummaryJSON extracts the first JSON object from free-form backend
// output. Backends cannot be trusted to return bare JSON.
func parseSummaryJSON(text string) (*summaryPayload, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in backend output")
	}
	var payload summaryPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("parse summary JSON: %w", err)
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return nil, fmt.Errorf("backend summary is empty")
	}
	return &payload, nil
}

// fillLocalSummary writes the deterministic fallback summary. Never fails.
func (a *Analyzer) fillLocalSummary(summary *model.ConversationSummary, msgs []model.Message) {
	participants := make([]string, 0, 2)
	seen := make(map[string]bool)
	counts := make(map[string]int)
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if !seen[m.SpeakerName] {
			seen[m.SpeakerName] = true
			participants = append(participants, m.SpeakerName)
		}
		counts[m.SpeakerName]++
		texts = append(texts, m.Content)
	}

	topics := topKeywords(texts, 5)
	summary.KeyTopics = topics
	summary.Content = fmt.Sprintf(
		"Conversation between %s covering %d messages. Main topics: %s.",
		strings.Join(participants, " and "), len(msgs), strings.Join(topics, ", "),
	)

	contributions := make(map[string]string, len(participants))
	for _, name := range participants {
		contributions[name] = fmt.Sprintf("contributed %d messages", counts[name])
	}
	summary.Contributions = contributions
}
