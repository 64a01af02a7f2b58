package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/duetlabs/persona-duet/internal/model"
	"github.com/duetlabs/persona-duet/pkg/metrics"
)

// DefaultCompactThreshold is the context-usage ratio at which compaction is
// advised.
const DefaultCompactThreshold = 0.8

// DefaultKeepRecent is the number of recent messages kept verbatim when
// compacting.
const DefaultKeepRecent = 10

// ShouldCompact reports whether the context budget is close enough to full to
// warrant compaction. A non-positive threshold falls back to the default.
func ShouldCompact(currentSize, maxSize int, threshold float64) bool {
	if maxSize <= 0 {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultCompactThreshold
	}
	return float64(currentSize)/float64(maxSize) >= threshold
}

// Compact builds a context string that fits a tighter budget: messages older
// than the last keepRecent are replaced by a bracketed summary prepended to
// the rendered recent tail. The ledger itself is never mutated; only the
// returned context string shrinks. On summarization failure a local summary
// of the older span is used instead.
func (a *Analyzer) Compact(ctx context.Context, msgs []model.Message, keepRecent int, pair model.PersonaPair) (string, *model.ConversationSummary, error) {
	if keepRecent <= 0 {
		keepRecent = DefaultKeepRecent
	}

	if len(msgs) <= keepRecent {
		summary := &model.ConversationSummary{
			Kind:    model.SummaryKindContextCompact,
			Content: fmt.Sprintf("No compaction needed; %d messages fit the budget.", len(msgs)),
		}
		return renderMessages(msgs), summary, nil
	}

	older := msgs[:len(msgs)-keepRecent]
	recent := msgs[len(msgs)-keepRecent:]

	summary, err := a.Summarize(ctx, older, model.SummaryKindContextCompact, pair)
	if err != nil {
		// Summarize only fails on an empty slice, which cannot happen
		// here, but degrade to a local summary over the older span anyway.
		summary = &model.ConversationSummary{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Kind:      model.SummaryKindContextCompact,
			CreatedAt: time.Now(),
		}
		a.fillLocalSummary(summary, older)
	}
	summary.CoveredEnd = len(older) - 1

	metrics.CompactionsTotal.Inc()

	var b strings.Builder
	fmt.Fprintf(&b, "[Earlier conversation summary: %s]\n", summary.Content)
	b.WriteString(renderMessages(recent))
	return b.String(), summary, nil
}

func renderMessages(msgs []model.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.SpeakerName+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
