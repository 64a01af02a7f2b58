package analytics

import (
	"fmt"
	"time"

	"github.com/duetlabs/persona-duet/internal/model"
)

// topicWindowSize is the width of the fixed message windows compared by the
// topic-change heuristic.
const topicWindowSize = 4

// topicChangeThreshold is the keyword-overlap ratio below which successive
// windows count as a topic change.
const topicChangeThreshold = 0.3

// Statistics computes aggregate conversation statistics over msgs. An empty
// slice yields a zero-valued structure, never an error. A nil endTime means
// now.
func Statistics(msgs []model.Message, startTime time.Time, endTime *time.Time) model.ConversationStatistics {
	stats := model.ConversationStatistics{
		MessagesByPersona: make(map[string]int),
	}
	if len(msgs) == 0 {
		return stats
	}

	end := time.Now()
	if endTime != nil {
		end = *endTime
	}
	stats.Duration = end.Sub(startTime)
	stats.TotalMessages = len(msgs)

	totalLen := 0
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		stats.MessagesByPersona[m.SpeakerName]++
		totalLen += len(m.Content)
		texts = append(texts, m.Content)
	}
	stats.AverageLength = float64(totalLen) / float64(len(msgs))

	stats.ResponseTimes = responseTimes(msgs)
	stats.TopicProgression = topKeywords(texts, 5)
	stats.TopicChanges = countTopicChanges(texts)
	stats.Insights = insights(stats)

	return stats
}

// responseTimes measures gaps between consecutive message timestamps,
// ignoring non-positive gaps.
func responseTimes(msgs []model.Message) model.ResponseTimeStats {
	var rt model.ResponseTimeStats
	var total time.Duration
	n := 0
	for i := 1; i < len(msgs); i++ {
		gap := msgs[i].Timestamp.Sub(msgs[i-1].Timestamp)
		if gap <= 0 {
			continue
		}
		total += gap
		if n == 0 || gap < rt.Min {
			rt.Min = gap
		}
		if gap > rt.Max {
			rt.Max = gap
		}
		n++
	}
	if n > 0 {
		rt.Average = total / time.Duration(n)
	}
	return rt
}

// countTopicChanges compares keyword sets of successive fixed-size windows.
func countTopicChanges(texts []string) int {
	if len(texts) < 2*topicWindowSize {
		return 0
	}
	changes := 0
	prev := keywordSet(texts[:topicWindowSize])
	for start := topicWindowSize; start+topicWindowSize <= len(texts); start += topicWindowSize {
		cur := keywordSet(texts[start : start+topicWindowSize])
		if overlapRatio(prev, cur) < topicChangeThreshold {
			changes++
		}
		prev = cur
	}
	return changes
}

// insights derives qualitative observations from the numeric stats.
func insights(stats model.ConversationStatistics) []string {
	var out []string

	if len(stats.MessagesByPersona) == 2 {
		names := make([]string, 0, 2)
		for name := range stats.MessagesByPersona {
			names = append(names, name)
		}
		a, b := names[0], names[1]
		ca, cb := stats.MessagesByPersona[a], stats.MessagesByPersona[b]
		if cb > ca {
			a, b = b, a
			ca, cb = cb, ca
		}
		if cb > 0 && float64(ca) > 1.5*float64(cb) {
			out = append(out, fmt.Sprintf("%s was notably more active than %s (%d vs %d messages)", a, b, ca, cb))
		}
	}

	if stats.AverageLength > 500 {
		out = append(out, "responses ran unusually long")
	} else if stats.AverageLength > 0 && stats.AverageLength < 20 {
		out = append(out, "responses were unusually short")
	}

	return out
}
