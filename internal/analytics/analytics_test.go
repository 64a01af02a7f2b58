package analytics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/duetlabs/persona-duet/internal/llm"
	"github.com/duetlabs/persona-duet/internal/model"
)

// stubBackend returns a canned response or error for every call.
type stubBackend struct {
	text string
	err  error
}

func (s *stubBackend) CheckConnectivity(ctx context.Context) error { return nil }
func (s *stubBackend) ListModels(ctx context.Context) ([]string, error) {
	return []string{"stub"}, nil
}
func (s *stubBackend) Name() string { return "stub" }
func (s *stubBackend) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.GenerateResponse{Text: s.text, Model: "stub", GeneratedAt: time.Now()}, nil
}

func testPair() model.PersonaPair {
	return model.PersonaPair{
		Primary:   model.PersonaConfig{DisplayName: "Ada"},
		Secondary: model.PersonaConfig{DisplayName: "Bo"},
	}
}

func makeMessages(contents ...string) []model.Message {
	base := time.Now()
	msgs := make([]model.Message, len(contents))
	for i, c := range contents {
		speaker := "Ada"
		if i%2 == 1 {
			speaker = "Bo"
		}
		msgs[i] = model.Message{
			SpeakerName: speaker,
			Content:     c,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}
	}
	return msgs
}

func TestSummarizeEmptySlice(t *testing.T) {
	a := NewAnalyzer(&stubBackend{}, "stub", nil)
	if _, err := a.Summarize(context.Background(), nil, model.SummaryKindFinal, testPair()); !errors.Is(err, ErrEmptySlice) {
		t.Fatalf("err = %v, want ErrEmptySlice", err)
	}
}

func TestSummarizeUsesBackendJSON(t *testing.T) {
	backend := &stubBackend{
		text: `Here you go: {"summary": "They debated tea.", "key_topics": ["tea"], "contributions": {"Ada": "asked questions"}}`,
	}
	a := NewAnalyzer(backend, "stub", nil)

	sum, err := a.Summarize(context.Background(), makeMessages("tea?", "yes tea"), model.SummaryKindPeriodic, testPair())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Content != "They debated tea." {
		t.Fatalf("Content = %q, want backend summary", sum.Content)
	}
	if len(sum.KeyTopics) != 1 || sum.KeyTopics[0] != "tea" {
		t.Fatalf("KeyTopics = %v", sum.KeyTopics)
	}
	if sum.Contributions["Ada"] != "asked questions" {
		t.Fatalf("Contributions = %v", sum.Contributions)
	}
	if sum.Kind != model.SummaryKindPeriodic {
		t.Fatalf("Kind = %q", sum.Kind)
	}
}

func TestSummarizeFallsBackOnBackendError(t *testing.T) {
	a := NewAnalyzer(&stubBackend{err: errors.New("boom")}, "stub", nil)

	msgs := makeMessages("quantum physics is fascinating", "quantum entanglement especially")
	sum, err := a.Summarize(context.Background(), msgs, model.SummaryKindFinal, testPair())
	if err != nil {
		t.Fatalf("fallback must not fail: %v", err)
	}
	if !strings.Contains(sum.Content, "Ada and Bo") {
		t.Fatalf("local summary missing participants: %q", sum.Content)
	}
	if len(sum.KeyTopics) == 0 || sum.KeyTopics[0] != "quantum" {
		t.Fatalf("KeyTopics = %v, want quantum first", sum.KeyTopics)
	}
}

func TestSummarizeFallsBackOnMalformedJSON(t *testing.T) {
	a := NewAnalyzer(&stubBackend{text: "not json at all"}, "stub", nil)

	sum, err := a.Summarize(context.Background(), makeMessages("hello there friend"), model.SummaryKindFinal, testPair())
	if err != nil {
		t.Fatalf("fallback must not fail: %v", err)
	}
	if sum.Content == "" {
		t.Fatal("fallback produced empty content")
	}
}

func TestTopKeywordsFrequencyThenFirstOccurrence(t *testing.T) {
	got := topKeywords([]string{
		"galaxy galaxy nebula comet",
		"nebula galaxy comet asteroid",
	}, 3)
	want := []string{"galaxy", "nebula", "comet"}
	if len(got) != 3 {
		t.Fatalf("topKeywords = %v, want 3 entries", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("topKeywords = %v, want %v", got, want)
		}
	}
}

func TestTokenizeFiltersShortAndStopWords(t *testing.T) {
	got := tokenize("This is about the ocean, and THE ocean-currents!")
	for _, tok := range got {
		if len(tok) <= 3 {
			t.Fatalf("token %q too short", tok)
		}
		if stopWords[tok] {
			t.Fatalf("stop word %q leaked through", tok)
		}
	}
	found := false
	for _, tok := range got {
		if tok == "ocean" {
			found = true
		}
	}
	if !found {
		t.Fatalf("tokenize(%v) missing 'ocean'", got)
	}
}

func TestTokenizeCountsCharactersNotBytes(t *testing.T) {
	// 日本語 is three characters (nine bytes) and must be filtered like any
	// other three-character word; こんにちは is five characters and kept.
	got := tokenize("日本語 こんにちは")
	if len(got) != 1 || got[0] != "こんにちは" {
		t.Fatalf("tokenize = %v, want [こんにちは]", got)
	}
}

func TestStatisticsEmptySlice(t *testing.T) {
	stats := Statistics(nil, time.Now(), nil)
	if stats.TotalMessages != 0 || len(stats.MessagesByPersona) != 0 || stats.AverageLength != 0 {
		t.Fatalf("empty slice stats not zero-valued: %+v", stats)
	}
}

func TestStatisticsBasics(t *testing.T) {
	msgs := makeMessages("aaaa", "bbbbbbbb", "cccc")
	start := msgs[0].Timestamp
	end := msgs[len(msgs)-1].Timestamp
	stats := Statistics(msgs, start, &end)

	if stats.TotalMessages != 3 {
		t.Fatalf("TotalMessages = %d", stats.TotalMessages)
	}
	if stats.MessagesByPersona["Ada"] != 2 || stats.MessagesByPersona["Bo"] != 1 {
		t.Fatalf("MessagesByPersona = %v", stats.MessagesByPersona)
	}
	wantAvg := float64(4+8+4) / 3
	if stats.AverageLength != wantAvg {
		t.Fatalf("AverageLength = %v, want %v", stats.AverageLength, wantAvg)
	}
	if stats.ResponseTimes.Average != time.Second || stats.ResponseTimes.Min != time.Second || stats.ResponseTimes.Max != time.Second {
		t.Fatalf("ResponseTimes = %+v, want 1s across the board", stats.ResponseTimes)
	}
	if stats.Duration != 2*time.Second {
		t.Fatalf("Duration = %v, want 2s", stats.Duration)
	}
}

func TestStatisticsActivityInsight(t *testing.T) {
	msgs := []model.Message{
		{SpeakerName: "Ada", Content: "one", Timestamp: time.Now()},
		{SpeakerName: "Ada", Content: "two", Timestamp: time.Now()},
		{SpeakerName: "Ada", Content: "three", Timestamp: time.Now()},
		{SpeakerName: "Ada", Content: "four", Timestamp: time.Now()},
		{SpeakerName: "Bo", Content: "hmm", Timestamp: time.Now()},
	}
	stats := Statistics(msgs, time.Now(), nil)
	found := false
	for _, in := range stats.Insights {
		if strings.Contains(in, "Ada was notably more active") {
			found = true
		}
	}
	if !found {
		t.Fatalf("Insights = %v, want activity imbalance note", stats.Insights)
	}
}

func TestCountTopicChanges(t *testing.T) {
	// Two windows of four about entirely different subjects.
	texts := []string{
		"galaxy nebula comet orbit", "galaxy nebula stars orbit",
		"nebula comet galaxy stars", "orbit stars comet nebula",
		"sourdough yeast flour crumb", "sourdough flour baking crust",
		"yeast crumb baking flour", "crust sourdough baking yeast",
	}
	if got := countTopicChanges(texts); got != 1 {
		t.Fatalf("countTopicChanges = %d, want 1", got)
	}

	// Too few messages for two windows.
	if got := countTopicChanges(texts[:5]); got != 0 {
		t.Fatalf("countTopicChanges(short) = %d, want 0", got)
	}
}

func TestShouldCompact(t *testing.T) {
	cases := []struct {
		current, max int
		threshold    float64
		want         bool
	}{
		{8, 10, 0.8, true},
		{7, 10, 0.8, false},
		{10, 10, 0.8, true},
		{0, 10, 0.8, false},
		{5, 0, 0.8, false},
		{9, 10, 0, true}, // zero threshold falls back to default
	}
	for _, tc := range cases {
		got := ShouldCompact(tc.current, tc.max, tc.threshold)
		if got != tc.want {
			t.Fatalf("ShouldCompact(%d, %d, %v) = %v, want %v", tc.current, tc.max, tc.threshold, got, tc.want)
		}
	}
}

func TestCompactShortSlicePassesThrough(t *testing.T) {
	a := NewAnalyzer(&stubBackend{}, "stub", nil)
	msgs := makeMessages("one", "two")

	text, sum, err := a.Compact(context.Background(), msgs, 5, testPair())
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if text != "Ada: one\nBo: two" {
		t.Fatalf("text = %q", text)
	}
	if sum == nil || sum.Kind != model.SummaryKindContextCompact {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestCompactSummarizesOlderMessages(t *testing.T) {
	backend := &stubBackend{text: `{"summary": "Early chatter about space.", "key_topics": ["space"], "contributions": {}}`}
	a := NewAnalyzer(backend, "stub", nil)
	msgs := makeMessages("m1", "m2", "m3", "m4", "m5")

	text, sum, err := a.Compact(context.Background(), msgs, 2, testPair())
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if !strings.HasPrefix(text, "[Earlier conversation summary: Early chatter about space.]") {
		t.Fatalf("text missing bracketed summary prefix: %q", text)
	}
	if !strings.Contains(text, "m4") || !strings.Contains(text, "m5") {
		t.Fatalf("text missing recent tail: %q", text)
	}
	if strings.Contains(text, "m1\n") {
		t.Fatalf("older message rendered verbatim: %q", text)
	}
	if sum.CoveredEnd != 2 {
		t.Fatalf("CoveredEnd = %d, want 2", sum.CoveredEnd)
	}
}

func TestCompactFallsBackToLocalSummaryOnBackendError(t *testing.T) {
	a := NewAnalyzer(&stubBackend{err: errors.New("down")}, "stub", nil)
	msgs := makeMessages("m1", "m2", "m3", "m4", "m5")

	text, sum, err := a.Compact(context.Background(), msgs, 2, testPair())
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if sum == nil {
		t.Fatal("expected a best-effort local summary")
	}
	if sum.Kind != model.SummaryKindContextCompact {
		t.Fatalf("summary kind = %q, want %q", sum.Kind, model.SummaryKindContextCompact)
	}
	if sum.Content == "" {
		t.Fatal("fallback summary has no content")
	}
	if !strings.Contains(text, "m4") || !strings.Contains(text, "m5") {
		t.Fatalf("recent tail missing: %q", text)
	}
}
