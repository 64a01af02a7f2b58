package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/duetlabs/persona-duet/internal/analytics"
	"github.com/duetlabs/persona-duet/internal/ledger"
	"github.com/duetlabs/persona-duet/internal/llm"
	"github.com/duetlabs/persona-duet/internal/model"
)

// stubBackend is a deterministic llm.Client for loop tests.
type stubBackend struct {
	connectErr  error
	generateErr error
	onGenerate  func(call int)
	calls       int
}

func (s *stubBackend) CheckConnectivity(ctx context.Context) error { return s.connectErr }
func (s *stubBackend) ListModels(ctx context.Context) ([]string, error) {
	return []string{"stub-model"}, nil
}
func (s *stubBackend) Name() string { return "stub" }
func (s *stubBackend) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	s.calls++
	if s.onGenerate != nil {
		s.onGenerate(s.calls)
	}
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	return &llm.GenerateResponse{
		Text:        fmt.Sprintf("reply %d", s.calls),
		Model:       "stub-model",
		GeneratedAt: time.Now(),
	}, nil
}

func testPair() model.PersonaPair {
	return model.PersonaPair{
		Primary: model.PersonaConfig{
			DisplayName: "Ada", Personality: "curious", SpeakingStyle: "direct", Interests: []string{"testing"},
		},
		Secondary: model.PersonaConfig{
			DisplayName: "Bo", Personality: "calm", SpeakingStyle: "brief", Interests: []string{"testing"},
		},
	}
}

func drain(t *testing.T, s *Scheduler) []model.ConversationEvent {
	t.Helper()
	var events []model.ConversationEvent
	for ev := range s.Events() {
		events = append(events, ev)
	}
	return events
}

func countEvents(events []model.ConversationEvent, typ model.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestStartFailsWhenBackendUnreachable(t *testing.T) {
	backend := &stubBackend{connectErr: llm.ErrBackendUnavailable}
	led := ledger.New(ledger.Options{})
	s := New(led, backend, nil, testPair(), nil)

	err := s.Start(context.Background(), "hello", Options{MaxTurns: 2})
	if !errors.Is(err, llm.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
	if s.State().Active {
		t.Fatal("scheduler entered Active despite failed connectivity check")
	}
	if got := len(led.All()); got != 0 {
		t.Fatalf("ledger has %d messages, want 0", got)
	}
}

func TestMaxTurnsHaltsConversation(t *testing.T) {
	backend := &stubBackend{}
	led := ledger.New(ledger.Options{})
	s := New(led, backend, nil, testPair(), nil)

	if err := s.Start(context.Background(), "kick off", Options{MaxTurns: 3}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := drain(t, s)

	if backend.calls != 3 {
		t.Fatalf("backend calls = %d, want 3", backend.calls)
	}
	msgs := led.All()
	if len(msgs) != 4 {
		t.Fatalf("ledger messages = %d, want 1 initial + 3 turns", len(msgs))
	}
	if msgs[0].SpeakerName != model.SpeakerUser || msgs[0].Content != "kick off" {
		t.Fatalf("initial message = %+v", msgs[0])
	}

	if n := countEvents(events, model.EventTypeEnded); n != 1 {
		t.Fatalf("ended events = %d, want exactly 1", n)
	}
	var ended model.ConversationEvent
	for _, ev := range events {
		if ev.Type == model.EventTypeEnded {
			ended = ev
		}
	}
	if total, _ := ended.Metadata["total_messages"].(int); total != 4 {
		t.Fatalf("ended total_messages = %v, want 4", ended.Metadata["total_messages"])
	}
	if led.Duration() <= 0 {
		t.Fatal("ledger not ended")
	}
	if s.State().Active {
		t.Fatal("scheduler still active after maxTurns")
	}
}

func TestStartRejectedAfterConversationEnded(t *testing.T) {
	backend := &stubBackend{}
	led := ledger.New(ledger.Options{})
	s := New(led, backend, nil, testPair(), nil)

	if err := s.Start(context.Background(), "go", Options{MaxTurns: 1}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(t, s)

	err := s.Start(context.Background(), "again", Options{MaxTurns: 1})
	if err == nil {
		t.Fatal("second Start on an ended scheduler succeeded")
	}
	if !strings.Contains(err.Error(), "already ended") {
		t.Fatalf("err = %v, want an already-ended rejection", err)
	}
	if got := len(led.All()); got != 2 {
		t.Fatalf("ledger messages = %d after rejected restart, want 2", got)
	}
}

func TestTurnsStrictlyAlternateStartingWithPrimary(t *testing.T) {
	backend := &stubBackend{}
	led := ledger.New(ledger.Options{})
	s := New(led, backend, nil, testPair(), nil)

	if err := s.Start(context.Background(), "go", Options{MaxTurns: 4}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(t, s)

	msgs := led.All()
	want := []string{model.SpeakerUser, "Ada", "Bo", "Ada", "Bo"}
	if len(msgs) != len(want) {
		t.Fatalf("messages = %d, want %d", len(msgs), len(want))
	}
	for i := range want {
		if msgs[i].SpeakerName != want[i] {
			t.Fatalf("msgs[%d].SpeakerName = %q, want %q", i, msgs[i].SpeakerName, want[i])
		}
	}

	// Turn metadata carries the turn index and model.
	if idx, _ := msgs[1].Metadata["turn_index"].(int); idx != 0 {
		t.Fatalf("first turn metadata = %v, want turn_index 0", msgs[1].Metadata)
	}
	if m, _ := msgs[1].Metadata["model"].(string); m != "stub-model" {
		t.Fatalf("model metadata = %v", msgs[1].Metadata)
	}
}

func TestFailingBackendEmitsErrorPerAttemptWithoutAppending(t *testing.T) {
	backend := &stubBackend{generateErr: &llm.BackendError{Message: "boom"}}
	led := ledger.New(ledger.Options{})
	s := New(led, backend, nil, testPair(), nil)

	if err := s.Start(context.Background(), "go", Options{MaxTurns: 3}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := drain(t, s)

	if backend.calls != 3 {
		t.Fatalf("attempts = %d, want 3", backend.calls)
	}
	if got := len(led.All()); got != 1 {
		t.Fatalf("ledger messages = %d, want only the initial prompt", got)
	}
	if n := countEvents(events, model.EventTypeError); n != 3 {
		t.Fatalf("error events = %d, want one per failed attempt", n)
	}
	if n := countEvents(events, model.EventTypeEnded); n != 1 {
		t.Fatalf("ended events = %d, want 1", n)
	}
}

func TestStopIsCooperative(t *testing.T) {
	backend := &stubBackend{}
	led := ledger.New(ledger.Options{})
	s := New(led, backend, nil, testPair(), nil)
	backend.onGenerate = func(call int) {
		if call == 1 {
			s.Stop()
		}
	}

	if err := s.Start(context.Background(), "go", Options{MaxTurns: 50}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(t, s)

	// The in-flight turn completes before the stop flag is observed.
	if backend.calls != 1 {
		t.Fatalf("calls = %d, want exactly 1", backend.calls)
	}
	if got := len(led.All()); got != 2 {
		t.Fatalf("ledger messages = %d, want initial + completed turn", got)
	}
}

func TestContextCancellationIsCritical(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := &stubBackend{}
	backend.onGenerate = func(call int) {
		if call == 2 {
			cancel()
			backend.generateErr = context.Canceled
		}
	}
	led := ledger.New(ledger.Options{})
	s := New(led, backend, nil, testPair(), nil)

	if err := s.Start(ctx, "go", Options{MaxTurns: 10}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := drain(t, s)

	if backend.calls != 2 {
		t.Fatalf("calls = %d, want 2", backend.calls)
	}
	found := false
	for _, ev := range events {
		if ev.Type == model.EventTypeError && ev.Critical {
			found = true
		}
	}
	if !found {
		t.Fatal("no critical error event emitted for cancellation")
	}
	if n := countEvents(events, model.EventTypeEnded); n != 1 {
		t.Fatalf("ended events = %d, want 1", n)
	}
}

func TestThinkingEventsNameTheSpeaker(t *testing.T) {
	backend := &stubBackend{}
	led := ledger.New(ledger.Options{})
	s := New(led, backend, nil, testPair(), nil)

	if err := s.Start(context.Background(), "go", Options{MaxTurns: 2}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := drain(t, s)

	var thinking []string
	for _, ev := range events {
		if ev.Type == model.EventTypeThinking {
			thinking = append(thinking, ev.Speaker)
		}
	}
	want := []string{"Ada", "Bo"}
	if len(thinking) != len(want) {
		t.Fatalf("thinking events = %v, want %v", thinking, want)
	}
	for i := range want {
		if thinking[i] != want[i] {
			t.Fatalf("thinking events = %v, want %v", thinking, want)
		}
	}
}

func TestPauseAndResumeAreInert(t *testing.T) {
	backend := &stubBackend{}
	led := ledger.New(ledger.Options{})
	s := New(led, backend, nil, testPair(), nil)
	backend.onGenerate = func(call int) {
		if call == 1 {
			s.Pause()
		}
	}

	if err := s.Start(context.Background(), "go", Options{MaxTurns: 3}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(t, s)

	if backend.calls != 3 {
		t.Fatalf("calls = %d, want 3; pause must not alter the loop", backend.calls)
	}
	s.Resume()
}

func TestTopicAppearsInPromptAndLedger(t *testing.T) {
	var prompts []string
	backend := &capturingBackend{stub: &stubBackend{}, prompts: &prompts}
	led := ledger.New(ledger.Options{})
	s := New(led, backend, nil, testPair(), nil)

	if err := s.Start(context.Background(), "go", Options{MaxTurns: 1, Topic: "deep sea"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(t, s)

	if led.Topic() != "deep sea" {
		t.Fatalf("ledger topic = %q", led.Topic())
	}
	if len(prompts) != 1 {
		t.Fatalf("captured %d prompts, want 1", len(prompts))
	}
	for _, want := range []string{"Topic: deep sea", "User: go", "in character as Ada"} {
		if !strings.Contains(prompts[0], want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompts[0])
		}
	}
}

func TestCompactionKicksInNearBudget(t *testing.T) {
	summaryJSON := `{"summary": "Older banter.", "key_topics": ["banter"], "contributions": {}}`
	var prompts []string
	backend := &stubBackend{}
	capture := &capturingBackend{stub: backend, prompts: &prompts, fixedText: summaryJSON}

	led := ledger.New(ledger.Options{ContextWindowSize: 4})
	for i := 0; i < 4; i++ {
		led.Append("Ada", fmt.Sprintf("filler %d", i), nil)
	}

	analyzer := analytics.NewAnalyzer(capture, "stub-model", nil)
	s := New(led, capture, analyzer, testPair(), nil)

	err := s.Start(context.Background(), "go", Options{
		MaxTurns:       1,
		CompactEnabled: true,
		KeepRecent:     2,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(t, s)

	var turnPrompt string
	for _, p := range prompts {
		if strings.Contains(p, "in character as Ada") {
			turnPrompt = p
		}
	}
	if turnPrompt == "" {
		t.Fatalf("no turn prompt captured in %d prompts", len(prompts))
	}
	if !strings.Contains(turnPrompt, "[Earlier conversation summary:") {
		t.Fatalf("turn prompt not compacted:\n%s", turnPrompt)
	}
}

// capturingBackend records prompts and optionally overrides response text.
type capturingBackend struct {
	stub      *stubBackend
	prompts   *[]string
	fixedText string
}

func (c *capturingBackend) CheckConnectivity(ctx context.Context) error {
	return c.stub.CheckConnectivity(ctx)
}
func (c *capturingBackend) ListModels(ctx context.Context) ([]string, error) {
	return c.stub.ListModels(ctx)
}
func (c *capturingBackend) Name() string { return c.stub.Name() }
func (c *capturingBackend) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	*c.prompts = append(*c.prompts, req.Prompt)
	resp, err := c.stub.Generate(ctx, req)
	if err == nil && c.fixedText != "" {
		resp.Text = c.fixedText
	}
	return resp, err
}
