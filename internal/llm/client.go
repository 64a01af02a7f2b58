// Package llm provides generation backend client interfaces and
// implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBackendUnavailable indicates the connectivity check failed; starting a
// conversation is not possible.
var ErrBackendUnavailable = errors.New("generation backend unavailable")

// BackendError is a transport or protocol failure from a backend.
type BackendError struct {
	Message    string
	StatusCode int
	Details    string
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
	}
	return "backend error: " + e.Message
}

// GenerateRequest asks a backend for the next utterance.
type GenerateRequest struct {
	// Prompt is the user-facing prompt text.
	Prompt string

	// SystemInstruction is the persona's system prompt. Optional.
	SystemInstruction string

	// Context is the ordered prior-turn context, oldest first, each entry
	// rendered as "speaker: content". Optional.
	Context []string

	// Model overrides the backend's default model when set.
	Model string
}

// GenerateResponse is generated text plus optional usage metadata.
type GenerateResponse struct {
	Text        string
	Model       string
	GeneratedAt time.Time
	// TokensUsed is zero when the backend reports no usage.
	TokensUsed int
}

// Client is the interface for generation backends.
type Client interface {
	// CheckConnectivity verifies the backend is reachable. A nil error
	// means reachable.
	CheckConnectivity(ctx context.Context) error

	// ListModels enumerates models the backend can serve.
	ListModels(ctx context.Context) ([]string, error)

	// Generate produces text for the request.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of generation backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Config carries backend construction settings.
type Config struct {
	Provider        Provider
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	Timeout         time.Duration
}

// NewClient creates a backend client for the configured provider.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.OpenAIAPIKey)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg.AnthropicAPIKey)
	case ProviderOllama, "":
		return NewOllamaClient(cfg.OllamaHost, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// contextPreamble folds prior-turn context into a single user-visible block.
// Cloud chat APIs have no slot for pre-rendered transcript lines, so the
// context rides ahead of the prompt.
func contextPreamble(context []string) string {
	if len(context) == 0 {
		return ""
	}
	return "Previous conversation:\n" + strings.Join(context, "\n") + "\n\n"
}
