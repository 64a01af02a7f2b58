package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaCheckConnectivity(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"models": []}`))
	})

	c := NewOllamaClient(srv.URL, time.Second)
	if err := c.CheckConnectivity(context.Background()); err != nil {
		t.Fatalf("CheckConnectivity: %v", err)
	}
}

func TestOllamaCheckConnectivityUnreachable(t *testing.T) {
	c := NewOllamaClient("http://127.0.0.1:1", time.Second)
	err := c.CheckConnectivity(context.Background())
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
}

func TestOllamaListModels(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models": [{"name": "llama3.2"}, {"name": "mistral"}]}`))
	})

	c := NewOllamaClient(srv.URL, time.Second)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[0] != "llama3.2" || models[1] != "mistral" {
		t.Fatalf("models = %v", models)
	}
}

func TestOllamaGenerate(t *testing.T) {
	var captured ollamaChatRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Model:     captured.Model,
			Message:   ollamaChatMessage{Role: "assistant", Content: "generated text"},
			Done:      true,
			EvalCount: 42,
		})
	})

	c := NewOllamaClient(srv.URL, time.Second)
	resp, err := c.Generate(context.Background(), &GenerateRequest{
		Prompt:            "say something",
		SystemInstruction: "you are a test persona",
		Context:           []string{"Ada: hi", "Bo: hello"},
		Model:             "mistral",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if resp.Text != "generated text" {
		t.Fatalf("Text = %q", resp.Text)
	}
	if resp.Model != "mistral" || resp.TokensUsed != 42 {
		t.Fatalf("resp = %+v", resp)
	}

	if captured.Stream {
		t.Fatal("request asked for streaming")
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("messages = %d, want system + user", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "you are a test persona" {
		t.Fatalf("system message = %+v", captured.Messages[0])
	}
	user := captured.Messages[1].Content
	if !strings.Contains(user, "Ada: hi") || !strings.Contains(user, "say something") {
		t.Fatalf("user message missing context or prompt: %q", user)
	}
}

func TestOllamaGenerateServerError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	})

	c := NewOllamaClient(srv.URL, time.Second)
	_, err := c.Generate(context.Background(), &GenerateRequest{Prompt: "hi"})

	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("err = %v, want *BackendError", err)
	}
	if backendErr.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want 404", backendErr.StatusCode)
	}
}

func TestNewClientDefaultsToOllama(t *testing.T) {
	c, err := NewClient(Config{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Name() != "ollama" {
		t.Fatalf("Name = %q, want ollama", c.Name())
	}

	if _, err := NewClient(Config{Provider: "mystery"}); err == nil {
		t.Fatal("unknown provider accepted")
	}
	if _, err := NewClient(Config{Provider: ProviderOpenAI}); err == nil {
		t.Fatal("openai without API key accepted")
	}
}
