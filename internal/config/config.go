// Package config provides environment configuration for the duet CLI.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Backend settings
	Backend         string
	OllamaHost      string
	DefaultModel    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	RequestTimeout  time.Duration

	// Ledger settings
	MaxRetain         int
	ContextWindowSize int

	// Compaction
	CompactThreshold float64
	KeepRecent       int

	// Personas
	PersonaFile string

	// Event mirroring
	NATSURL     string
	NATSSubject string

	// Ops listener ("" disables it)
	OpsAddr string

	// Logging
	LogLevel string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Backend:         getEnv("DUET_BACKEND", "ollama"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		DefaultModel:    getEnv("DUET_MODEL", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		RequestTimeout:  getDurationEnv("DUET_REQUEST_TIMEOUT", 120*time.Second),

		MaxRetain:         getIntEnv("DUET_MAX_RETAIN", 1000),
		ContextWindowSize: getIntEnv("DUET_CONTEXT_WINDOW", 20),

		CompactThreshold: getFloatEnv("DUET_COMPACT_THRESHOLD", 0.8),
		KeepRecent:       getIntEnv("DUET_KEEP_RECENT", 10),

		PersonaFile: getEnv("DUET_PERSONA_FILE", ""),

		NATSURL:     getEnv("NATS_URL", ""),
		NATSSubject: getEnv("NATS_SUBJECT", "duet.conversation.events"),

		OpsAddr: getEnv("OPS_ADDR", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
