// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConversationsTotal tracks conversations started.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duet_conversations_total",
			Help: "Total conversations started",
		},
	)

	// MessagesTotal tracks messages appended to the ledger.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_messages_total",
			Help: "Total messages appended",
		},
		[]string{"speaker"},
	)

	// TurnsTotal tracks completed turns by outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_turns_total",
			Help: "Total turns attempted",
		},
		[]string{"speaker", "status"},
	)

	// GenerationDuration tracks backend generation latency.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duet_generation_duration_seconds",
			Help:    "Generation backend call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"model", "status"},
	)

	// GenerationTokens tracks tokens reported by the backend.
	GenerationTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_generation_tokens_total",
			Help: "Total tokens reported by the generation backend",
		},
		[]string{"model"},
	)

	// LedgerRetained tracks currently retained ledger messages.
	LedgerRetained = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duet_ledger_retained_messages",
			Help: "Messages currently retained in the ledger",
		},
	)

	// CompactionsTotal tracks context compactions performed.
	CompactionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duet_compactions_total",
			Help: "Total context compactions",
		},
	)
)

// RecordGeneration records metrics for one generation backend call.
func RecordGeneration(model, status string, seconds float64, tokens int) {
	GenerationDuration.WithLabelValues(model, status).Observe(seconds)
	if tokens > 0 {
		GenerationTokens.WithLabelValues(model).Add(float64(tokens))
	}
}
