// Package ops exposes an optional health and metrics HTTP listener for
// long-running conversations.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/duetlabs/persona-duet/internal/llm"
	"github.com/duetlabs/persona-duet/pkg/logger"
)

// Server is the ops HTTP listener.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// New builds the ops server. /health reports backend connectivity, /metrics
// serves prometheus.
func New(addr string, backend llm.Client, log *logger.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		if err := backend.CheckConnectivity(ctx); err != nil {
			status = "backend unreachable"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"backend": backend.Name(),
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Start serves in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("ops listener started", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Warn("ops listener error", zap.Error(err))
		}
	}()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) {
	_ = s.httpServer.Shutdown(ctx)
}
