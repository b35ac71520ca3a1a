// Package status serves the daemon's local observability endpoint: a
// health probe, a JSON status summary, and Prometheus metrics. Loopback
// only; off unless enabled in config.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jasper-companion/jasper/internal/daemon"
)

// Server is the local status HTTP server.
type Server struct {
	core *daemon.Core
	http *http.Server
}

// NewServer builds a status server for the given bind address.
func NewServer(core *daemon.Core, host string, port int) *Server {
	s := &Server{core: core}
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      s.handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		status, err := s.core.GetStatus()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"running":          status.Running,
			"active_frontends": status.ActiveFrontends,
			"insights_count":   status.InsightsCount,
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()

	log.Info().Str("component", "status").Str("addr", s.http.Addr).Msg("status endpoint listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn().Str("component", "status").Err(err).Msg("status endpoint failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
