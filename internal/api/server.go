// Package api exposes the gateway's HTTP surface: submissions, session
// lookups, resume/cancel controls, health, and metrics.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/analyzer/internal/analysis/health"
	"github.com/vietddude/analyzer/internal/analysis/session"
	redisclient "github.com/vietddude/analyzer/internal/infra/redis"
	"github.com/vietddude/analyzer/internal/infra/storage"
)

// Server serves the gateway API.
type Server struct {
	orch    *session.Orchestrator
	cache   *redisclient.Client
	archive storage.SessionArchive
	monitor *health.Monitor
	server  *http.Server
}

// NewServer wires the API routes. cache and archive may be nil; lookups then
// only cover live sessions.
func NewServer(orch *session.Orchestrator, cache *redisclient.Client, archive storage.SessionArchive, monitor *health.Monitor, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		orch:    orch,
		cache:   cache,
		archive: archive,
		monitor: monitor,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: withRequestID(mux),
		},
	}

	mux.HandleFunc("POST /v1/analyses", s.handleSubmit)
	mux.HandleFunc("GET /v1/analyses/{id}", s.handleGet)
	mux.HandleFunc("POST /v1/analyses/{id}/resume", s.handleResume)
	mux.HandleFunc("POST /v1/analyses/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
