package api

import (
	"net/http"

	"github.com/vietddude/analyzer/internal/analysis/health"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := health.StatusHealthy
	if s.monitor != nil {
		status = health.Aggregate(s.monitor.CheckHealth(r.Context()))
	}

	code := http.StatusOK
	if status == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	var reports []health.ComponentReport
	if s.monitor != nil {
		reports = s.monitor.CheckHealth(r.Context())
	}
	writeJSON(w, http.StatusOK, reports)
}
