package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/analyzer/internal/analysis/present"
	"github.com/vietddude/analyzer/internal/analysis/session"
	"github.com/vietddude/analyzer/internal/core/domain"
	"github.com/vietddude/analyzer/internal/infra/inference"
	redisclient "github.com/vietddude/analyzer/internal/infra/redis"
	"github.com/vietddude/analyzer/internal/infra/storage"
)

// submitBodyLimit caps how much of a submission the gateway reads. It sits
// above the content size limit so oversize submissions are still classified
// instead of truncated.
const submitBodyLimit = 32 << 20

type analysisResponse struct {
	RequestID string                  `json:"request_id"`
	State     domain.SessionState     `json:"state"`
	Result    *inference.Result       `json:"result,omitempty"`
	Error     *domain.ErrorDescriptor `json:"error,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, submitBodyLimit))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	meta := domain.ContentMeta{
		DeclaredSizeBytes: int64(len(payload)),
		DeclaredType:      r.Header.Get("Content-Type"),
		SniffedType:       sniffType(payload),
	}
	// Clients may declare a size larger than what was read, e.g. when the
	// transport already truncated; trust the bigger number.
	if r.ContentLength > meta.DeclaredSizeBytes {
		meta.DeclaredSizeBytes = r.ContentLength
	}

	snap, result, err := s.orch.Submit(r.Context(), session.Submission{
		UserID:  r.Header.Get("X-User-Id"),
		Payload: payload,
		Meta:    meta,
	})
	if err != nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	s.writeSession(w, snap, result)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap, err := s.orch.Snapshot(id)
	if err == nil {
		s.writeSessionWithStatus(w, http.StatusOK, snap, nil)
		return
	}
	if !errors.Is(err, session.ErrSessionNotFound) {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	// The session left the orchestrator; fall back to the cache, then the
	// durable archive.
	if s.cache != nil {
		if desc, err := s.cache.GetDescriptor(r.Context(), id); err == nil {
			writeJSON(w, http.StatusOK, analysisResponse{RequestID: id, State: stateFor(desc), Error: &desc})
			return
		} else if !errors.Is(err, redisclient.ErrNotFound) {
			slog.Warn("descriptor cache lookup failed", "request_id", id, "error", err)
		}
	}
	if s.archive != nil {
		if rec, err := s.archive.Get(r.Context(), id); err == nil {
			resp := analysisResponse{RequestID: id, State: rec.State}
			if rec.State != domain.StateSuccess {
				desc := present.Describe(domain.SessionSnapshot{
					RequestID: rec.RequestID,
					State:     rec.State,
					Attempts:  rec.Attempts,
				}, s.orch.Registry(), time.Now())
				resp.Error = &desc
			}
			writeJSON(w, http.StatusOK, resp)
			return
		} else if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("archive lookup failed", "request_id", id, "error", err)
		}
	}

	http.Error(w, "unknown request id", http.StatusNotFound)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap, result, err := s.orch.Resume(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		http.Error(w, "unknown request id", http.StatusNotFound)
	case errors.Is(err, session.ErrInvalidState):
		http.Error(w, "session is not awaiting a manual retry", http.StatusConflict)
	case err != nil:
		http.Error(w, "resume failed", http.StatusInternalServerError)
	default:
		s.writeSession(w, snap, result)
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap, err := s.orch.Cancel(id)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		http.Error(w, "unknown request id", http.StatusNotFound)
	case errors.Is(err, session.ErrInvalidState):
		http.Error(w, "session is not cancellable", http.StatusConflict)
	case err != nil:
		http.Error(w, "cancel failed", http.StatusInternalServerError)
	default:
		s.writeSessionWithStatus(w, http.StatusOK, snap, nil)
	}
}

// writeSession renders a session outcome with the terminal status mapping.
func (s *Server) writeSession(w http.ResponseWriter, snap domain.SessionSnapshot, result *inference.Result) {
	s.writeSessionWithStatus(w, httpStatusFor(snap), snap, result)
}

func (s *Server) writeSessionWithStatus(w http.ResponseWriter, status int, snap domain.SessionSnapshot, result *inference.Result) {
	resp := analysisResponse{
		RequestID: snap.RequestID,
		State:     snap.State,
		Result:    result,
	}
	if snap.State != domain.StateSuccess {
		desc := present.Describe(snap, s.orch.Registry(), time.Now())
		resp.Error = &desc
	}
	writeJSON(w, status, resp)
}

// httpStatusFor maps a session's state onto the API contract: success 200,
// terminal failures per kind, anything still in progress 202.
func httpStatusFor(snap domain.SessionSnapshot) int {
	switch snap.State {
	case domain.StateSuccess:
		return http.StatusOK
	case domain.StateCancelled:
		return http.StatusOK
	case domain.StateTerminalFailure:
		switch snap.LastKind() {
		case domain.KindInputTooLarge:
			return http.StatusRequestEntityTooLarge
		case domain.KindInvalidInputFormat:
			return http.StatusUnsupportedMediaType
		case domain.KindValidationError:
			return http.StatusBadRequest
		case domain.KindRateLimited:
			return http.StatusTooManyRequests
		default:
			return http.StatusBadGateway
		}
	default:
		return http.StatusAccepted
	}
}

// stateFor reconstructs the terminal state behind a cached descriptor.
func stateFor(d domain.ErrorDescriptor) domain.SessionState {
	if d.Kind == domain.KindCancelled {
		return domain.StateCancelled
	}
	return domain.StateTerminalFailure
}

func sniffType(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	return http.DetectContentType(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
