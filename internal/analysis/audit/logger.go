// Package audit records every attempt to the structured log sink.
//
// Context fields are restricted to an explicit allow-list. Anything not on
// the list is dropped outright, so a newly introduced sensitive field is
// excluded by default instead of requiring a deny-list update.
package audit

import (
	"log/slog"

	"github.com/vietddude/analyzer/internal/core/domain"
)

// allowedContextKeys is the full set of context fields that may reach the log.
var allowedContextKeys = map[string]struct{}{
	"user_id": {},
}

// Logger writes sanitized attempt records via slog.
type Logger struct {
	log *slog.Logger
}

// NewLogger creates an attempt logger. A nil slog logger uses the default.
func NewLogger(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{log: log}
}

// Record logs one attempt. The attempt's own fields (request id, kind,
// attempt number, outcome, latency) are always logged; ctx fields pass only
// if allow-listed.
func (l *Logger) Record(attempt domain.AttemptRecord, ctx map[string]any) {
	attrs := []any{
		"request_id", attempt.RequestID,
		"attempt", attempt.AttemptNumber,
		"outcome", string(attempt.Outcome),
		"latency_ms", attempt.LatencyMs,
	}
	if attempt.Kind != "" {
		attrs = append(attrs, "kind", string(attempt.Kind))
	}
	for k, v := range ctx {
		if _, ok := allowedContextKeys[k]; ok {
			attrs = append(attrs, k, v)
		}
	}

	if attempt.Outcome == domain.OutcomeFailure {
		l.log.Warn("attempt failed", attrs...)
		return
	}
	l.log.Info("attempt succeeded", attrs...)
}
