// Package present renders session state into the UI-facing error contract.
package present

import (
	"time"

	"github.com/vietddude/analyzer/internal/analysis/policy"
	"github.com/vietddude/analyzer/internal/core/domain"
)

// Describe derives an ErrorDescriptor from a session snapshot. It is pure and
// callable repeatedly; it never mutates the snapshot or the registry.
//
// Message and guidance come from the policy of the most recent failed
// attempt's kind. A cancelled session reports kind cancelled with no retry
// avenue.
func Describe(snap domain.SessionSnapshot, reg *policy.Registry, now time.Time) domain.ErrorDescriptor {
	if snap.State == domain.StateCancelled {
		return domain.ErrorDescriptor{
			Kind:    domain.KindCancelled,
			Message: "The request was cancelled.",
		}
	}

	kind := snap.LastKind()
	p := reg.Lookup(kind)

	remaining := p.MaxAttempts - len(snap.Attempts)
	if remaining < 0 {
		remaining = 0
	}

	d := domain.ErrorDescriptor{
		Kind:              kind,
		Message:           p.UserMessage,
		Guidance:          p.Guidance,
		Retryable:         p.Retryable,
		AutoRetry:         p.AutoRetry,
		AttemptsRemaining: remaining,
	}

	if snap.State == domain.StateTerminalFailure {
		d.Retryable = false
		d.AutoRetry = false
		d.AttemptsRemaining = 0
	}

	if snap.State == domain.StateAutoRetryScheduled && !snap.ScheduledRetryAt.IsZero() {
		left := snap.ScheduledRetryAt.Sub(now)
		if left < 0 {
			left = 0
		}
		d.NextRetryDelayMs = left.Milliseconds()
	}

	return d
}
