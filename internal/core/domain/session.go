package domain

import "time"

// SessionState is the orchestrator-owned state of one logical submission.
type SessionState string

const (
	StatePending             SessionState = "pending"
	StateInFlight            SessionState = "in_flight"
	StateClassifyingFailure  SessionState = "classifying_failure"
	StateAutoRetryScheduled  SessionState = "auto_retry_scheduled"
	StateAwaitingManualRetry SessionState = "awaiting_manual_retry"
	StateSuccess             SessionState = "success"
	StateTerminalFailure     SessionState = "terminal_failure"
	StateCancelled           SessionState = "cancelled"
)

// Terminal reports whether no further progress, automatic or manual, is possible.
func (s SessionState) Terminal() bool {
	return s == StateSuccess || s == StateTerminalFailure || s == StateCancelled
}

// SessionSnapshot is a read-only copy of session state taken under the session
// lock. The presentation adapter and the API layer only ever see snapshots.
type SessionSnapshot struct {
	RequestID        string
	State            SessionState
	Attempts         []AttemptRecord
	ScheduledRetryAt time.Time // zero unless StateAutoRetryScheduled
}

// LastKind returns the kind of the most recent failed attempt, or KindUnknown
// when the session has no failed attempts yet.
func (s SessionSnapshot) LastKind() ErrorKind {
	for i := len(s.Attempts) - 1; i >= 0; i-- {
		if s.Attempts[i].Outcome == OutcomeFailure {
			return s.Attempts[i].Kind
		}
	}
	return KindUnknown
}
