package session

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/analyzer/internal/core/domain"
)

// session is the mutable per-submission state machine, owned exclusively by
// the Orchestrator. All field access happens under mu; attempts within one
// session are strictly serialized by the state machine itself (a new attempt
// starts only from a non-in-flight state).
type session struct {
	mu sync.Mutex

	id      string
	userID  string
	payload []byte
	meta    domain.ContentMeta

	state    domain.SessionState
	attempts []domain.AttemptRecord

	// Auto-retry bookkeeping. lastDelay keeps scheduled backoff
	// non-decreasing across a session even when the kind changes.
	timer       *time.Timer
	scheduledAt time.Time
	lastDelay   time.Duration

	// cancelAttempt aborts the in-flight upstream call; non-nil only while
	// StateInFlight.
	cancelAttempt context.CancelFunc

	finishedAt time.Time
}

// snapshotLocked copies observable state. Callers must hold s.mu.
func (s *session) snapshotLocked() domain.SessionSnapshot {
	attempts := make([]domain.AttemptRecord, len(s.attempts))
	copy(attempts, s.attempts)

	snap := domain.SessionSnapshot{
		RequestID: s.id,
		State:     s.state,
		Attempts:  attempts,
	}
	if s.state == domain.StateAutoRetryScheduled {
		snap.ScheduledRetryAt = s.scheduledAt
	}
	return snap
}

func (s *session) snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}
