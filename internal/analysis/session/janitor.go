package session

import (
	"context"
	"log/slog"
	"time"
)

// Janitor evicts terminal sessions from the orchestrator after a retention
// period. Terminal sessions are archived when they close; keeping them in the
// map a while longer lets presentation lookups keep answering cheaply.
type Janitor struct {
	orch      *Orchestrator
	retention time.Duration
}

// NewJanitor creates a janitor. Retention <= 0 disables eviction.
func NewJanitor(orch *Orchestrator, retention time.Duration) *Janitor {
	return &Janitor{orch: orch, retention: retention}
}

// Start runs the eviction loop until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	if j.retention <= 0 {
		return
	}

	interval := min(j.retention/10, time.Minute)
	interval = max(interval, time.Second)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	threshold := j.orch.now().Add(-j.retention)
	evicted := j.orch.evictTerminalBefore(threshold)
	if evicted > 0 {
		slog.Debug("evicted terminal sessions", "count", evicted)
	}
}

// evictTerminalBefore removes terminal sessions that finished before the
// threshold and returns how many were dropped.
func (o *Orchestrator) evictTerminalBefore(threshold time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	evicted := 0
	for id, s := range o.sessions {
		s.mu.Lock()
		gone := s.state.Terminal() && !s.finishedAt.IsZero() && s.finishedAt.Before(threshold)
		s.mu.Unlock()
		if gone {
			delete(o.sessions, id)
			evicted++
		}
	}
	return evicted
}
