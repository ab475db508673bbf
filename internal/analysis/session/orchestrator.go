// Package session drives request sessions against the inference service:
// one state machine per submission, failure classification, per-kind retry
// policy, bounded backoff, and race-free cancellation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/analyzer/internal/analysis/audit"
	"github.com/vietddude/analyzer/internal/analysis/classify"
	"github.com/vietddude/analyzer/internal/analysis/metrics"
	"github.com/vietddude/analyzer/internal/analysis/policy"
	"github.com/vietddude/analyzer/internal/core/domain"
	"github.com/vietddude/analyzer/internal/infra/inference"
)

var (
	// ErrSessionNotFound means the request id has no live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidState means the requested transition is not legal from the
	// session's current state.
	ErrInvalidState = errors.New("invalid session state for operation")
)

// Sink observes sessions as they reach a terminal state, e.g. to archive them.
type Sink interface {
	SessionClosed(snap domain.SessionSnapshot)
}

// Submission is one logical request entering the orchestrator.
type Submission struct {
	UserID  string
	Payload []byte
	Meta    domain.ContentMeta
}

// Options wires the orchestrator's collaborators. Analyzer and Registry are
// required; everything else has a working default.
type Options struct {
	Analyzer inference.Analyzer
	Registry *policy.Registry
	Audit    *audit.Logger
	Limits   domain.ContentLimits
	Sink     Sink

	// Now and Jitter are seams for deterministic tests.
	Now    func() time.Time
	Jitter func() float64
}

// Orchestrator owns every RequestSession. Sessions share no mutable state
// with one another; all cross-session access goes through the registry map
// lock, all per-session access through the session lock.
type Orchestrator struct {
	analyzer inference.Analyzer
	registry *policy.Registry
	auditLog *audit.Logger
	limits   domain.ContentLimits
	sink     Sink
	now      func() time.Time
	jitter   func() float64

	mu       sync.RWMutex
	sessions map[string]*session

	wg     sync.WaitGroup
	closed chan struct{}
}

// NewOrchestrator creates an orchestrator. It fails when required
// collaborators are missing.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("orchestrator requires an analyzer")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("orchestrator requires a policy registry")
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Jitter == nil {
		opts.Jitter = rand.Float64
	}
	return &Orchestrator{
		analyzer: opts.Analyzer,
		registry: opts.Registry,
		auditLog: opts.Audit,
		limits:   opts.Limits,
		sink:     opts.Sink,
		now:      opts.Now,
		jitter:   opts.Jitter,
		sessions: make(map[string]*session),
		closed:   make(chan struct{}),
	}, nil
}

// Submit creates a session and runs its first attempt synchronously. The
// returned snapshot reflects the session right after the attempt settled; the
// result is non-nil only on success. Automatic retries continue in the
// background after Submit returns.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (domain.SessionSnapshot, *inference.Result, error) {
	select {
	case <-o.closed:
		return domain.SessionSnapshot{}, nil, fmt.Errorf("orchestrator is shut down")
	default:
	}

	s := &session{
		id:      uuid.New().String(),
		userID:  sub.UserID,
		payload: sub.Payload,
		meta:    sub.Meta,
		state:   domain.StatePending,
	}

	o.mu.Lock()
	o.sessions[s.id] = s
	o.mu.Unlock()
	metrics.ActiveSessions.Inc()

	s.mu.Lock()
	s.state = domain.StateInFlight
	result := o.attemptLocked(ctx, s)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return snap, result, nil
}

// Resume triggers the next attempt of a session awaiting a manual retry.
// Any other state is rejected; a resume never silently starts a duplicate
// attempt.
func (o *Orchestrator) Resume(ctx context.Context, requestID string) (domain.SessionSnapshot, *inference.Result, error) {
	s, err := o.lookup(requestID)
	if err != nil {
		return domain.SessionSnapshot{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateAwaitingManualRetry {
		return s.snapshotLocked(), nil, fmt.Errorf("resume %s in state %s: %w", requestID, s.state, ErrInvalidState)
	}

	metrics.RetriesScheduledTotal.WithLabelValues(string(s.snapshotLocked().LastKind()), "manual").Inc()
	s.state = domain.StateInFlight
	result := o.attemptLocked(ctx, s)
	return s.snapshotLocked(), result, nil
}

// Cancel aborts a session. It is legal while in flight, while an automatic
// retry is scheduled, or while awaiting a manual retry. Exactly one of
// {cancel wins, scheduled retry proceeds} happens: transitions are decided
// under the session lock, so a fired timer that lost the race observes the
// cancelled state and never calls upstream.
func (o *Orchestrator) Cancel(requestID string) (domain.SessionSnapshot, error) {
	s, err := o.lookup(requestID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case domain.StateInFlight:
		// Abort the upstream call; the attempt in progress observes the
		// cancelled state and discards its outcome.
		if s.cancelAttempt != nil {
			s.cancelAttempt()
		}
	case domain.StateAutoRetryScheduled:
		if s.timer != nil && s.timer.Stop() {
			o.wg.Done() // timer callback will never run
		}
		s.timer = nil
	case domain.StateAwaitingManualRetry:
		// Nothing scheduled; just close out.
	default:
		return s.snapshotLocked(), fmt.Errorf("cancel %s in state %s: %w", requestID, s.state, ErrInvalidState)
	}

	s.state = domain.StateCancelled
	o.closeLocked(s)
	return s.snapshotLocked(), nil
}

// Snapshot returns the current state of a live session.
func (o *Orchestrator) Snapshot(requestID string) (domain.SessionSnapshot, error) {
	s, err := o.lookup(requestID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	return s.snapshot(), nil
}

// Registry exposes the policy table for presentation.
func (o *Orchestrator) Registry() *policy.Registry { return o.registry }

// ActiveCount reports sessions currently tracked, terminal ones included
// until the janitor evicts them.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}

// Stop prevents new submissions and waits for scheduled work to drain or ctx
// to expire.
func (o *Orchestrator) Stop(ctx context.Context) error {
	select {
	case <-o.closed:
		return nil
	default:
		close(o.closed)
	}

	// Cancel anything still pending so shutdown doesn't wait out backoffs.
	o.mu.RLock()
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.RUnlock()
	for _, id := range ids {
		_, _ = o.Cancel(id)
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator shutdown: %w", ctx.Err())
	}
}

func (o *Orchestrator) lookup(requestID string) (*session, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.sessions[requestID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", requestID, ErrSessionNotFound)
	}
	return s, nil
}

// attemptLocked runs one attempt. The caller holds s.mu and has already set
// StateInFlight. The lock is released for the upstream call itself and
// re-acquired to settle the outcome, so Cancel can interleave; the settled
// outcome is discarded when cancellation won meanwhile.
func (o *Orchestrator) attemptLocked(ctx context.Context, s *session) *inference.Result {
	// Content defects are decided without burning an upstream call; the
	// classifier puts them ahead of network signals anyway.
	if kind := o.precheck(s.meta); kind != "" {
		o.settleFailureLocked(s, kind, 0)
		return nil
	}

	attemptCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelAttempt = cancel
	s.mu.Unlock()

	start := o.now()
	result, err := o.analyzer.Analyze(attemptCtx, s.id, s.payload)
	latency := o.now().Sub(start)
	cancel()

	s.mu.Lock()
	s.cancelAttempt = nil

	if s.state == domain.StateCancelled {
		// Cancel won while the call was in flight.
		return nil
	}

	if err == nil {
		o.settleSuccessLocked(s, latency)
		return result
	}

	kind := classify.Classify(o.signalFor(s, err))
	o.settleFailureLocked(s, kind, latency)
	return nil
}

// precheck classifies content metadata alone, returning a kind only for
// content defects.
func (o *Orchestrator) precheck(meta domain.ContentMeta) domain.ErrorKind {
	kind := classify.Classify(domain.FailureSignal{Meta: &meta, Limits: o.limits})
	if kind == domain.KindInputTooLarge || kind == domain.KindInvalidInputFormat {
		return kind
	}
	return ""
}

func (o *Orchestrator) signalFor(s *session, err error) domain.FailureSignal {
	sig := domain.FailureSignal{Err: err, Meta: &s.meta, Limits: o.limits}
	var ue *inference.UpstreamError
	if errors.As(err, &ue) {
		sig.StatusCode = ue.StatusCode
		sig.ErrorCode = ue.ErrorCode
		sig.Message = ue.Message
		if ue.Err != nil {
			sig.Err = ue.Err
		}
	}
	return sig
}

func (o *Orchestrator) settleSuccessLocked(s *session, latency time.Duration) {
	record := domain.AttemptRecord{
		RequestID:     s.id,
		AttemptNumber: len(s.attempts) + 1,
		Outcome:       domain.OutcomeSuccess,
		TimestampMs:   o.now().UnixMilli(),
		LatencyMs:     latency.Milliseconds(),
	}
	s.attempts = append(s.attempts, record)
	s.state = domain.StateSuccess

	o.observe(record, s.userID, latency)
	o.closeLocked(s)
}

// settleFailureLocked applies the failure-transition algorithm: record the
// attempt, look up the policy, then terminal / manual / scheduled auto retry.
// The cumulative attempt count is checked against the current kind's bound,
// so a session cannot escape its budget by drifting to a different kind.
func (o *Orchestrator) settleFailureLocked(s *session, kind domain.ErrorKind, latency time.Duration) {
	s.state = domain.StateClassifyingFailure

	record := domain.AttemptRecord{
		RequestID:     s.id,
		AttemptNumber: len(s.attempts) + 1,
		Kind:          kind,
		Outcome:       domain.OutcomeFailure,
		TimestampMs:   o.now().UnixMilli(),
		LatencyMs:     latency.Milliseconds(),
	}
	s.attempts = append(s.attempts, record)
	o.observe(record, s.userID, latency)

	pol := o.registry.Lookup(kind)

	if len(s.attempts) >= pol.MaxAttempts {
		s.state = domain.StateTerminalFailure
		o.closeLocked(s)
		return
	}
	if !pol.Retryable {
		s.state = domain.StateTerminalFailure
		o.closeLocked(s)
		return
	}
	if pol.AutoRetry {
		delay := backoffDelay(pol.BaseDelay, record.AttemptNumber, s.lastDelay, o.jitter)
		s.lastDelay = delay
		s.scheduledAt = o.now().Add(delay)
		s.state = domain.StateAutoRetryScheduled
		metrics.RetriesScheduledTotal.WithLabelValues(string(kind), "auto").Inc()

		o.wg.Add(1)
		s.timer = time.AfterFunc(delay, func() { o.fireScheduled(s) })
		return
	}

	s.state = domain.StateAwaitingManualRetry
}

// fireScheduled runs in the timer goroutine when an automatic retry comes
// due. The state check under the session lock resolves the race with Cancel.
func (o *Orchestrator) fireScheduled(s *session) {
	defer o.wg.Done()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateAutoRetryScheduled {
		return
	}
	s.timer = nil
	s.scheduledAt = time.Time{}
	s.state = domain.StateInFlight
	o.attemptLocked(context.Background(), s)
}

// closeLocked settles a terminal session: metrics, sink notification.
// The session stays in the map for presentation until the janitor evicts it.
func (o *Orchestrator) closeLocked(s *session) {
	s.finishedAt = o.now()
	metrics.SessionsTerminalTotal.WithLabelValues(string(s.state)).Inc()
	metrics.ActiveSessions.Dec()

	if o.sink != nil {
		snap := s.snapshotLocked()
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.sink.SessionClosed(snap)
		}()
	}

	slog.Debug("session closed",
		"request_id", s.id,
		"state", string(s.state),
		"attempts", len(s.attempts),
	)
}

func (o *Orchestrator) observe(record domain.AttemptRecord, userID string, latency time.Duration) {
	metrics.AttemptsTotal.WithLabelValues(string(record.Kind), string(record.Outcome)).Inc()
	if latency > 0 {
		metrics.UpstreamLatency.Observe(latency.Seconds())
	}

	logCtx := map[string]any{}
	if userID != "" {
		logCtx["user_id"] = userID
	}
	o.auditLog.Record(record, logCtx)
}
