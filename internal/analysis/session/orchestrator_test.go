package session

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/vietddude/analyzer/internal/analysis/policy"
	"github.com/vietddude/analyzer/internal/core/domain"
	"github.com/vietddude/analyzer/internal/infra/inference"
)

// =============================================================================
// Helpers
// =============================================================================

func testLimits() domain.ContentLimits {
	return domain.ContentLimits{
		MaxSizeBytes: 10_000_000,
		AllowedTypes: map[string]struct{}{
			"image/png":  {},
			"image/jpeg": {},
		},
	}
}

func okMeta() domain.ContentMeta {
	return domain.ContentMeta{DeclaredSizeBytes: 1024, DeclaredType: "image/png", SniffedType: "image/png"}
}

// newOrch builds an orchestrator with centered jitter (factor 1.0) and the
// given policy overrides so tests can shrink delays to milliseconds.
func newOrch(t *testing.T, analyzer inference.Analyzer, overrides map[domain.ErrorKind]policy.Override) *Orchestrator {
	t.Helper()
	reg, err := policy.NewRegistry(overrides)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	o, err := NewOrchestrator(Options{
		Analyzer: analyzer,
		Registry: reg,
		Limits:   testLimits(),
		Jitter:   func() float64 { return 0.5 },
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o.Stop(ctx)
	})
	return o
}

func upstream429() error {
	return &inference.UpstreamError{StatusCode: 429, Message: "too many requests"}
}

func upstreamRefused() error {
	return &inference.UpstreamError{Message: "transport", Err: syscall.ECONNREFUSED}
}

func upstream500() error {
	return &inference.UpstreamError{StatusCode: 500, Message: "boom"}
}

// recordingSink captures closed sessions.
type recordingSink struct {
	mu     sync.Mutex
	closed []domain.SessionSnapshot
}

func (r *recordingSink) SessionClosed(snap domain.SessionSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, snap)
}

func waitForState(t *testing.T, o *Orchestrator, id string, want domain.SessionState) domain.SessionSnapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := o.Snapshot(id)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if snap.State == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap, _ := o.Snapshot(id)
	t.Fatalf("session never reached %s, stuck at %s", want, snap.State)
	return snap
}

// =============================================================================
// Scenario A: oversize content is terminal after one attempt, upstream untouched
// =============================================================================

func TestSubmit_OversizeIsTerminalWithoutUpstreamCall(t *testing.T) {
	fake := inference.NewScriptedAnalyzer(inference.Succeed("never"))
	o := newOrch(t, fake, nil)

	snap, result, err := o.Submit(context.Background(), Submission{
		Payload: []byte("x"),
		Meta:    domain.ContentMeta{DeclaredSizeBytes: 11_000_000, DeclaredType: "image/png", SniffedType: "image/png"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result != nil {
		t.Error("oversize submission must not produce a result")
	}
	if snap.State != domain.StateTerminalFailure {
		t.Errorf("expected terminal_failure, got %s", snap.State)
	}
	if len(snap.Attempts) != 1 || snap.Attempts[0].Kind != domain.KindInputTooLarge {
		t.Errorf("unexpected attempts: %+v", snap.Attempts)
	}
	if fake.Calls() != 0 {
		t.Errorf("upstream called %d times for a content defect", fake.Calls())
	}
}

// =============================================================================
// Scenario B: 429 schedules an auto retry, second attempt succeeds
// =============================================================================

func TestSubmit_RateLimitedAutoRetryThenSuccess(t *testing.T) {
	fake := inference.NewScriptedAnalyzer(
		inference.Fail(upstream429()),
		inference.Succeed("cat"),
	)
	shortDelay := 20 * time.Millisecond
	o := newOrch(t, fake, map[domain.ErrorKind]policy.Override{
		domain.KindRateLimited: {BaseDelay: &shortDelay},
	})

	snap, result, err := o.Submit(context.Background(), Submission{Payload: []byte("x"), Meta: okMeta()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result != nil {
		t.Error("first attempt should have failed")
	}
	if snap.State != domain.StateAutoRetryScheduled {
		t.Fatalf("expected auto_retry_scheduled, got %s", snap.State)
	}
	if snap.ScheduledRetryAt.IsZero() {
		t.Error("scheduled retry time missing")
	}

	final := waitForState(t, o, snap.RequestID, domain.StateSuccess)
	if len(final.Attempts) != 2 {
		t.Errorf("expected 2 attempts total, got %d", len(final.Attempts))
	}
	if final.Attempts[1].Outcome != domain.OutcomeSuccess {
		t.Errorf("attempt 2 should have succeeded: %+v", final.Attempts[1])
	}
	if fake.Calls() != 2 {
		t.Errorf("expected 2 upstream calls, got %d", fake.Calls())
	}
}

func TestSubmit_RateLimitedDelayIsAboutBaseDelay(t *testing.T) {
	fake := inference.NewScriptedAnalyzer(inference.Fail(upstream429()))
	o := newOrch(t, fake, nil) // default 5s base delay

	before := time.Now()
	snap, _, err := o.Submit(context.Background(), Submission{Payload: []byte("x"), Meta: okMeta()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.State != domain.StateAutoRetryScheduled {
		t.Fatalf("expected auto_retry_scheduled, got %s", snap.State)
	}

	delay := snap.ScheduledRetryAt.Sub(before)
	// Base 5s with ±20% jitter.
	if delay < 3500*time.Millisecond || delay > 6500*time.Millisecond {
		t.Errorf("scheduled delay %v outside jitter bounds of 5s", delay)
	}

	if _, err := o.Cancel(snap.RequestID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

// =============================================================================
// Scenario C: repeated unclassifiable failures stop at the attempt bound
// =============================================================================

func TestResume_UnknownFailuresNeverExceedMaxAttempts(t *testing.T) {
	boom := errors.New("opaque failure")
	fake := inference.NewScriptedAnalyzer(inference.Fail(boom), inference.Fail(boom), inference.Fail(boom))
	o := newOrch(t, fake, nil)

	snap, _, err := o.Submit(context.Background(), Submission{Payload: []byte("x"), Meta: okMeta()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.State != domain.StateAwaitingManualRetry {
		t.Fatalf("expected awaiting_manual_retry, got %s", snap.State)
	}
	if snap.Attempts[0].Kind != domain.KindUnknown {
		t.Errorf("expected unknown kind, got %s", snap.Attempts[0].Kind)
	}

	snap, _, err = o.Resume(context.Background(), snap.RequestID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if snap.State != domain.StateTerminalFailure {
		t.Errorf("expected terminal_failure after attempt 2, got %s", snap.State)
	}
	if len(snap.Attempts) != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", len(snap.Attempts))
	}

	// A third resume is rejected and never reaches upstream.
	if _, _, err := o.Resume(context.Background(), snap.RequestID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if fake.Calls() != 2 {
		t.Errorf("expected exactly 2 upstream calls, got %d", fake.Calls())
	}
}

// =============================================================================
// Scenario D: connection refused awaits manual retry; resume runs exactly once
// =============================================================================

func TestResume_ServiceUnavailableManualRetry(t *testing.T) {
	fake := inference.NewScriptedAnalyzer(
		inference.Fail(upstreamRefused()),
		inference.Succeed("ok"),
	)
	o := newOrch(t, fake, nil)

	snap, _, err := o.Submit(context.Background(), Submission{Payload: []byte("x"), Meta: okMeta()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.State != domain.StateAwaitingManualRetry {
		t.Fatalf("expected awaiting_manual_retry, got %s", snap.State)
	}
	if snap.Attempts[0].Kind != domain.KindServiceUnavailable {
		t.Errorf("expected service_unavailable, got %s", snap.Attempts[0].Kind)
	}

	snap, result, err := o.Resume(context.Background(), snap.RequestID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if snap.State != domain.StateSuccess || result == nil {
		t.Errorf("expected success with result, got %s", snap.State)
	}
	if fake.Calls() != 2 {
		t.Errorf("expected exactly 2 upstream calls, got %d", fake.Calls())
	}
}

// =============================================================================
// Non-retryable kinds terminate after exactly one attempt
// =============================================================================

func TestSubmit_NonRetryableKindsTerminalAfterOneAttempt(t *testing.T) {
	cases := []struct {
		name string
		sub  Submission
		want domain.ErrorKind
	}{
		{
			name: "input too large",
			sub: Submission{Meta: domain.ContentMeta{
				DeclaredSizeBytes: 99_000_000, DeclaredType: "image/png", SniffedType: "image/png",
			}},
			want: domain.KindInputTooLarge,
		},
		{
			name: "invalid format",
			sub: Submission{Meta: domain.ContentMeta{
				DeclaredSizeBytes: 10, DeclaredType: "text/html", SniffedType: "text/html",
			}},
			want: domain.KindInvalidInputFormat,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := inference.NewScriptedAnalyzer()
			o := newOrch(t, fake, nil)

			snap, _, err := o.Submit(context.Background(), tc.sub)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if snap.State != domain.StateTerminalFailure || len(snap.Attempts) != 1 {
				t.Errorf("expected terminal after 1 attempt, got %s with %d attempts", snap.State, len(snap.Attempts))
			}
			if snap.Attempts[0].Kind != tc.want {
				t.Errorf("expected %s, got %s", tc.want, snap.Attempts[0].Kind)
			}
		})
	}
}

func TestSubmit_ValidationErrorTerminal(t *testing.T) {
	fake := inference.NewScriptedAnalyzer(
		inference.Fail(&inference.UpstreamError{StatusCode: 400, ErrorCode: "invalid_request"}),
	)
	o := newOrch(t, fake, nil)

	snap, _, err := o.Submit(context.Background(), Submission{Payload: []byte("x"), Meta: okMeta()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.State != domain.StateTerminalFailure || len(snap.Attempts) != 1 {
		t.Errorf("expected terminal after 1 attempt, got %s", snap.State)
	}
	if snap.Attempts[0].Kind != domain.KindValidationError {
		t.Errorf("expected validation_error, got %s", snap.Attempts[0].Kind)
	}
}

// =============================================================================
// Cancellation
// =============================================================================

func TestCancel_ScheduledRetryNeverFires(t *testing.T) {
	fake := inference.NewScriptedAnalyzer(inference.Fail(upstream429()), inference.Succeed("never"))
	longDelay := 30 * time.Second
	o := newOrch(t, fake, map[domain.ErrorKind]policy.Override{
		domain.KindRateLimited: {BaseDelay: &longDelay},
	})

	snap, _, err := o.Submit(context.Background(), Submission{Payload: []byte("x"), Meta: okMeta()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.State != domain.StateAutoRetryScheduled {
		t.Fatalf("expected auto_retry_scheduled, got %s", snap.State)
	}

	snap, err = o.Cancel(snap.RequestID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if snap.State != domain.StateCancelled {
		t.Errorf("expected cancelled, got %s", snap.State)
	}

	// Give a stray timer every chance to misfire.
	time.Sleep(50 * time.Millisecond)
	if fake.Calls() != 1 {
		t.Errorf("upstream called %d times after cancel, want 1", fake.Calls())
	}
}

func TestCancel_RaceWithFiringTimer_ExactlyOneOutcome(t *testing.T) {
	// Tiny delay so the timer fires while Cancel races it. Whatever wins,
	// the attempt count must never exceed the number of upstream calls the
	// winning path permits.
	for i := 0; i < 25; i++ {
		fake := inference.NewScriptedAnalyzer(inference.Fail(upstream429()), inference.Succeed("ok"))
		tiny := time.Millisecond
		o := newOrch(t, fake, map[domain.ErrorKind]policy.Override{
			domain.KindRateLimited: {BaseDelay: &tiny},
		})

		snap, _, err := o.Submit(context.Background(), Submission{Payload: []byte("x"), Meta: okMeta()})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}

		_, cancelErr := o.Cancel(snap.RequestID)

		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			cur, err := o.Snapshot(snap.RequestID)
			if err != nil {
				t.Fatalf("snapshot: %v", err)
			}
			if cur.State.Terminal() {
				break
			}
			time.Sleep(2 * time.Millisecond)
		}

		final, err := o.Snapshot(snap.RequestID)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		switch final.State {
		case domain.StateCancelled:
			// Cancel won before the retry fired (1 call), or aborted the
			// retry mid-flight (2 calls, outcome discarded). Either way no
			// success may be recorded and nothing runs afterwards.
			if fake.Calls() > 2 {
				t.Errorf("iteration %d: cancelled but upstream saw %d calls", i, fake.Calls())
			}
			for _, a := range final.Attempts {
				if a.Outcome == domain.OutcomeSuccess {
					t.Errorf("iteration %d: cancelled session recorded a success", i)
				}
			}
		case domain.StateSuccess:
			// Retry won: it ran exactly once and the cancel was rejected.
			if fake.Calls() != 2 {
				t.Errorf("iteration %d: retry won but upstream saw %d calls", i, fake.Calls())
			}
			if len(final.Attempts) != 2 {
				t.Errorf("iteration %d: retry won with %d attempts", i, len(final.Attempts))
			}
		default:
			t.Errorf("iteration %d: session stuck in %s (cancel err: %v)", i, final.State, cancelErr)
		}
	}
}

func TestCancel_TerminalSessionRejected(t *testing.T) {
	fake := inference.NewScriptedAnalyzer(inference.Succeed("ok"))
	o := newOrch(t, fake, nil)

	snap, _, err := o.Submit(context.Background(), Submission{Payload: []byte("x"), Meta: okMeta()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.State != domain.StateSuccess {
		t.Fatalf("expected success, got %s", snap.State)
	}
	if _, err := o.Cancel(snap.RequestID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

// =============================================================================
// Invariants
// =============================================================================

func TestAutoRetry_StopsAtAttemptBound(t *testing.T) {
	// Every attempt fails with 429 against an enlarged budget; the session
	// must settle at exactly maxAttempts and never call upstream again.
	fake := inference.NewScriptedAnalyzer(inference.Fail(upstream429()))
	four := 4
	base := 5 * time.Millisecond
	o := newOrch(t, fake, map[domain.ErrorKind]policy.Override{
		domain.KindRateLimited: {MaxAttempts: &four, BaseDelay: &base},
	})

	snap, _, err := o.Submit(context.Background(), Submission{Payload: []byte("x"), Meta: okMeta()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitForState(t, o, snap.RequestID, domain.StateTerminalFailure)
	if len(final.Attempts) != 4 {
		t.Errorf("expected 4 attempts, got %d", len(final.Attempts))
	}

	time.Sleep(50 * time.Millisecond)
	if fake.Calls() != 4 {
		t.Errorf("expected exactly 4 upstream calls, got %d", fake.Calls())
	}
}

func TestAttempts_AppendOnly(t *testing.T) {
	fake := inference.NewScriptedAnalyzer(inference.Fail(upstreamRefused()), inference.Succeed("ok"))
	o := newOrch(t, fake, nil)

	snap, _, err := o.Submit(context.Background(), Submission{Payload: []byte("x"), Meta: okMeta()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	first := snap.Attempts[0]

	// Mutating the returned snapshot must not touch the session's records.
	snap.Attempts[0].Kind = domain.KindUnknown

	snap2, _, err := o.Resume(context.Background(), snap.RequestID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if snap2.Attempts[0] != first {
		t.Errorf("attempt record changed: %+v vs %+v", snap2.Attempts[0], first)
	}
	if snap2.Attempts[1].AttemptNumber != 2 {
		t.Errorf("attempt numbering broken: %+v", snap2.Attempts)
	}
}

func TestSink_NotifiedOnTerminal(t *testing.T) {
	fake := inference.NewScriptedAnalyzer(inference.Succeed("ok"))
	reg, err := policy.NewRegistry(nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	sink := &recordingSink{}
	o, err := NewOrchestrator(Options{
		Analyzer: fake,
		Registry: reg,
		Limits:   testLimits(),
		Sink:     sink,
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	snap, _, err := o.Submit(context.Background(), Submission{Payload: []byte("x"), Meta: okMeta()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.closed) != 1 || sink.closed[0].RequestID != snap.RequestID {
		t.Errorf("sink not notified correctly: %+v", sink.closed)
	}
}

func TestJanitor_EvictsOnlyTerminal(t *testing.T) {
	fake := inference.NewScriptedAnalyzer(inference.Fail(upstreamRefused()))
	o := newOrch(t, fake, nil)

	// One terminal (cancelled) and one live session.
	done, _, err := o.Submit(context.Background(), Submission{Payload: []byte("x"), Meta: okMeta()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := o.Cancel(done.RequestID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	live, _, err := o.Submit(context.Background(), Submission{Payload: []byte("x"), Meta: okMeta()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if n := o.evictTerminalBefore(time.Now().Add(time.Second)); n != 1 {
		t.Errorf("expected 1 eviction, got %d", n)
	}
	if _, err := o.Snapshot(done.RequestID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("terminal session should be gone, got %v", err)
	}
	if _, err := o.Snapshot(live.RequestID); err != nil {
		t.Errorf("live session should remain: %v", err)
	}
}
