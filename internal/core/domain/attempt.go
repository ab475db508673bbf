package domain

// AttemptOutcome is the result of a single try against the upstream.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailure AttemptOutcome = "failure"
)

// AttemptRecord is an immutable record of one attempt. Records are append-only;
// the orchestrator never mutates one after creation.
type AttemptRecord struct {
	RequestID     string         `json:"request_id"`
	AttemptNumber int            `json:"attempt_number"`
	Kind          ErrorKind      `json:"kind,omitempty"` // empty on success
	Outcome       AttemptOutcome `json:"outcome"`
	TimestampMs   int64          `json:"timestamp_ms"`
	LatencyMs     int64          `json:"latency_ms"`
}
