// Package inference talks to the external content-analysis service.
//
// The service is opaque and unreliable: calls may fail by timeout, connection
// error, or HTTP-style error status. Failures surface as *UpstreamError so the
// orchestrator can classify them; raw upstream detail never travels further.
package inference

import (
	"context"
	"fmt"
)

// Result is a successful analysis body, passed through to the caller untouched.
type Result struct {
	RequestID string         `json:"request_id"`
	Labels    []string       `json:"labels,omitempty"`
	Scores    map[string]any `json:"scores,omitempty"`
	Raw       []byte         `json:"-"`
}

// Analyzer is the seam to the external collaborator. Implementations must
// honor ctx cancellation; the call timeout is owned by whoever constructs the
// implementation, not by the orchestrator.
type Analyzer interface {
	Analyze(ctx context.Context, requestID string, payload []byte) (*Result, error)
}

// UpstreamError is the failure signal from one upstream call.
// StatusCode is 0 for pure transport errors.
type UpstreamError struct {
	StatusCode int
	ErrorCode  string
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream call: %v", e.Err)
	}
	return fmt.Sprintf("upstream error: %s", e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
