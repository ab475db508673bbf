package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// HTTPAnalyzer calls the inference service over HTTP.
type HTTPAnalyzer struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

// NewHTTPAnalyzer creates an HTTP-based analyzer. The timeout bounds each
// call; the orchestrator only reacts to the resulting signal.
func NewHTTPAnalyzer(name, endpoint string, timeout time.Duration) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		name:     name,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name returns the provider name used in logs.
func (a *HTTPAnalyzer) Name() string { return a.name }

// Analyze posts the payload and decodes either a result body or an error body.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, requestID string, payload []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &UpstreamError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Request-Id", requestID)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: "transport", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &UpstreamError{Message: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		ue := &UpstreamError{StatusCode: resp.StatusCode}
		// Error bodies are best-effort JSON; an undecodable body still
		// carries the status code.
		var errBody struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &errBody) == nil {
			ue.ErrorCode = errBody.Code
			ue.Message = errBody.Message
		}
		return nil, ue
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &UpstreamError{Message: "parse response", Err: err}
	}
	result.RequestID = requestID
	result.Raw = body
	return &result, nil
}

// Ping probes upstream reachability for health checks.
func (a *HTTPAnalyzer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
