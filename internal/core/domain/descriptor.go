package domain

// ErrorDescriptor is the sole error surface consumed by any presentation layer.
// It carries no upstream status codes, vendor identifiers, or stack traces.
type ErrorDescriptor struct {
	Kind              ErrorKind `json:"kind"`
	Message           string    `json:"message"`
	Guidance          string    `json:"guidance,omitempty"`
	Retryable         bool      `json:"retryable"`
	AutoRetry         bool      `json:"auto_retry"`
	AttemptsRemaining int       `json:"attempts_remaining"`
	NextRetryDelayMs  int64     `json:"next_retry_delay_ms,omitempty"`
}
