package domain

import "time"

// RetryPolicy describes whether, how, and how many times a kind may be retried.
type RetryPolicy struct {
	Kind        ErrorKind
	Retryable   bool
	AutoRetry   bool
	BaseDelay   time.Duration
	MaxAttempts int

	// UserMessage and Guidance are pre-authored, non-technical strings.
	// They must never contain upstream vendor names, codes, or stack traces.
	UserMessage string
	Guidance    string
}
