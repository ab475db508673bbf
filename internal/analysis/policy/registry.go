// Package policy holds the per-kind retry policy table.
//
// The table is built once at startup and validated for exhaustiveness against
// the full ErrorKind enum, so a missing entry is a startup failure rather than
// a request-time failure.
package policy

import (
	"fmt"
	"time"

	"github.com/vietddude/analyzer/internal/core/domain"
)

// Override adjusts a single kind's policy from configuration. Nil fields keep
// the shipped default.
type Override struct {
	Retryable   *bool
	AutoRetry   *bool
	BaseDelay   *time.Duration
	MaxAttempts *int
}

// Registry is an immutable ErrorKind -> RetryPolicy table.
type Registry struct {
	policies map[domain.ErrorKind]domain.RetryPolicy
}

// Defaults returns the shipped policy table. The numbers are product defaults,
// adjustable through config overrides.
func Defaults() map[domain.ErrorKind]domain.RetryPolicy {
	return map[domain.ErrorKind]domain.RetryPolicy{
		domain.KindRateLimited: {
			Kind:        domain.KindRateLimited,
			Retryable:   true,
			AutoRetry:   true,
			BaseDelay:   5 * time.Second,
			MaxAttempts: 2,
			UserMessage: "The service is busy right now. We'll retry automatically.",
			Guidance:    "Leave this page open; the request retries on its own.",
		},
		domain.KindNetworkTimeout: {
			Kind:        domain.KindNetworkTimeout,
			Retryable:   true,
			AutoRetry:   true,
			BaseDelay:   2 * time.Second,
			MaxAttempts: 2,
			UserMessage: "The analysis took too long to respond. We'll retry automatically.",
			Guidance:    "Leave this page open; the request retries on its own.",
		},
		domain.KindServiceUnavailable: {
			Kind:        domain.KindServiceUnavailable,
			Retryable:   true,
			AutoRetry:   false,
			MaxAttempts: 2,
			UserMessage: "The analysis service is temporarily unavailable.",
			Guidance:    "Try again in a moment.",
		},
		domain.KindUpstreamProcessingFailed: {
			Kind:        domain.KindUpstreamProcessingFailed,
			Retryable:   true,
			AutoRetry:   false,
			MaxAttempts: 2,
			UserMessage: "Something went wrong while analyzing your content.",
			Guidance:    "Try again in a moment.",
		},
		domain.KindUnknown: {
			Kind:        domain.KindUnknown,
			Retryable:   true,
			AutoRetry:   false,
			MaxAttempts: 2,
			UserMessage: "Something unexpected went wrong.",
			Guidance:    "Try again in a moment.",
		},
		domain.KindInputTooLarge: {
			Kind:        domain.KindInputTooLarge,
			Retryable:   false,
			AutoRetry:   false,
			MaxAttempts: 1,
			UserMessage: "This file is larger than the 10 MB size limit.",
			Guidance:    "Resize or compress the file and submit it again.",
		},
		domain.KindInvalidInputFormat: {
			Kind:        domain.KindInvalidInputFormat,
			Retryable:   false,
			AutoRetry:   false,
			MaxAttempts: 1,
			UserMessage: "This file type isn't supported.",
			Guidance:    "Submit a PNG or JPEG image.",
		},
		domain.KindValidationError: {
			Kind:        domain.KindValidationError,
			Retryable:   false,
			AutoRetry:   false,
			MaxAttempts: 1,
			UserMessage: "The request couldn't be understood.",
			Guidance:    "Check the submission and try again.",
		},
	}
}

// NewRegistry builds the registry from defaults plus overrides and validates
// it. It is the only constructor; a nil overrides map applies pure defaults.
func NewRegistry(overrides map[domain.ErrorKind]Override) (*Registry, error) {
	policies := Defaults()

	for kind, ov := range overrides {
		p, ok := policies[kind]
		if !ok {
			return nil, fmt.Errorf("policy override for unknown kind %q", kind)
		}
		if ov.Retryable != nil {
			p.Retryable = *ov.Retryable
		}
		if ov.AutoRetry != nil {
			p.AutoRetry = *ov.AutoRetry
		}
		if ov.BaseDelay != nil {
			p.BaseDelay = *ov.BaseDelay
		}
		if ov.MaxAttempts != nil {
			p.MaxAttempts = *ov.MaxAttempts
		}
		policies[kind] = p
	}

	r := &Registry{policies: policies}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Lookup returns the policy for a classifiable kind. It is total over every
// kind the classifier can produce; an unknown kind falls back to the UNKNOWN
// policy so a registry lookup can never fail at request time.
func (r *Registry) Lookup(kind domain.ErrorKind) domain.RetryPolicy {
	if p, ok := r.policies[kind]; ok {
		return p
	}
	return r.policies[domain.KindUnknown]
}

func (r *Registry) validate() error {
	for _, kind := range domain.AllKinds() {
		p, ok := r.policies[kind]
		if !ok {
			return fmt.Errorf("policy registry missing entry for kind %q", kind)
		}
		if p.MaxAttempts < 1 {
			return fmt.Errorf("policy for %q has max_attempts %d, want >= 1", kind, p.MaxAttempts)
		}
		if p.AutoRetry && !p.Retryable {
			return fmt.Errorf("policy for %q is auto-retry but not retryable", kind)
		}
		if p.AutoRetry && p.BaseDelay <= 0 {
			return fmt.Errorf("policy for %q is auto-retry but has no base delay", kind)
		}
		if p.UserMessage == "" {
			return fmt.Errorf("policy for %q has no user message", kind)
		}
	}
	if _, ok := r.policies[domain.KindCancelled]; ok {
		return fmt.Errorf("policy registry must not carry an entry for cancelled")
	}
	return nil
}
