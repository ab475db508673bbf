package domain

// ErrorKind categorizes why a request attempt failed.
// The set is closed: the policy registry is validated against AllKinds at
// startup, so a kind added here without a policy entry fails fast.
type ErrorKind string

const (
	KindRateLimited              ErrorKind = "rate_limited"
	KindServiceUnavailable       ErrorKind = "service_unavailable"
	KindNetworkTimeout           ErrorKind = "network_timeout"
	KindInputTooLarge            ErrorKind = "input_too_large"
	KindInvalidInputFormat       ErrorKind = "invalid_input_format"
	KindUpstreamProcessingFailed ErrorKind = "upstream_processing_failed"
	KindValidationError          ErrorKind = "validation_error"
	KindUnknown                  ErrorKind = "unknown"

	// KindCancelled is a terminal session status only. The classifier never
	// produces it and the registry carries no policy for it.
	KindCancelled ErrorKind = "cancelled"
)

// AllKinds returns every classifiable kind, i.e. everything except KindCancelled.
func AllKinds() []ErrorKind {
	return []ErrorKind{
		KindRateLimited,
		KindServiceUnavailable,
		KindNetworkTimeout,
		KindInputTooLarge,
		KindInvalidInputFormat,
		KindUpstreamProcessingFailed,
		KindValidationError,
		KindUnknown,
	}
}

// Valid reports whether k is a classifiable kind.
func (k ErrorKind) Valid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}
