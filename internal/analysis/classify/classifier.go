// Package classify maps raw failure signals to the closed ErrorKind taxonomy.
package classify

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/vietddude/analyzer/internal/core/domain"
)

// Classify maps a failure signal to exactly one ErrorKind. It is pure, total,
// and deterministic: the same signal always yields the same kind, nothing is
// ever raised, and unclassifiable input degrades to KindUnknown.
//
// Rules are evaluated first match wins. Content checks run before
// network-derived checks because a single failed submission may exhibit both,
// and the content defect is the actionable root cause.
func Classify(sig domain.FailureSignal) domain.ErrorKind {
	if sig.Meta != nil {
		if sig.Limits.MaxSizeBytes > 0 && sig.Meta.DeclaredSizeBytes > sig.Limits.MaxSizeBytes {
			return domain.KindInputTooLarge
		}
		if !sig.Limits.Allows(sig.Meta.DeclaredType) {
			return domain.KindInvalidInputFormat
		}
		// Declared/sniffed mismatch is treated as spoofing.
		if sig.Meta.SniffedType != "" && sig.Meta.DeclaredType != "" &&
			sig.Meta.SniffedType != sig.Meta.DeclaredType {
			return domain.KindInvalidInputFormat
		}
	}

	if sig.StatusCode == 429 {
		return domain.KindRateLimited
	}
	if isConnectionRefused(sig.Err) {
		return domain.KindServiceUnavailable
	}
	if isTimeout(sig.Err) {
		return domain.KindNetworkTimeout
	}
	if sig.StatusCode >= 500 && sig.StatusCode <= 599 {
		return domain.KindUpstreamProcessingFailed
	}
	if isMalformedRequest(sig) {
		return domain.KindValidationError
	}
	return domain.KindUnknown
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection refused") || strings.Contains(s, "no such host")
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func isMalformedRequest(sig domain.FailureSignal) bool {
	if sig.StatusCode == 400 || sig.StatusCode == 422 {
		return true
	}
	code := strings.ToLower(sig.ErrorCode)
	return code == "invalid_request" || code == "invalid_argument" || code == "malformed_request"
}
