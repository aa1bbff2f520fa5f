package fetcher

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorCategory classifies a fetch failure so it can be stored on a
// CrawledPage and surfaced in logs without losing the error's shape.
type ErrorCategory string

const (
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryDNSFailure        ErrorCategory = "dns_failure"
	CategoryConnectionRefused ErrorCategory = "connection_refused"
	Category4xx               ErrorCategory = "4xx"
	Category5xx               ErrorCategory = "5xx"
	CategoryRedirectLoop      ErrorCategory = "redirect_loop"
	CategoryUnknown           ErrorCategory = "unknown"
)


// ClassifyError determines the error category from an error, an HTTP status
// code, and whether a redirect loop was detected. A nil error with a 2xx/3xx
// status and no redirect loop classifies as CategoryUnknown, since callers
// only invoke this for non-success attempts.
func ClassifyError(err error, statusCode int, isRedirectLoop bool) ErrorCategory {
	if isRedirectLoop {
		return CategoryRedirectLoop
	}

	if statusCode >= 400 && statusCode <= 499 {
		return Category4xx
	}
	if statusCode >= 500 {
		return Category5xx
	}

	if err == nil {
		return CategoryUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryDNSFailure
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" && strings.Contains(opErr.Error(), "connection refused") {
			return CategoryConnectionRefused
		}
		if opErr.Timeout() {
			return CategoryTimeout
		}
	}

	return CategoryUnknown
}
