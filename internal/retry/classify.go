package retry

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// transientPatterns match connection-level failures reported as plain text, either by the
// backend client or by a proxy in front of the backend.
var transientPatterns = []string{
	"econnreset",
	"econnrefused",
	"enotfound",
	"epipe",
	"connection reset",
	"connection refused",
	"no such host",
	"broken pipe",
}

// IsTransient reports whether err is a connectivity failure worth retrying: connection reset,
// refused, unresolved host or broken pipe.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}
