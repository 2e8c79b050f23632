// Package resilience provides the error taxonomy and retry/backoff
// machinery shared by the pipeline stages.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry: an unreachable
// store, a reset connection, a 5xx from an upstream.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// AIServiceError marks a classification gateway failure: timeout, 5xx, or
// a malformed non-JSON response. It is retried with backoff up to a bound;
// exhaustion becomes a terminal ledger reject, never a surfaced panic.
type AIServiceError struct {
	Err       error
	Operation string
}

func (e *AIServiceError) Error() string {
	return "ai service: " + e.Operation + ": " + e.Err.Error()
}

func (e *AIServiceError) Unwrap() error {
	return e.Err
}

// NewAIServiceError wraps a gateway failure for the given operation.
func NewAIServiceError(err error, operation string) *AIServiceError {
	return &AIServiceError{Err: err, Operation: operation}
}

// IsAIServiceError returns true if the chain contains an AIServiceError.
func IsAIServiceError(err error) bool {
	var ae *AIServiceError
	return errors.As(err, &ae)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError or AIServiceError, or matches common network-level
// transient patterns (timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if IsAIServiceError(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"database is locked",
		"server closed idle connection",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
