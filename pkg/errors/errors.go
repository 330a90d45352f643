package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur while
// crawling and acquiring assets.
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuthExpired ErrorType = "auth_expired"
	ErrorTypeIntegrity   ErrorType = "integrity"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a harvesting error with type information.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New creates a typed error.
func New(t ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{Type: t, Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsRetryable checks if an error type should be retried automatically.
// Auth expiry is deliberately not retryable: it needs operator input, not a
// backoff loop.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable
// error. 202 and 403 are the origin's challenge signals and must surface to
// the token authority instead of being retried.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 202, 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// IsTokenExpired reports whether err carries the auth-expired type.
func IsTokenExpired(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Type == ErrorTypeAuthExpired
}

// IsIntegrity reports whether err carries the integrity-failure type.
func IsIntegrity(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Type == ErrorTypeIntegrity
}
