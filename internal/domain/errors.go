package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind tags every error returned by the client, token and polling layers.
// Callers branch on the kind, never on message text.
type ErrorKind string

const (
	// KindAuthFatal means re-authorization is required; retrying will not help
	KindAuthFatal ErrorKind = "auth_fatal"
	// KindRateLimited means the server kept answering 429 after all retries
	KindRateLimited ErrorKind = "rate_limited"
	// KindTransient covers timeouts, network failures and 5xx responses
	KindTransient ErrorKind = "transient"
	// KindValidation means a response was missing required fields or had bad values
	KindValidation ErrorKind = "validation"
	// KindUnexpected is anything else
	KindUnexpected ErrorKind = "unexpected"
)

// Error codes carried by Error.Code.
const (
	CodeAPIError           = "API_ERROR"
	CodeAuthentication     = "AUTHENTICATION_ERROR"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeValidation         = "VALIDATION_ERROR"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenRefreshFailed = "TOKEN_REFRESH_FAILED"
	CodeNetwork            = "NETWORK_ERROR"
	CodeNotConfigured      = "NOT_CONFIGURED"
)

// Error is the tagged error type shared by all layers.
type Error struct {
	Kind       ErrorKind
	Op         string // Operation that failed, e.g. "balance"
	Code       string
	StatusCode int    // HTTP status, 0 when no response was received
	Message    string
	RetryAfter time.Duration // Server cooldown for rate-limited errors
	Cause      error
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.Code
	if e.Op != "" {
		prefix = fmt.Sprintf("%s %s", e.Op, e.Code)
	}
	if e.StatusCode != 0 {
		prefix = fmt.Sprintf("%s (status %d)", prefix, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewAPIError creates an error for a non-success HTTP status.
// 5xx responses are transient, everything else is unexpected.
func NewAPIError(op string, status int, body string) *Error {
	kind := KindUnexpected
	if status >= http.StatusInternalServerError {
		kind = KindTransient
	}
	return &Error{
		Kind:       kind,
		Op:         op,
		Code:       CodeAPIError,
		StatusCode: status,
		Message:    fmt.Sprintf("API request failed: %s", body),
	}
}

// NewAuthenticationError creates the error returned for HTTP 401.
// It is not fatal on its own; the caller may still refresh and retry once.
func NewAuthenticationError(op string, body string) *Error {
	return &Error{
		Kind:       KindAuthFatal,
		Op:         op,
		Code:       CodeAuthentication,
		StatusCode: http.StatusUnauthorized,
		Message:    fmt.Sprintf("authentication failed: %s", body),
	}
}

// NewRateLimitError creates the error returned once 429 retries are exhausted
func NewRateLimitError(op string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Op:         op,
		Code:       CodeRateLimitExceeded,
		StatusCode: http.StatusTooManyRequests,
		Message:    fmt.Sprintf("rate limit exceeded, retry after %s", retryAfter),
		RetryAfter: retryAfter,
	}
}

// NewValidationError creates an error for a malformed response
func NewValidationError(op string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindValidation,
		Op:      op,
		Code:    CodeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewNetworkError wraps a transport failure that survived all retries
func NewNetworkError(op string, cause error) *Error {
	return &Error{
		Kind:    KindTransient,
		Op:      op,
		Code:    CodeNetwork,
		Message: "network request failed",
		Cause:   cause,
	}
}

// NewTokenExpiredError signals that the refresh token can no longer be used
func NewTokenExpiredError(message string) *Error {
	return &Error{
		Kind:    KindAuthFatal,
		Op:      "token",
		Code:    CodeTokenExpired,
		Message: message,
	}
}

// NewTokenRefreshError signals a rejected refresh request
func NewTokenRefreshError(status int, body string) *Error {
	return &Error{
		Kind:       KindAuthFatal,
		Op:         "token_refresh",
		Code:       CodeTokenRefreshFailed,
		StatusCode: status,
		Message:    fmt.Sprintf("token refresh rejected: %s", body),
	}
}

// NewNotConfiguredError is returned when no credentials have been stored yet
func NewNotConfiguredError(message string) *Error {
	return &Error{
		Kind:    KindAuthFatal,
		Op:      "token",
		Code:    CodeNotConfigured,
		Message: message,
	}
}

// Wrap tags an arbitrary error. Existing *Error values are returned unchanged.
func Wrap(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{
		Kind:    kind,
		Op:      op,
		Code:    string(kind),
		Message: err.Error(),
		Cause:   err,
	}
}

// KindOf returns the kind of err. Untagged errors are unexpected.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindUnexpected
}

// IsAuthFatal reports whether err demands re-authorization
func IsAuthFatal(err error) bool {
	return KindOf(err) == KindAuthFatal
}

// IsUnauthorized reports whether err came from an HTTP 401 response
func IsUnauthorized(err error) bool {
	var tagged *Error
	return errors.As(err, &tagged) && tagged.Code == CodeAuthentication
}

// IsRetryable reports whether the next scheduled poll may succeed without user action
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimited, KindUnexpected:
		return true
	default:
		return false
	}
}
