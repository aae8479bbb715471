package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for backend operations.
var (
	// ErrUnknownModel indicates no backend is routed for the model.
	ErrUnknownModel = errors.New("no backend for model")

	// ErrUnavailable indicates the backend answered with a server error or
	// could not be reached.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrRateLimited indicates the request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidRequest indicates the backend rejected the request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrTimeout indicates the request timed out.
	ErrTimeout = errors.New("request timed out")

	// ErrInvalidResponse indicates a response body that is not valid JSON.
	ErrInvalidResponse = errors.New("invalid response body")

	// ErrMalformedResponse indicates a well-formed response that lacks the
	// expected content field.
	ErrMalformedResponse = errors.New("response missing expected content")
)

// Error wraps backend errors with context.
type Error struct {
	Provider  string // Backend name ("gateway", "search", ...)
	Op        string // Operation that failed ("complete")
	Err       error  // Underlying error
	Retryable bool   // Whether the error is likely transient
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new backend error.
func NewError(provider, op string, err error, retryable bool) *Error {
	return &Error{
		Provider:  provider,
		Op:        op,
		Err:       err,
		Retryable: retryable,
	}
}

// StatusError records a non-2xx HTTP answer.
type StatusError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// IsRetryable checks if an error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}

	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsTimeout reports whether err is a timeout: ErrTimeout, an expired
// context deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsMalformed reports whether err is ErrMalformedResponse.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}
