package stt

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNotConnected is returned by operations that need a live session.
	ErrNotConnected = errors.New("stt: not connected")

	// ErrAlreadyConnected is returned by Connect on a connected provider.
	ErrAlreadyConnected = errors.New("stt: already connected")

	// ErrNoCredential is the cause of a ConnectionError when no API key was given.
	ErrNoCredential = errors.New("stt: credential required")

	// ErrUnknownProvider is returned by New for an unrecognized kind.
	ErrUnknownProvider = errors.New("stt: unknown provider")
)

// ConnectionError reports that a backend session could not be opened:
// unreachable, rejected credentials, or a failed handshake.
type ConnectionError struct {
	Provider  string
	Reason    string
	Cause     error
	Retryable bool
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stt [%s]: connect: %s: %v", e.Provider, e.Reason, e.Cause)
	}
	return fmt.Sprintf("stt [%s]: connect: %s", e.Provider, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError builds a ConnectionError.
func NewConnectionError(provider, reason string, cause error, retryable bool) *ConnectionError {
	return &ConnectionError{
		Provider:  provider,
		Reason:    reason,
		Cause:     cause,
		Retryable: retryable,
	}
}

// IsConnectionError reports whether err is or wraps a *ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// APIError is an error response from a backend's HTTP surface, including a
// rejected WebSocket handshake.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("stt [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsUnauthorized returns true for HTTP 401 and 403.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsRetryable returns true for rate limiting and server errors.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	var ce *ConnectionError
	if errors.As(err, &ce) && ce.Retryable {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.IsRetryable()
	}
	return false
}
