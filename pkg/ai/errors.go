// Package ai provides the shared error taxonomy, retry policy, and connect
// options used by every VAD/STT/TTS/LLM provider boundary (spec.md §7).
package ai

import (
	"errors"
	"fmt"
	"time"
)

// Common error classifications used across AI providers.
var (
	// ErrRecoverable indicates a transient failure that may succeed if
	// retried: network timeout, 429, 5xx, websocket disconnect mid-stream.
	ErrRecoverable = errors.New("recoverable AI provider error")

	// ErrFatal indicates a terminal failure that will not succeed if
	// retried: authentication, schema, 4xx other than 429.
	ErrFatal = errors.New("fatal AI provider error")

	// ErrProtocolViolation marks a stream that closed before consuming all
	// tokens, or otherwise broke its wire contract. Always terminal.
	ErrProtocolViolation = errors.New("AI provider protocol violation")
)

// IsRecoverable reports whether err (or its wrapped chain) is recoverable.
func IsRecoverable(err error) bool { return errors.Is(err, ErrRecoverable) }

// IsFatal reports whether err (or its wrapped chain) is fatal.
func IsFatal(err error) bool { return errors.Is(err, ErrFatal) }

// APIConnectOptions bounds retry behavior for a single provider stream, per
// spec.md §5/§7: "retried per APIConnectOptions{max_retry, retry_interval,
// timeout}".
type APIConnectOptions struct {
	MaxRetry      int
	RetryInterval time.Duration
	Timeout       time.Duration
}

// DefaultAPIConnectOptions mirrors the teacher's DefaultRetryConfig values.
func DefaultAPIConnectOptions() APIConnectOptions {
	return APIConnectOptions{
		MaxRetry:      3,
		RetryInterval: 100 * time.Millisecond,
		Timeout:       10 * time.Second,
	}
}

// APIConnectionError wraps a terminal provider error after retries are
// exhausted (spec.md §7: "Terminal provider errors ... Surface immediately
// as APIConnectionError wrapping the cause").
type APIConnectionError struct {
	Provider string
	Attempts int
	Cause    error
}

func (e *APIConnectionError) Error() string {
	return fmt.Sprintf("%s: connection failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Cause)
}

func (e *APIConnectionError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrFatal) succeed for a wrapped APIConnectionError,
// since by construction it is always terminal.
func (e *APIConnectionError) Is(target error) bool { return target == ErrFatal }

// RetryableError wraps an underlying error with an explicit retry
// classification, kept from the teacher for callers that construct errors
// directly rather than returning ErrRecoverable/ErrFatal.
type RetryableError struct {
	Underlying error
	Retryable  bool
	Message    string
}

func (e *RetryableError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Underlying.Error()
}

func (e *RetryableError) Unwrap() error {
	if e.Retryable {
		return ErrRecoverable
	}
	return ErrFatal
}

// NewRecoverableError creates a recoverable error with context.
func NewRecoverableError(underlying error, message string) error {
	return &RetryableError{Underlying: underlying, Retryable: true, Message: message}
}

// NewFatalError creates a fatal error with context.
func NewFatalError(underlying error, message string) error {
	return &RetryableError{Underlying: underlying, Retryable: false, Message: message}
}
