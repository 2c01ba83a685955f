// Package common provides shared utilities and types used across the engine.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common engine errors.
var (
	// Storage errors.
	ErrInvalidInput = errors.New("invalid input")

	// Admission errors.
	ErrCapacityExceeded = errors.New("sample capacity exceeded")

	// Lifecycle errors.
	ErrTrainingInFlight = errors.New("training already in flight")
	ErrTrainingFailed   = errors.New("training failed")
	ErrModuleDegraded   = errors.New("module degraded; retry explicitly")
	ErrUnknownModule    = errors.New("unknown module")

	// Collaborative errors.
	ErrTransportUnavailable = errors.New("collaborative transport unavailable")
	ErrInsightUnavailable   = errors.New("global insight unavailable")
	ErrColdStartUnavailable = errors.New("cold start rule set unavailable")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTransportUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
