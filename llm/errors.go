package llm

import (
	"errors"
	"fmt"
)

// Error types for classifying agent invocation failures.

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// AgentUnavailableError indicates every endpoint for a capability failed.
// Callers degrade rather than halt: the interrupt manager switches to its
// keyword fallback, and a research topic is completed with the error
// attached.
type AgentUnavailableError struct {
	// Capability is the capability that could not be served.
	Capability string

	// Last is the final underlying error.
	Last error
}

func (e *AgentUnavailableError) Error() string {
	return fmt.Sprintf("no endpoint available for capability %s: %v", e.Capability, e.Last)
}

func (e *AgentUnavailableError) Unwrap() error {
	return e.Last
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// IsAgentUnavailable returns true if the error means the model capability is
// unreachable.
func IsAgentUnavailable(err error) bool {
	var unavailable *AgentUnavailableError
	return errors.As(err, &unavailable)
}
