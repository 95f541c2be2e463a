package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/smalls/arcs/pkg/strategizer"
)

// ErrorClass represents the classification of an error for retry logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a failure that may succeed on a new run.
	// Examples: cancellation, a temporarily unavailable archive.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting by a collaborator.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates a state conflict in a collaborator.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid configuration, a failing strategy or evaluator.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified planning error.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Component names the strategy or evaluator that failed, if any.
	Component string `json:"component,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Component != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (component=%s, operation=%s): %s",
			e.Class, e.Message, e.Component, e.Operation, e.unwrapMessage())
	}
	if e.Component != "" {
		return fmt.Sprintf("[%s] %s (component=%s): %s",
			e.Class, e.Message, e.Component, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is reports whether target is an EngineError with the same class and code.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithComponent adds the failing strategy or evaluator name.
func (e *EngineError) WithComponent(name string) *EngineError {
	e.Component = name
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if a new run could succeed.
func IsRetryable(err error) bool {
	var e *EngineError
	if !errors.As(err, &e) {
		return false
	}
	switch e.Class {
	case ErrorClassTransient, ErrorClassThrottled, ErrorClassConflict:
		return true
	default:
		return false
	}
}

// ErrorCode returns the code of the first EngineError in err's chain.
func ErrorCode(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Common error codes.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeStrategyFailed  = "STRATEGY_FAILED"
	ErrCodeEvaluatorFailed = "EVALUATOR_FAILED"
	ErrCodeCanceled        = "CANCELED"
	ErrCodeArchiveFailed   = "ARCHIVE_FAILED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// classify wraps an error returned by a round into an EngineError.
func classify(err error, generation int) *EngineError {
	var se *strategizer.StrategyError
	var ee *strategizer.EvaluatorError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewTransientError("planning canceled", err).
			WithCode(ErrCodeCanceled).
			WithOperation("generate").
			WithDetail("generation", generation)
	case errors.As(err, &se):
		return NewPermanentError("strategy failed", se.Err).
			WithCode(ErrCodeStrategyFailed).
			WithComponent(se.Strategy).
			WithOperation("generate").
			WithDetail("generation", generation)
	case errors.As(err, &ee):
		return NewPermanentError("evaluator failed", ee.Err).
			WithCode(ErrCodeEvaluatorFailed).
			WithComponent(ee.Evaluator).
			WithOperation("evaluate").
			WithDetail("generation", generation)
	default:
		return NewPermanentError("round failed", err).
			WithCode(ErrCodeInternal).
			WithDetail("generation", generation)
	}
}
