package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrorType defines distinct categories for errors originating from kilatclip components.
type ErrorType string

const (
	// TransientError represents provider failures expected to resolve on retry:
	// network timeouts, rate limiting (HTTP 429), provider-reported busy or
	// queue states, and server errors (5xx).
	TransientError ErrorType = "transient_error"
	// HardError represents provider failures not expected to resolve without a
	// configuration change: malformed requests, missing credentials, explicit
	// content rejection.
	HardError ErrorType = "hard_error"
	// ValidationError represents an artifact that was produced but failed the
	// acceptance criteria (size, orientation, decodability).
	ValidationError ErrorType = "validation_rejected"
	// ExhaustedError represents a request for which no provider produced an
	// acceptable artifact within the round and timeout budget.
	ExhaustedError ErrorType = "exhausted_error"
	// MixError represents failures of the local audio mixing cascade (all
	// strategies failed or produced undersized output).
	MixError ErrorType = "mix_error"
	// ConfigError represents invalid input parameters or configuration.
	ConfigError ErrorType = "config_error"
	// SystemError represents underlying system issues, such as file I/O errors
	// or command execution problems.
	SystemError ErrorType = "system_error"
)

// StructuredError represents a detailed error originating from kilatclip operations.
// It includes a type, message, optional details, timestamp, and a specific error code.
// It implements the standard Go `error` interface.
type StructuredError struct {
	// Type categorizes the error (e.g., TransientError, HardError).
	Type ErrorType `json:"type"`
	// Message provides a concise, human-readable description of the error.
	Message string `json:"message"`
	// Details offers additional context or the underlying error message, if available.
	Details string `json:"details,omitempty"`
	// Timestamp marks when the error occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`
	// Code provides a specific integer code unique to the error source within its type.
	Code int `json:"code"`
}

// Error implements the standard `error` interface for StructuredError.
func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Message, e.Details)
}

// JSON returns the StructuredError serialized as a JSON string.
func (e *StructuredError) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// New creates a new StructuredError instance.
// It automatically sets the Timestamp to the current time.
func New(errorType ErrorType, message, details string, code int) *StructuredError {
	return &StructuredError{
		Type:      errorType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Format(time.RFC3339),
		Code:      code,
	}
}

// Wrap creates a new StructuredError, using the message from an existing
// standard Go error as the Details field.
// If the input error `err` is nil, Details will be empty.
func Wrap(err error, errorType ErrorType, message string, code int) *StructuredError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return New(errorType, message, details, code)
}

// TypeOf returns the ErrorType of err when it is (or wraps) a StructuredError,
// and SystemError otherwise. Raw errors that escaped an adapter boundary are
// treated as system-level.
func TypeOf(err error) ErrorType {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Type
	}
	return SystemError
}

// IsTransient reports whether err is eligible for retry on a later round.
// Validation rejections schedule identically to transient provider failures.
func IsTransient(err error) bool {
	t := TypeOf(err)
	return t == TransientError || t == ValidationError
}

// IsHard reports whether err indicates a configuration-level provider problem.
func IsHard(err error) bool {
	return TypeOf(err) == HardError
}
