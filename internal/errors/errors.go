// Package errors provides a lightweight structured error type (PubError)
// for category-based classification and retry semantics across the
// publishing pipeline.
package errors

import (
	"fmt"
)

// ErrorCategory classifies a publishing error for reporting and retry decisions.
type ErrorCategory string

const (
	// User-facing input errors (bad file content, schema violations, name collisions)
	CategoryValidation ErrorCategory = "validation"
	CategorySchema     ErrorCategory = "schema"

	// External collaborator errors
	CategoryNetwork ErrorCategory = "network"
	CategoryForge   ErrorCategory = "forge"
	CategoryBuild   ErrorCategory = "build"

	// Benign absence of prior state
	CategoryNotFound ErrorCategory = "notfound"

	// Programming or infrastructure errors
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Aborts the job
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// PubError is a structured error with category, retryability, and context.
type PubError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for PubError.
type ContextFields map[string]any

// Error implements the error interface.
func (e *PubError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling.
func (e *PubError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *PubError) WithContext(key string, value any) *PubError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new PubError.
func New(category ErrorCategory, severity ErrorSeverity, message string) *PubError {
	return &PubError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new PubError that wraps an existing error.
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *PubError {
	return &PubError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// Retryable creates a new retryable PubError.
func Retryable(category ErrorCategory, severity ErrorSeverity, message string) *PubError {
	return &PubError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: true,
	}
}

// WrapRetryable creates a new retryable PubError that wraps an existing error.
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *PubError {
	return &PubError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// ValidationError creates a recoverable validation error. The message is the
// user-visible text and must stand on its own without the category prefix.
func ValidationError(message string) *PubError {
	return &PubError{
		Category: CategoryValidation,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// IsCategory checks if an error belongs to a specific category.
func IsCategory(err error, category ErrorCategory) bool {
	if pe, ok := err.(*PubError); ok {
		return pe.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if pe, ok := err.(*PubError); ok {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal
// if not a PubError.
func GetCategory(err error) ErrorCategory {
	if pe, ok := err.(*PubError); ok {
		return pe.Category
	}
	return CategoryInternal
}

// UserMessage returns the text shown to users for an error. Validation errors
// surface their message verbatim; everything else keeps the category prefix.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if pe, ok := err.(*PubError); ok {
		if pe.Category == CategoryValidation || pe.Category == CategorySchema {
			return pe.Message
		}
	}
	return err.Error()
}
