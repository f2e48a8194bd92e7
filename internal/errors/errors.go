package errors

import (
	"errors"
	"fmt"
)

// RankError is the structured error type for hybridrank.
// It provides rich context for error handling, logging, and user presentation.
type RankError struct {
	// Code is the unique error code (e.g., "ERR_404_DUPLICATE_DOC").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *RankError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RankError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RankError.
func (e *RankError) Is(target error) bool {
	if t, ok := target.(*RankError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RankError) WithDetail(key, value string) *RankError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *RankError) WithSuggestion(suggestion string) *RankError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RankError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *RankError {
	return &RankError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a RankError from an existing error.
// The error's message becomes the RankError message.
func Wrap(code string, err error) *RankError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RankError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *RankError {
	return New(ErrCodeFileRead, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *RankError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RankError {
	return New(ErrCodeInternal, message, cause)
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var re *RankError
	if errors.As(err, &re) {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a RankError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var re *RankError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// HasCategory reports whether err carries a RankError of the given category.
func HasCategory(err error, c Category) bool {
	var re *RankError
	if errors.As(err, &re) {
		return re.Category == c
	}
	return false
}
