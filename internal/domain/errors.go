package domain

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTagLimitExceeded = errors.New("tag limit exceeded")
)

// Error codes for standardized API error responses.
const (
	ErrCodeResourceNotFound      = "RESOURCE_NOT_FOUND"
	ErrCodeResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeValidationError       = "VALIDATION_ERROR"
	ErrCodePreconditionFailed    = "PRECONDITION_FAILED"
	ErrCodeTagLimitExceeded      = "TAG_LIMIT_EXCEEDED"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)

// TagLimitError is returned when a story would carry more tags than allowed.
// It is raised before any write happens.
type TagLimitError struct {
	Max int
}

// Error implements the error interface.
func (e *TagLimitError) Error() string {
	return fmt.Sprintf("a story can have at most %d tags", e.Max)
}

// Is reports ErrTagLimitExceeded as a match so callers can use errors.Is.
func (e *TagLimitError) Is(target error) bool {
	return target == ErrTagLimitExceeded
}

// StandardError represents a standardized error response from the API.
type StandardError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// StandardErrorResponse wraps a StandardError for JSON responses.
type StandardErrorResponse struct {
	Error StandardError `json:"error"`
}

// APIError represents a plain error response from the API. ErrCode is one
// of the ErrCode constants.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	ErrCode string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}
