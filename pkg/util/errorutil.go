package util

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass places an error in the handling taxonomy: transient errors are
// retried at the client boundary, data-quality errors mark a single record,
// phase errors mark a single phase result, fatal errors abort the batch.
type ErrorClass string

const (
	ClassTransient   ErrorClass = "TRANSIENT"
	ClassDataQuality ErrorClass = "DATA_QUALITY"
	ClassPhase       ErrorClass = "PHASE"
	ClassFatal       ErrorClass = "FATAL"
)

// DomainError standardizes application errors.
type DomainError struct {
	Class      ErrorClass
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewRateLimited builds a transient rate-limit error. RetrySeconds carries
// the server's Retry-After hint when one was sent.
func NewRateLimited(retrySeconds float64) error {
	return &DomainError{
		Class:      ClassTransient,
		Code:       "RATE_LIMITED",
		Message:    "rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
		Details:    map[string]any{"retry_after_seconds": retrySeconds},
	}
}

// NewTransient wraps a retryable network or timeout failure.
func NewTransient(message string, err error) error {
	return &DomainError{
		Class:      ClassTransient,
		Code:       "TRANSIENT",
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewDataQuality marks a record-level parsing or resolution problem that a
// human needs to fix in the source data.
func NewDataQuality(message string, details map[string]any) error {
	return &DomainError{
		Class:      ClassDataQuality,
		Code:       "DATA_QUALITY",
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

// NewPhaseFailure marks a single external action failure within a run.
func NewPhaseFailure(message string, err error) error {
	return &DomainError{
		Class:      ClassPhase,
		Code:       "PHASE_FAILED",
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewFatal marks an initialization failure that aborts the whole batch.
func NewFatal(message string, err error) error {
	return &DomainError{
		Class:      ClassFatal,
		Code:       "FATAL",
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewNotFound reports a missing external resource.
func NewNotFound(resource string) error {
	return &DomainError{
		Class:      ClassDataQuality,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// NewValidationError reports a rejected request payload.
func NewValidationError(message string, details map[string]any) error {
	return &DomainError{
		Class:      ClassDataQuality,
		Code:       "VALIDATION_FAILED",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// NewUnauthorized reports a failed authentication.
func NewUnauthorized(message string) error {
	return &DomainError{
		Class:      ClassFatal,
		Code:       "UNAUTHORIZED",
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) error {
	return &DomainError{
		Class:      ClassFatal,
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ClassOf reports the taxonomy class of err, defaulting unknown errors to
// fatal so callers fail closed.
func ClassOf(err error) ErrorClass {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Class
	}
	return ClassFatal
}

// IsTransient reports whether err should be retried at the client boundary.
func IsTransient(err error) bool {
	return ClassOf(err) == ClassTransient
}

// IsRateLimited reports whether err is specifically a 429-style signal.
func IsRateLimited(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == "RATE_LIMITED"
	}
	return false
}

// IsNotFound reports whether err is a missing-resource signal.
func IsNotFound(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == "NOT_FOUND"
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Class:      ClassFatal,
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts generic errors to DomainError.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
