package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrInvalidRequest indicates malformed input that will never succeed upstream.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUpstreamUnavailable indicates a transient upstream failure that
	// persisted through the retry budget.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNotFound indicates that a requested record was not found upstream.
	ErrNotFound = errors.New("not found")

	// ErrParse indicates a malformed upstream record.
	ErrParse = errors.New("parse failure")

	// ErrCacheIO indicates a persistence-tier read or write failure.
	ErrCacheIO = errors.New("cache i/o failure")
)

// InvalidRequestError describes input that is rejected before any upstream call.
type InvalidRequestError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *InvalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

// TransientUpstreamError describes a retryable upstream failure that
// exhausted its retry budget.
type TransientUpstreamError struct {
	Operation  string
	Attempts   int
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *TransientUpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed after %d attempts (last status %d): %v", e.Operation, e.Attempts, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Cause)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *TransientUpstreamError) Unwrap() error {
	return ErrUpstreamUnavailable
}

// NotFoundError provides details about a record absent upstream.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ParseError describes a single malformed record within an upstream payload.
// It is scoped to that record and never aborts the surrounding batch.
type ParseError struct {
	PMID    string
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed record for PMID %s: %s", e.PMID, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ParseError) Unwrap() error {
	return ErrParse
}

// CacheIOError describes a persistence-tier failure. Callers log it and
// continue; it never surfaces as an operation failure.
type CacheIOError struct {
	Op    string
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Cause)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *CacheIOError) Unwrap() error {
	return ErrCacheIO
}

// NewInvalidRequestError creates a new InvalidRequestError.
func NewInvalidRequestError(field, message string) *InvalidRequestError {
	return &InvalidRequestError{
		Field:   field,
		Message: message,
	}
}

// NewTransientUpstreamError creates a new TransientUpstreamError.
func NewTransientUpstreamError(operation string, attempts, statusCode int, cause error) *TransientUpstreamError {
	return &TransientUpstreamError{
		Operation:  operation,
		Attempts:   attempts,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewParseError creates a new ParseError.
func NewParseError(pmid, message string) *ParseError {
	return &ParseError{
		PMID:    pmid,
		Message: message,
	}
}

// NewCacheIOError creates a new CacheIOError.
func NewCacheIOError(op, path string, cause error) *CacheIOError {
	return &CacheIOError{
		Op:    op,
		Path:  path,
		Cause: cause,
	}
}
