package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeDomain         ErrorType = "DOMAIN_ERROR"
	ErrorTypeValidation     ErrorType = "VALIDATION_ERROR"
	ErrorTypeInfrastructure ErrorType = "INFRASTRUCTURE_ERROR"
	ErrorTypeAuthentication ErrorType = "AUTHENTICATION_ERROR"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeConflict       ErrorType = "CONFLICT_ERROR"
	ErrorTypeInternal       ErrorType = "INTERNAL_ERROR"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("resource conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidToken = errors.New("invalid token")
)

// Access layer errors. These are caller bugs: they are never retried or
// swallowed, and always travel as the Cause of an *AppError.
var (
	ErrUnknownPathKey      = errors.New("unknown path key")
	ErrIncompletePath      = errors.New("incomplete path arguments")
	ErrReservedField       = errors.New("root level keys starting with \"$\" are reserved")
	ErrMetadataAccess      = errors.New("metadata access violation")
	ErrMetadataShape       = errors.New("metadata does not match the expected shape")
	ErrCursorOrderMismatch = errors.New("cursor has a different ordering than the query")
)

// Store errors shared by the persistence adapters.
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrAlreadyExists    = errors.New("document already exists")
	ErrInvalidPath      = errors.New("invalid document path")
)

// AppError represents a custom application error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	HTTPCode  int                    `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, httpCode int) *AppError {
	return &AppError{
		Type:     errorType,
		Message:  message,
		HTTPCode: httpCode,
		Details:  make(map[string]interface{}),
	}
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a domain-specific error
func NewDomainError(message string) *AppError {
	return NewAppError(ErrorTypeDomain, message, http.StatusBadRequest)
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, http.StatusBadRequest)
}

// NewInfrastructureError creates an infrastructure error
func NewInfrastructureError(message string) *AppError {
	return NewAppError(ErrorTypeInfrastructure, message, http.StatusInternalServerError)
}

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthentication, message, http.StatusUnauthorized)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return NewAppError(ErrorTypeConflict, message, http.StatusConflict)
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// Access layer constructors

// UnknownPathKey reports a "$" key absent from the declared schema.
func UnknownPathKey(key string) *AppError {
	return NewDomainError("unknown path key").
		WithCause(ErrUnknownPathKey).
		WithCode("UNKNOWN_PATH_KEY").
		WithDetail("key", key)
}

// IncompletePath reports an unbound placeholder before the final segment.
func IncompletePath(template, placeholder string) *AppError {
	return NewDomainError("incomplete path").
		WithCause(ErrIncompletePath).
		WithCode("INCOMPLETE_PATH").
		WithDetail("template", template).
		WithDetail("placeholder", placeholder)
}

// ReservedField reports a payload key inside the metadata namespace.
func ReservedField(field string) *AppError {
	return NewValidationError("reserved field").
		WithCause(ErrReservedField).
		WithCode("RESERVED_FIELD").
		WithDetail("field", field)
}

// MetadataAccess reports the wrong accessor used for a field.
func MetadataAccess(field, hint string) *AppError {
	return NewDomainError(hint).
		WithCause(ErrMetadataAccess).
		WithCode("METADATA_ACCESS_VIOLATION").
		WithDetail("field", field)
}

// MetadataShape reports decoded metadata failing shape validation.
func MetadataShape(field, problem string) *AppError {
	return NewDomainError("invalid metadata").
		WithCause(ErrMetadataShape).
		WithCode("METADATA_SHAPE").
		WithDetail("field", field).
		WithDetail("problem", problem)
}

// CursorOrderMismatch reports a resume token captured under another ordering.
func CursorOrderMismatch(cursorOrder, queryOrder string) *AppError {
	return NewValidationError("cursor ordering mismatch").
		WithCause(ErrCursorOrderMismatch).
		WithCode("CURSOR_ORDER_MISMATCH").
		WithDetail("cursor_order", cursorOrder).
		WithDetail("query_order", queryOrder)
}

// Helper functions for common error scenarios

// WrapError wraps an error with context
func WrapError(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Type == ErrorTypeNotFound {
		return true
	}
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrDocumentNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeValidation
	}
	return false
}

// IsAuthentication checks if an error is an authentication error
func IsAuthentication(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeAuthentication
	}
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidToken)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Type == ErrorTypeConflict {
		return true
	}
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyExists)
}

// IsCallerError reports whether err belongs to the access layer taxonomy.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrUnknownPathKey) ||
		errors.Is(err, ErrIncompletePath) ||
		errors.Is(err, ErrReservedField) ||
		errors.Is(err, ErrMetadataAccess) ||
		errors.Is(err, ErrMetadataShape) ||
		errors.Is(err, ErrCursorOrderMismatch)
}
