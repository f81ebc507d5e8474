package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeIsolation    ErrorType = "isolation"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeRateLimited  ErrorType = "rate_limited"
	ErrorTypeInternal     ErrorType = "internal"
)

// API error codes surfaced to clients
const (
	CodeTokenMissing             = "TOKEN_MISSING"
	CodeTokenInvalid             = "TOKEN_INVALID"
	CodeTokenExpired             = "TOKEN_EXPIRED"
	CodeSessionInvalid           = "SESSION_INVALID"
	CodeUserNotFound             = "USER_NOT_FOUND"
	CodeTenantInactive           = "TENANT_INACTIVE"
	CodeRequiresPayment          = "REQUIRES_PAYMENT"
	CodeInsufficientPermissions  = "INSUFFICIENT_PERMISSIONS"
	CodeTenantRequired           = "TENANT_REQUIRED"
	CodeFeatureNotAvailable      = "FEATURE_NOT_AVAILABLE"
	CodeResourceNotFound         = "RESOURCE_NOT_FOUND"
	CodeTenantContextUnavailable = "TENANT_CONTEXT_UNAVAILABLE"
	CodeInvalidCredentials       = "INVALID_CREDENTIALS"
	CodeTooManyAttempts          = "TOO_MANY_ATTEMPTS"
	CodeValidationFailed         = "VALIDATION_FAILED"
	CodeInternal                 = "INTERNAL_ERROR"
)

// Detail keys understood by the HTTP layer
const (
	DetailForceLogout = "forceLogout"
	DetailRedirectTo  = "redirectTo"
	DetailFeature     = "feature"
	DetailRetryAfter  = "retryAfter"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Code    string
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on Code when the target carries one, otherwise on Type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Type == t.Type
}

// WithDetail returns a copy of the error with an added detail.
// Sentinel values are shared, so they are never mutated in place.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	clone := *e
	clone.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return &clone
}

// Wrap returns a copy of the error carrying cause
func (e *DomainError) Wrap(cause error) *DomainError {
	clone := *e
	clone.Err = cause
	return &clone
}

// ForceLogout reports whether the client must drop its credentials
func (e *DomainError) ForceLogout() bool {
	v, _ := e.Details[DetailForceLogout].(bool)
	return v
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, code, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Authentication errors
	ErrTokenMissing = NewDomainError(ErrorTypeUnauthorized, CodeTokenMissing, "authentication token missing", nil)
	ErrTokenInvalid = NewDomainError(ErrorTypeUnauthorized, CodeTokenInvalid, "invalid authentication token", nil)
	ErrTokenExpired = NewDomainError(ErrorTypeUnauthorized, CodeTokenExpired, "authentication token expired", nil)

	// Session and principal errors
	ErrSessionInvalid = NewDomainError(ErrorTypeUnauthorized, CodeSessionInvalid, "session is no longer valid", nil).
				WithDetail(DetailForceLogout, true)
	ErrUserNotFound = NewDomainError(ErrorTypeUnauthorized, CodeUserNotFound, "user not found or disabled", nil).
			WithDetail(DetailForceLogout, true)
	ErrInvalidCredentials = NewDomainError(ErrorTypeUnauthorized, CodeInvalidCredentials, "invalid email or password", nil)
	ErrTooManyAttempts   = NewDomainError(ErrorTypeRateLimited, CodeTooManyAttempts, "too many login attempts", nil)

	// Authorization errors
	ErrTenantInactive = NewDomainError(ErrorTypeForbidden, CodeTenantInactive, "account deactivated", nil).
				WithDetail(DetailForceLogout, true)
	ErrRequiresPayment          = NewDomainError(ErrorTypeForbidden, CodeRequiresPayment, "payment required", nil)
	ErrInsufficientPermissions  = NewDomainError(ErrorTypeForbidden, CodeInsufficientPermissions, "insufficient permissions", nil)
	ErrTenantRequired           = NewDomainError(ErrorTypeForbidden, CodeTenantRequired, "tenant context required", nil)
	ErrFeatureNotAvailable      = NewDomainError(ErrorTypeForbidden, CodeFeatureNotAvailable, "feature not available on current plan", nil)

	// Ownership errors
	ErrResourceNotFound = NewDomainError(ErrorTypeNotFound, CodeResourceNotFound, "resource not found", nil)

	// Isolation errors
	ErrTenantContextUnavailable = NewDomainError(ErrorTypeIsolation, CodeTenantContextUnavailable, "tenant context unavailable", nil)

	// Validation errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, CodeValidationFailed, "invalid input", nil)

	// Internal errors
	ErrInternal = NewDomainError(ErrorTypeInternal, CodeInternal, "internal server error", nil)
)

// RequiresPayment builds the payment-required denial carrying the billing redirect hint
func RequiresPayment(redirectTo string) *DomainError {
	return ErrRequiresPayment.WithDetail(DetailRedirectTo, redirectTo)
}

// FeatureNotAvailable builds the capability denial carrying the feature name
func FeatureNotAvailable(feature string) *DomainError {
	return ErrFeatureNotAvailable.WithDetail(DetailFeature, feature)
}

// Error type checking helper functions

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsIsolationError checks if an error is a tenant isolation failure
func IsIsolationError(err error) bool { return hasType(err, ErrorTypeIsolation) }

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool { return hasType(err, ErrorTypeConflict) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the API code of a domain error, or empty string
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, CodeInternal, message, err)
}

// WrapIsolation wraps a connection lease or scope failure
func WrapIsolation(err error) error {
	return ErrTenantContextUnavailable.Wrap(err)
}
