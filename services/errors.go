package services

import (
	"errors"
	"fmt"

	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/utils"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeInvalidCredentials ErrorType = "invalid_credentials"
	ErrorTypeTokenInvalid       ErrorType = "token_invalid"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeUnauthorized       ErrorType = "unauthorized"
	ErrorTypeForbidden          ErrorType = "forbidden"
	ErrorTypeConflict           ErrorType = "conflict"
	ErrorTypeProvider           ErrorType = "provider_error"
	ErrorTypePersistence        ErrorType = "persistence_error"
	ErrorTypeInternal           ErrorType = "internal"
)

// DomainError represents a structured error with additional context.
// Message is safe to show to clients; Err is not.
type DomainError struct {
	Type    ErrorType
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

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. Compare with errors.Is; never mutate them.

var (
	ErrInvalidCredentials = NewDomainError(ErrorTypeInvalidCredentials, "invalid email or password", nil)

	ErrTokenInvalid = NewDomainError(ErrorTypeTokenInvalid, "invalid access token", nil)

	ErrUserNotFound         = NewDomainError(ErrorTypeNotFound, "user not found", nil)
	ErrIdentityLinkNotFound = NewDomainError(ErrorTypeNotFound, "identity is not linked to a user", nil)

	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	ErrUnauthorized          = NewDomainError(ErrorTypeUnauthorized, "authentication required", nil)
	ErrForbidden             = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrIdentityAlreadyLinked = NewDomainError(ErrorTypeConflict, "identity already linked", nil)
	ErrAccountExists         = NewDomainError(ErrorTypeConflict, "an account with this email already exists", nil)

	ErrProviderUnavailable = NewDomainError(ErrorTypeProvider, "identity provider unavailable", nil)
	ErrDatabaseError       = NewDomainError(ErrorTypePersistence, "database error", nil)
	ErrInternal            = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// Error type checking helper functions

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsInvalidCredentialsError checks if an error is an invalid credentials error
func IsInvalidCredentialsError(err error) bool {
	return hasType(err, ErrorTypeInvalidCredentials)
}

// IsTokenInvalidError checks if an error is a token validation error
func IsTokenInvalidError(err error) bool {
	return hasType(err, ErrorTypeTokenInvalid)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return hasType(err, ErrorTypeForbidden)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsProviderError checks if an error came from the identity provider
func IsProviderError(err error) bool {
	return hasType(err, ErrorTypeProvider)
}

// IsPersistenceError checks if an error came from a local store
func IsPersistenceError(err error) bool {
	return hasType(err, ErrorTypePersistence)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
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

// GetPublicMessage returns the client-safe message of a domain error.
func GetPublicMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ""
}

// NewValidationError converts a struct validation failure into a validation
// DomainError with one detail per offending field.
func NewValidationError(err error) *DomainError {
	domainErr := NewDomainError(ErrorTypeValidation, "invalid input", err)
	for field, msg := range utils.GetValidationFields(err) {
		domainErr.WithDetail(field, msg)
	}
	return domainErr
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapProvider wraps an error as an identity provider error
func WrapProvider(message string, err error) error {
	return NewDomainError(ErrorTypeProvider, message, err)
}

// WrapPersistence wraps an error as a local store error
func WrapPersistence(message string, err error) error {
	return NewDomainError(ErrorTypePersistence, message, err)
}

// FromTokenError converts a verifier error into a DomainError.
// Key-set transport failures become provider errors; everything else is
// token_invalid with the reason in Details.
func FromTokenError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	var tokenErr *models.TokenError
	if !errors.As(err, &tokenErr) {
		return NewDomainError(ErrorTypeTokenInvalid, "invalid access token", err)
	}
	if tokenErr.IsTransport() {
		return NewDomainError(ErrorTypeProvider, "unable to fetch signing keys", err).
			WithDetail("reason", string(tokenErr.Reason))
	}

	message := "invalid access token"
	switch tokenErr.Reason {
	case models.TokenExpired:
		message = "access token expired"
	case models.TokenRevoked:
		message = "access token revoked"
	}
	return NewDomainError(ErrorTypeTokenInvalid, message, err).
		WithDetail("reason", string(tokenErr.Reason))
}
