package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/utils"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeNotFound,
				Message: "user not found",
				Err:     errors.New("db error"),
			},
			wantMsg: "not_found: user not found (db error)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeInvalidCredentials,
				Message: "invalid email or password",
			},
			wantMsg: "invalid_credentials: invalid email or password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same error type",
			err:    NewDomainError(ErrorTypeNotFound, "no link", nil),
			target: ErrUserNotFound,
			want:   true,
		},
		{
			name:   "different error type",
			err:    NewDomainError(ErrorTypeUnauthorized, "nope", nil),
			target: ErrForbidden,
			want:   false,
		},
		{
			name:   "not a domain error",
			err:    NewDomainError(ErrorTypeNotFound, "not found", nil),
			target: errors.New("regular error"),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeTokenInvalid, "invalid access token", nil)

	err.WithDetail("reason", "expired").WithDetail("kid", "k1")

	assert.Equal(t, "expired", err.Details["reason"])
	assert.Equal(t, "k1", err.Details["kid"])
}

func TestTypeCheckers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"invalid credentials", ErrInvalidCredentials, IsInvalidCredentialsError, true},
		{"token invalid", ErrTokenInvalid, IsTokenInvalidError, true},
		{"wrapped not found", fmt.Errorf("wrapped: %w", ErrIdentityLinkNotFound), IsNotFoundError, true},
		{"validation", ErrInvalidInput, IsValidationError, true},
		{"unauthorized", ErrUnauthorized, IsUnauthorizedError, true},
		{"forbidden", ErrForbidden, IsForbiddenError, true},
		{"conflict", ErrIdentityAlreadyLinked, IsConflictError, true},
		{"provider", ErrProviderUnavailable, IsProviderError, true},
		{"persistence", ErrDatabaseError, IsPersistenceError, true},
		{"internal", ErrInternal, IsInternalError, true},
		{"credentials are not token errors", ErrInvalidCredentials, IsTokenInvalidError, false},
		{"unauthorized is not forbidden", ErrUnauthorized, IsForbiddenError, false},
		{"regular error", errors.New("regular"), IsNotFoundError, false},
		{"nil error", nil, IsInternalError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"not found", ErrUserNotFound, ErrorTypeNotFound},
		{"persistence", ErrDatabaseError, ErrorTypePersistence},
		{"provider", ErrProviderUnavailable, ErrorTypeProvider},
		{"regular error", errors.New("regular"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorType(tt.err))
		})
	}
}

func TestGetErrorDetailsAndMessage(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", errors.New("pq: secret detail"))
	err.WithDetail("field", "email")

	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "email", details["field"])
	assert.Equal(t, "validation error", GetPublicMessage(err))

	regularErr := errors.New("regular error")
	assert.Nil(t, GetErrorDetails(regularErr))
	assert.Empty(t, GetPublicMessage(regularErr))
}

func TestWrapHelpers(t *testing.T) {
	baseErr := errors.New("connection refused")

	assert.True(t, IsInternalError(WrapInternal("boom", baseErr)))
	assert.True(t, IsProviderError(WrapProvider("cognito down", baseErr)))
	assert.True(t, IsPersistenceError(WrapPersistence("insert failed", baseErr)))

	wrapped := WrapError(ErrorTypeConflict, "duplicate", baseErr)
	var domainErr *DomainError
	require.True(t, errors.As(wrapped, &domainErr))
	assert.Equal(t, ErrorTypeConflict, domainErr.Type)
	assert.Equal(t, baseErr, errors.Unwrap(wrapped))
}

func TestFromTokenError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, FromTokenError(nil))
	})

	t.Run("expired token is token_invalid with reason", func(t *testing.T) {
		err := FromTokenError(models.NewTokenError(models.TokenExpired, errors.New("exp")))

		assert.True(t, IsTokenInvalidError(err))
		assert.Equal(t, "access token expired", GetPublicMessage(err))
		assert.Equal(t, "expired", GetErrorDetails(err)["reason"])
	})

	t.Run("signed out token is revoked, not expired", func(t *testing.T) {
		err := FromTokenError(models.NewTokenError(models.TokenRevoked, errors.New("session signed out")))

		assert.True(t, IsTokenInvalidError(err))
		assert.Equal(t, "access token revoked", GetPublicMessage(err))
		assert.Equal(t, "revoked", GetErrorDetails(err)["reason"])
	})

	t.Run("signature mismatch keeps its reason", func(t *testing.T) {
		err := FromTokenError(models.NewTokenError(models.TokenSignature, nil))

		assert.True(t, IsTokenInvalidError(err))
		assert.Equal(t, models.TokenSignature, models.TokenErrorReasonOf(err))
	})

	t.Run("transport failure is a provider error", func(t *testing.T) {
		err := FromTokenError(models.NewTokenError(models.TokenTransport, errors.New("timeout")))

		assert.True(t, IsProviderError(err))
		assert.False(t, IsTokenInvalidError(err))
	})

	t.Run("domain errors pass through", func(t *testing.T) {
		err := FromTokenError(ErrInternal)
		assert.Same(t, ErrInternal, err)
	})

	t.Run("unknown error is treated as invalid token", func(t *testing.T) {
		err := FromTokenError(errors.New("weird"))
		assert.True(t, IsTokenInvalidError(err))
	})
}

func TestNewValidationError(t *testing.T) {
	type input struct {
		Email string `json:"email" validate:"required,email"`
		Name  string `json:"name" validate:"required"`
	}

	err := NewValidationError(utils.ValidateStruct(input{Email: "nope"}))

	assert.True(t, IsValidationError(err))
	assert.Equal(t, "invalid input", GetPublicMessage(err))
	details := GetErrorDetails(err)
	require.Len(t, details, 2)
	assert.Equal(t, "must be a valid email address", details["email"])
	assert.Equal(t, "is required", details["name"])
}
