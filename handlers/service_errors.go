package handlers

import (
	"net/http"

	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/services"
	"github.com/upb/identity-core/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses. Only the error's
// public message and details reach the client; the wrapped cause is logged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	errType := services.GetErrorType(err)
	message := services.GetPublicMessage(err)
	details := services.GetErrorDetails(err)
	if len(details) == 0 {
		details = nil
	}

	status := http.StatusInternalServerError
	switch errType {
	case services.ErrorTypeInvalidCredentials, services.ErrorTypeTokenInvalid, services.ErrorTypeUnauthorized:
		status = http.StatusUnauthorized
	case services.ErrorTypeForbidden:
		status = http.StatusForbidden
	case services.ErrorTypeNotFound:
		status = http.StatusNotFound
	case services.ErrorTypeValidation:
		status = http.StatusBadRequest
	case services.ErrorTypeConflict:
		status = http.StatusConflict
	case services.ErrorTypeProvider:
		status = http.StatusBadGateway
		if models.TokenErrorReasonOf(err) == models.TokenTransport {
			status = http.StatusServiceUnavailable
		}
		details = nil
	case services.ErrorTypePersistence, services.ErrorTypeInternal:
		logger.Error("internal server error", zap.Error(err), zap.String("error_type", string(errType)))
		message = "An internal error occurred"
		details = nil
	default:
		logger.Error("unhandled error type", zap.Error(err))
		errType = services.ErrorTypeInternal
		message = "An unexpected error occurred"
		details = nil
	}

	if status < http.StatusInternalServerError {
		logger.Debug("handled service error",
			zap.String("type", string(errType)),
			zap.Int("status", status),
			zap.Error(err))
	} else if errType == services.ErrorTypeProvider {
		logger.Warn("identity provider failure", zap.Error(err))
	}

	if err := utils.WriteJSON(w, status, utils.ErrorResponse{
		Error:   string(errType),
		Message: message,
		Details: details,
	}); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// ErrorWriter adapts HandleServiceError to the middleware's error writer
func ErrorWriter(logger *zap.Logger) func(http.ResponseWriter, error) {
	return func(w http.ResponseWriter, err error) {
		HandleServiceError(w, err, logger)
	}
}
