package utils

import (
	"net/http"

	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services"
	"go.uber.org/zap"
)

// WriteServiceError maps a domain error to a response and returns the status
// written. Only the domain message reaches the client; wrapped causes are logged.
func WriteServiceError(w http.ResponseWriter, err error, logger *zap.Logger) int {
	if err == nil {
		return 0
	}

	msg := services.PublicMessage(err)
	details := services.GetErrorDetails(err)
	status := http.StatusInternalServerError
	var writeErr error

	switch {
	case services.IsNotFoundError(err):
		status = http.StatusNotFound
		writeErr = WriteNotFound(w, msg)

	case services.IsValidationError(err):
		status = http.StatusBadRequest
		writeErr = WriteBadRequest(w, msg, details)

	case services.IsUnauthorizedError(err):
		status = http.StatusUnauthorized
		writeErr = WriteUnauthorized(w, msg)

	case services.IsConflictError(err):
		status = http.StatusConflict
		writeErr = WriteConflict(w, msg, details)

	case services.IsExternalError(err):
		logger.Warn("external provider error", zap.Error(err))
		status = http.StatusBadGateway
		writeErr = WriteJSON(w, status, ErrorResponse{
			Error:   "bad_gateway",
			Message: msg,
		})

	case services.IsUnavailableError(err), services.IsInternalError(err):
		logger.Error("service error", zap.Error(err))
		writeErr = WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type", zap.Error(err))
		writeErr = WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
	return status
}

// WriteValidationError writes a 400 for a request body that failed ValidateStruct
// or could not be decoded.
func WriteValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	message := err.Error()
	var details map[string]interface{}
	if IsValidationError(err) {
		message = "Validation failed"
		details = make(map[string]interface{})
		for k, v := range GetValidationFields(err) {
			details[k] = v
		}
	}

	if err := WriteBadRequest(w, message, details); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
