package handlers

import (
	"errors"
	"net/http"
	"sort"

	"github.com/upb/sso-gateway/services"
	"github.com/upb/sso-gateway/utils"
	"go.uber.org/zap"
)

// statusByType maps each domain error type to its HTTP status
var statusByType = map[services.ErrorType]int{
	services.ErrorTypeInput:         http.StatusBadRequest,
	services.ErrorTypeClaims:        http.StatusBadRequest,
	services.ErrorTypeCrypto:        http.StatusUnauthorized,
	services.ErrorTypeUnauthorized:  http.StatusUnauthorized,
	services.ErrorTypePolicy:        http.StatusForbidden,
	services.ErrorTypeConfiguration: http.StatusInternalServerError,
	services.ErrorTypeInternal:      http.StatusInternalServerError,
	services.ErrorTypeCanceled:      http.StatusServiceUnavailable,
}

// StatusFor returns the HTTP status for a service error
func StatusFor(err error) int {
	if status, ok := statusByType[services.GetErrorType(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleServiceError maps domain errors to HTTP responses. Only the public
// message and code reach the client; the service has already logged the cause.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status := StatusFor(err)

	var writeErr error
	switch {
	case services.IsPolicyError(err):
		// denial reasons stay in the logs and the audit trail
		writeErr = utils.WriteForbidden(w, services.ErrAccessDenied.Message)

	case status == http.StatusInternalServerError:
		if services.GetErrorType(err) == "" {
			logger.Error("unhandled error type", zap.Error(err))
		}
		writeErr = utils.WriteInternalServerError(w, services.ErrInternal.Message)

	default:
		writeErr = utils.WriteError(w, status, publicMessage(err), services.GetErrorCode(err))
	}

	if writeErr != nil {
		logger.Error("failed to write error response",
			zap.Int("status", status),
			zap.Error(writeErr))
	}
}

// HandleValidationError answers a request body that could not be decoded or
// failed DTO validation.
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	message := "Invalid request body"
	if fields := utils.GetValidationFields(err); len(fields) > 0 {
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		message = fields[names[0]]
	}
	logger.Debug("request validation failed", zap.Error(err))
	if err := utils.WriteBadRequest(w, message, services.CodeInvalidInput); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

func publicMessage(err error) string {
	var derr *services.DomainError
	if errors.As(err, &derr) && derr.Message != "" {
		return derr.Message
	}
	return services.ErrInternal.Message
}
