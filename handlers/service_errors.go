package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/campaign-gateway/services"
	"github.com/upb/campaign-gateway/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses.
// Anything that is not a DomainError is reported as a generic internal error.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	if utils.IsValidationError(err) {
		HandleValidationError(w, err, logger)
		return
	}

	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) {
		logger.Error("unhandled error type", zap.Error(err))
		domainErr = services.ErrInternal
	}

	switch domainErr.Type {
	case services.ErrorTypeIsolation:
		logger.Error("tenant isolation failure", zap.String("code", domainErr.Code), zap.Error(err))
	case services.ErrorTypeInternal:
		logger.Error("internal server error", zap.Error(err))
	default:
		logger.Debug("handled service error",
			zap.String("type", string(domainErr.Type)),
			zap.String("code", domainErr.Code),
			zap.Any("details", domainErr.Details))
	}

	if err := utils.WriteDomainError(w, domainErr); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	details := make(map[string]interface{})
	for k, v := range utils.GetValidationFields(err) {
		details[k] = v
	}
	if len(details) == 0 {
		details = nil
	}

	if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
