package utils

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/upb/campaign-gateway/services"
)

// ErrorResponse is the failure envelope shared by every endpoint.
// Optional fields are omitted when empty.
type ErrorResponse struct {
	Success     bool                   `json:"success"`
	Message     string                 `json:"message"`
	Code        string                 `json:"code,omitempty"`
	ForceLogout bool                   `json:"forceLogout,omitempty"`
	RedirectTo  string                 `json:"redirectTo,omitempty"`
	Feature     string                 `json:"feature,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response with optional data
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Success: true, Data: data})
}

// WriteCreated writes a 201 Created response with optional data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{Success: true, Data: data})
}

// WriteNoContent writes a 204 No Content response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// StatusFor maps an error type to its HTTP status
func StatusFor(errType services.ErrorType) int {
	switch errType {
	case services.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorTypeForbidden:
		return http.StatusForbidden
	case services.ErrorTypeNotFound:
		return http.StatusNotFound
	case services.ErrorTypeValidation:
		return http.StatusBadRequest
	case services.ErrorTypeConflict:
		return http.StatusConflict
	case services.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse builds the failure envelope of a domain error.
// Internal and isolation failures never expose their cause.
func NewErrorResponse(err *services.DomainError) ErrorResponse {
	resp := ErrorResponse{
		Message: err.Message,
		Code:    err.Code,
	}
	if err.Type == services.ErrorTypeInternal || err.Type == services.ErrorTypeIsolation {
		return resp
	}

	for k, v := range err.Details {
		switch k {
		case services.DetailForceLogout:
			resp.ForceLogout, _ = v.(bool)
		case services.DetailRedirectTo:
			resp.RedirectTo, _ = v.(string)
		case services.DetailFeature:
			resp.Feature, _ = v.(string)
		default:
			if resp.Details == nil {
				resp.Details = make(map[string]interface{})
			}
			resp.Details[k] = v
		}
	}
	return resp
}

// WriteDomainError writes err with the status of its type
func WriteDomainError(w http.ResponseWriter, err *services.DomainError) error {
	if seconds, ok := err.Details[services.DetailRetryAfter].(int); ok && seconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	return WriteJSON(w, StatusFor(err.Type), NewErrorResponse(err))
}

// WriteBadRequest writes a 400 Bad Request response with field details
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Message: message,
		Code:    services.CodeValidationFailed,
		Details: details,
	})
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Internal server error"
	}
	return WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Message: message,
		Code:    services.CodeInternal,
	})
}

// Normalizer is implemented by request bodies that canonicalize their fields
// before validation.
type Normalizer interface {
	Normalize()
}

// DecodeJSON decodes a request body into dst, normalizes it when dst is a
// Normalizer, and validates it. Unknown fields are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &ValidationError{Message: "malformed request body", Fields: map[string]string{"body": err.Error()}}
	}
	if n, ok := dst.(Normalizer); ok {
		n.Normalize()
	}
	return ValidateStruct(dst)
}
