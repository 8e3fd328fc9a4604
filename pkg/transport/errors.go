package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wingman-dev/wingman/pkg/api"
)

// ErrorResponse is the JSON wrapper for error payloads.
type ErrorResponse struct {
	Error *api.Error `json:"error"`
}

// HTTPStatusFromError maps a taxonomy error kind to the corresponding
// HTTP status code. Transport-level errors (body too large, unsupported
// content type) are handled separately by the HTTP adapter.
func HTTPStatusFromError(err *api.Error) int {
	switch err.Kind {
	case api.ErrorInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorProviderRateLimited:
		return http.StatusTooManyRequests
	case api.ErrorTimeout, api.ErrorProviderTimeout:
		return http.StatusGatewayTimeout
	case api.ErrorProviderUnavailable, api.ErrorUnparsableOutput:
		return http.StatusBadGateway
	case api.ErrorCapabilityUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a JSON error response with the given status
// code. It sets the Content-Type header before writing.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.Error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: apiErr})
}

// WriteError writes an error response, deriving the HTTP status code
// from the error kind. Errors outside the taxonomy are reported as
// internal.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		apiErr = api.NewInternal(err.Error())
	}
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
