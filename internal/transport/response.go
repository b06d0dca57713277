// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the chat backend API.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/pitabwire/aduan/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:          http.StatusBadRequest,
	model.ErrValidationError:     http.StatusUnprocessableEntity,
	model.ErrNotFound:            http.StatusNotFound,
	model.ErrConflict:            http.StatusConflict,
	model.ErrInternalError:       http.StatusInternalServerError,
	model.ErrStoreUnavailable:    http.StatusServiceUnavailable,
	model.ErrSessionNotFound:     http.StatusNotFound,
	model.ErrSessionExpired:      http.StatusGone,
	model.ErrWorkflowNotFound:    http.StatusNotFound,
	model.ErrInvalidWorkflowStep: http.StatusUnprocessableEntity,
	model.ErrCleanupFailed:       http.StatusInternalServerError,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an ErrorEnvelope as a JSON response with the correct
// HTTP status code. Anything that is not an *ErrorEnvelope collapses to a
// generic 500 so internal detail never reaches the client.
func WriteError(w http.ResponseWriter, err error) {
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok {
		ee = model.NewInternalError()
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}

// WriteValidationError writes a 422 error response with field-level detail.
func WriteValidationError(w http.ResponseWriter, details []model.FieldError) {
	WriteError(w, model.NewValidationError(details))
}
