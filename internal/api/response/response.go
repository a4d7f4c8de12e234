// Package response writes the API's JSON envelopes. Every body carries a
// top-level success flag so clients branch on one field regardless of status.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openshelf/shelfscan/internal/apperr"
)

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes a success payload. The payload struct is expected to carry its
// own `success` field; handlers build them through the typed response structs.
func JSON(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// AppError maps a classified error to its HTTP status and code. Unclassified
// errors surface as a generic 500 without leaking internals.
func AppError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		Error(w, apperr.HTTPStatus(err), apperr.CodeOf(err), appErr.Msg, nil)
		return
	}
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
