// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("state conflict")
	ErrValidation = errors.New("validation failed")
	ErrExhausted  = errors.New("resource exhausted")
)

// RespondError maps transport-level errors to HTTP responses using RFC7807.
// Handlers translate their domain sentinels into these before calling.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, ErrExhausted):
		Problem(w, http.StatusConflict, "Insufficient Resources", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
