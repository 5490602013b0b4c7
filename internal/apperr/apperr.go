package apperr

import (
	"errors"
	"net/http"
)

// Sentinel errors for the chat API. Handlers map these to status codes;
// everything else is a 500.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Validation wraps a human-readable reason so the caller sees why the
// request was rejected, while errors.Is(err, ErrValidation) still holds.
func Validation(reason string) error {
	return &wrapped{sentinel: ErrValidation, reason: reason}
}

func Forbidden(reason string) error {
	return &wrapped{sentinel: ErrForbidden, reason: reason}
}

type wrapped struct {
	sentinel error
	reason   string
}

func (w *wrapped) Error() string { return w.reason }
func (w *wrapped) Unwrap() error { return w.sentinel }

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
