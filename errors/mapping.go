package errors

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
)

// Close codes sent to a live connection rejected at establishment.
// 4xxx codes are reserved for applications by RFC 6455.
const (
	CloseUnauthenticated = 4401
	CloseForbidden       = 4403
)

// MapToHTTPStatus translates the error taxonomy into the status returned by the REST layer.
// Anything outside the taxonomy is an internal failure.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidContent),
		errors.Is(err, ErrInvalidParticipant),
		errors.Is(err, ErrInvalidRoom):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrResourceExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MapToCloseCode returns the close frame code used to reject a live connection.
func MapToCloseCode(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CloseUnauthenticated
	case errors.Is(err, ErrForbidden):
		return CloseForbidden
	case errors.Is(err, ErrResourceExhausted):
		return websocket.CloseTryAgainLater
	default:
		return websocket.CloseInternalServerErr
	}
}
