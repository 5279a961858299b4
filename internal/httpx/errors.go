package httpx

import (
	"net/http"

	"github.com/sundayezeilo/linkservice/internal/errx"
)

// ErrorKindToStatus maps errx.Kind to HTTP status codes.
// A backend failure is a 5xx, never folded into 404.
func ErrorKindToStatus(kind errx.Kind) int {
	switch kind {
	case errx.NotFound:
		return http.StatusNotFound
	case errx.Conflict:
		return http.StatusConflict
	case errx.Invalid:
		return http.StatusBadRequest
	case errx.Unavailable:
		return http.StatusServiceUnavailable
	case errx.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKindToMessage maps errx.Kind to the message placed in {"message": ...} bodies.
func ErrorKindToMessage(kind errx.Kind) string {
	switch kind {
	case errx.NotFound:
		return "not found"
	case errx.Conflict:
		return "conflict"
	case errx.Invalid:
		return "failed"
	case errx.Unavailable:
		return "unavailable"
	default:
		return "internal error"
	}
}
