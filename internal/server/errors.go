package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clipstream/internal/apperr"
)

// ErrorResponse is the JSON body for all error replies.
type ErrorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
// PartialFailure is a 500 distinguished from Unavailable (503) by its
// kind: the edge write landed but a counter did not, and reconciliation
// will repair it.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindValidation, apperr.KindInvalidCursor:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindQuotaExceeded:
		return http.StatusRequestEntityTooLarge
	case apperr.KindUnsupportedType:
		return http.StatusUnsupportedMediaType
	case apperr.KindUploadIncomplete:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the mapped status and body for any error.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	c.Error(err)
	c.JSON(statusFor(kind), ErrorResponse{
		Error: apperr.Message(err),
		Kind:  kind,
	})
}
