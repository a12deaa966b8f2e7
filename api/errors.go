package api

import (
	"errors"
	"net/http"

	"github.com/alwitt/ballotbox/models"
	"github.com/gin-gonic/gin"
)

// ErrForbidden caller's account type may not perform the operation
var ErrForbidden = errors.New("forbidden")

// Error kinds only raised by the HTTP layer
const (
	ErrorKindUnauthenticated models.ErrorKindENUMType = "UNAUTHENTICATED"
	ErrorKindForbidden       models.ErrorKindENUMType = "FORBIDDEN"
)

// ErrorResponse body of a failed request
type ErrorResponse struct {
	// Error human readable failure description
	Error string `json:"error"`
	// Kind failure category
	Kind models.ErrorKindENUMType `json:"kind"`
	// Retryable whether the caller may retry the request as is
	Retryable bool `json:"retryable"`
}

// classifyError map an error to its response status and kind
func classifyError(err error) (int, models.ErrorKindENUMType) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorKindUnauthenticated
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, ErrorKindForbidden
	}

	kind := models.ErrorKind(err)
	switch kind {
	case models.ErrorKindNotFound:
		return http.StatusNotFound, kind
	case models.ErrorKindConflict:
		return http.StatusConflict, kind
	case models.ErrorKindInvalidSignature:
		return http.StatusUnauthorized, kind
	case models.ErrorKindMalformedInput:
		return http.StatusBadRequest, kind
	case models.ErrorKindStateViolation:
		return http.StatusForbidden, kind
	case models.ErrorKindCryptoFailure:
		if models.IsRetryable(err) {
			return http.StatusServiceUnavailable, kind
		}
		return http.StatusInternalServerError, kind
	}
	return http.StatusInternalServerError, models.ErrorKindInternal
}

// writeError abort the request with the error response
func writeError(c *gin.Context, err error) {
	status, kind := classifyError(err)
	msg := err.Error()
	if kind == models.ErrorKindInternal || kind == models.ErrorKindCryptoFailure {
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: msg, Kind: kind, Retryable: models.IsRetryable(err),
	})
}
