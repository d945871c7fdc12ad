// Package httpkit provides HTTP response utilities.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"errors"
	"net/http"

	"segmentation_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

const msgInternalError = "internal server error"

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// Error sends an error response with the given status code and message.
func Error(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// OK sends a 200 OK response with the given payload.
func OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// HandleError maps domain errors to HTTP responses.
// Returns true if an error was handled, false otherwise.
func HandleError(c *gin.Context, err error) bool {
	return HandleErrorWithFallback(c, err, msgInternalError)
}

// HandleErrorWithFallback maps domain errors to HTTP responses.
// Client-caused kinds (validation, not found, conflict, ...) expose their
// message; upstream and unknown failures respond with failureMessage only so
// callers can tell a bad request from a server-side failure.
func HandleErrorWithFallback(c *gin.Context, err error, failureMessage string) bool {
	if err == nil {
		return false
	}

	var domainErr *apperr.Error
	if !errors.As(err, &domainErr) {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: failureMessage})
		return true
	}

	switch domainErr.Kind {
	case apperr.KindUpstreamRead, apperr.KindUpstreamWrite, apperr.KindInternal, apperr.KindUnknown:
		c.JSON(domainErr.HTTPStatus(), ErrorResponse{Error: failureMessage})
	default:
		c.JSON(domainErr.HTTPStatus(), ErrorResponse{Error: domainErr.Message})
	}
	return true
}
