package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// mapErrorToHTTPStatus maps service errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrNoActiveOffer):
		return http.StatusNotFound

	case errors.Is(err, service.ErrNoPendingDecline):
		return http.StatusConflict

	case errors.Is(err, service.ErrAgentStopped):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
