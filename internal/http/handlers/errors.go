// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants and the translation of
// service errors into HTTP responses. Every business-rule failure returned by
// the services wraps one of five kinds; serviceError maps the kind to a
// status and a stable code while keeping the specific message:
//
//	services.ErrUnauthenticated  → 401 unauthorized
//	services.ErrNotAuthorized    → 403 forbidden
//	services.ErrNotFound         → 404 not_found
//	services.ErrInvalidArgument  → 400 bad_request
//	services.ErrConflictState    → 409 conflict
//	anything else                → 500 internal_error (logged, message hidden)
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "friend request already sent"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/worldfriends-backend/internal/http/middleware"
	"github.com/tbourn/worldfriends-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"

	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// serviceError writes the response for an error returned by a service.
func serviceError(c *gin.Context, err error) {
	var se *services.Error
	if !errors.As(err, &se) {
		middleware.LoggerFrom(c).Error().Err(err).Str("route", c.FullPath()).Msg("unhandled service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, se.Msg)
	case errors.Is(err, services.ErrNotAuthorized):
		fail(c, http.StatusForbidden, ErrCodeForbidden, se.Msg)
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, se.Msg)
	case errors.Is(err, services.ErrInvalidArgument):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, se.Msg)
	case errors.Is(err, services.ErrConflictState):
		fail(c, http.StatusConflict, ErrCodeConflict, se.Msg)
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
