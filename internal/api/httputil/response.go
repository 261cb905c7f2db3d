// Package httputil holds the echo response helpers shared by every
// Ingest Facade handler: one envelope shape, one error constructor per
// HTTP status, grounded on the teacher's
// internal/service/api/httputil/response.go (NewXxxError wrapping
// echo.NewHTTPError, NewSuccessResponse for the 200 case).
package httputil

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/cellbridge/sms-bridge/internal/pkg/errors"
	applog "github.com/cellbridge/sms-bridge/pkg/log"
)

const component = "api.error_handler"

// Envelope is the standard response body: {success, message, data?}.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// OK writes a 200 response with data attached.
func OK(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 response with data attached.
func Created(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Message writes a 200 response with only a message, no data payload.
func Message(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Message: message})
}

// NewBadRequestError builds a 400 echo.HTTPError in the standard envelope.
func NewBadRequestError(message string) error {
	return echo.NewHTTPError(http.StatusBadRequest, Envelope{Success: false, Message: message})
}

// NewUnauthorizedError builds a 401 echo.HTTPError.
func NewUnauthorizedError(message string) error {
	return echo.NewHTTPError(http.StatusUnauthorized, Envelope{Success: false, Message: message})
}

// NewConflictError builds a 409 echo.HTTPError.
func NewConflictError(message string) error {
	return echo.NewHTTPError(http.StatusConflict, Envelope{Success: false, Message: message})
}

// NewNotFoundError builds a 404 echo.HTTPError.
func NewNotFoundError(message string) error {
	return echo.NewHTTPError(http.StatusNotFound, Envelope{Success: false, Message: message})
}

// NewTooManyRequestsError builds a 429 echo.HTTPError.
func NewTooManyRequestsError(message string) error {
	return echo.NewHTTPError(http.StatusTooManyRequests, Envelope{Success: false, Message: message})
}

// NewServiceUnavailableError builds a 503 echo.HTTPError.
func NewServiceUnavailableError(message string) error {
	return echo.NewHTTPError(http.StatusServiceUnavailable, Envelope{Success: false, Message: message})
}

// NewInternalServerError builds a 500 echo.HTTPError.
func NewInternalServerError(message string) error {
	return echo.NewHTTPError(http.StatusInternalServerError, Envelope{Success: false, Message: message})
}

// FromAppError maps an apperrors.ErrorType to the matching echo.HTTPError,
// so every handler can funnel a facade error through one switch instead
// of reimplementing the mapping per endpoint.
func FromAppError(err error) error {
	message := err.Error()
	switch apperrors.GetType(err) {
	case apperrors.InvalidInput:
		return NewBadRequestError(message)
	case apperrors.Unauthorized:
		return NewUnauthorizedError(message)
	case apperrors.Conflict:
		return NewConflictError(message)
	case apperrors.NotFound:
		return NewNotFoundError(message)
	case apperrors.Unavailable:
		return NewServiceUnavailableError(message)
	default:
		return NewInternalServerError(message)
	}
}

// ErrorHandler is echo's global error handler: it converts any error —
// an *echo.HTTPError from one of the NewXxxError constructors, or
// anything else a handler returned unwrapped — into the standard
// Envelope JSON body, logging 5xx at error level and 4xx at warn.
func ErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	message := "internal server error"

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if env, ok := he.Message.(Envelope); ok {
			message = env.Message
		} else if msg, ok := he.Message.(string); ok {
			message = msg
		}
	}

	fields := applog.Fields{
		"path":       c.Request().URL.Path,
		"method":     c.Request().Method,
		"status":     code,
		"error":      err,
		"remote_ip":  c.RealIP(),
		"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
	}
	if code >= http.StatusInternalServerError {
		applog.WithComponentAndFields(component, fields).Error("http 5xx")
	} else if code >= http.StatusBadRequest {
		applog.WithComponentAndFields(component, fields).Warn("http 4xx")
	}

	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, Envelope{Success: false, Message: message})
}
