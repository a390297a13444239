package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/storefront-admin/backend/internal/imagery"
	"github.com/storefront-admin/backend/internal/models"
)

// APIError is the JSON body of every failed request. Status is carried on
// the response line only.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func newAPIError(status int, code, message string, cause error) *APIError {
	e := &APIError{Status: status, Code: code, Message: message}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewBadRequestError reports a request the handler could not decode.
func NewBadRequestError(message string, cause error) *APIError {
	return newAPIError(http.StatusBadRequest, "BAD_REQUEST", message, cause)
}

// NewValidationError reports a missing or malformed request field.
func NewValidationError(field string) *APIError {
	return newAPIError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid value for "+field, nil)
}

func NewNotFoundError(resource, id string) *APIError {
	return newAPIError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("no %s for %q", resource, id), nil)
}

func NewInternalError(message string, cause error) *APIError {
	return newAPIError(http.StatusInternalServerError, "INTERNAL_ERROR", message, cause)
}

// domainErrors maps sentinel errors onto HTTP status and code, checked in
// order.
var domainErrors = []struct {
	err    error
	status int
	code   string
}{
	{models.ErrInvalidGeometry, http.StatusBadRequest, "INVALID_GEOMETRY"},
	{models.ErrInvalidMap, http.StatusBadRequest, "INVALID_MAP"},
	{imagery.ErrUnsupportedImage, http.StatusBadRequest, "UNSUPPORTED_IMAGE"},
	{imagery.ErrInvalidEdit, http.StatusBadRequest, "INVALID_EDIT"},
	{models.ErrActiveMapDeletion, http.StatusConflict, "ACTIVE_MAP_DELETION"},
	{models.ErrConflictingActivation, http.StatusConflict, "CONFLICTING_ACTIVATION"},
	{models.ErrStaleMap, http.StatusConflict, "STALE_MAP"},
	{models.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{imagery.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
	{models.ErrPersistence, http.StatusServiceUnavailable, "PERSISTENCE_FAILURE"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "TIMEOUT"},
}

// FromDomainError converts an error returned by the domain packages into an
// APIError. Unrecognised errors become 500s.
func FromDomainError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			return newAPIError(d.status, d.code, d.err.Error(), err)
		}
	}
	return NewInternalError("An unexpected error occurred", err)
}

// ErrorHandler is installed as echo's HTTPErrorHandler. Server-side
// failures are logged; HEAD requests get the status only.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	apiErr := FromDomainError(err)
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		apiErr = newAPIError(httpErr.Code, "HTTP_ERROR", fmt.Sprint(httpErr.Message), nil)
	}

	if apiErr.Status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"code", apiErr.Code,
			"error", err,
		)
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}
