// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version    string
	imageEdits bool
}

// NewHealthHandler creates a new health handler. imageEdits reports whether
// an image edit service is configured.
func NewHealthHandler(version string, imageEdits bool) HealthHandler {
	return &HealthHandlerImpl{
		version:    version,
		imageEdits: imageEdits,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"version":    h.version,
		"imageEdits": h.imageEdits,
	})
}
