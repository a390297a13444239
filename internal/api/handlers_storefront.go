// handlers_storefront.go - Public hotspot lookup
package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/storefront-admin/backend/internal/geometry"
	"github.com/storefront-admin/backend/internal/models"
)

// StorefrontHandlerImpl implements the StorefrontHandler interface
type StorefrontHandlerImpl struct {
	maps MapService
}

// NewStorefrontHandler creates a new storefront handler
func NewStorefrontHandler(maps MapService) StorefrontHandler {
	return &StorefrontHandlerImpl{maps: maps}
}

// HotspotResponse is the result of a storefront click lookup.
type HotspotResponse struct {
	Hit         bool   `json:"hit"`
	MapID       string `json:"mapId"`
	AreaID      int64  `json:"areaId,omitempty"`
	Label       string `json:"label,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// HandleHotspot hit-tests a normalized point against the room's active map.
// Inactive areas are skipped; a room without an active map is a 404.
func (h *StorefrontHandlerImpl) HandleHotspot(c echo.Context) error {
	roomID := c.Param("roomId")
	x, err := parseCoordinate(c.QueryParam("x"))
	if err != nil {
		return NewValidationError("x")
	}
	y, err := parseCoordinate(c.QueryParam("y"))
	if err != nil {
		return NewValidationError("y")
	}

	m, err := h.maps.LoadMap(c.Request().Context(), roomID, "")
	if err != nil {
		return FromDomainError(err)
	}
	if m.IsDraft() {
		return NewNotFoundError("active map for room", roomID)
	}

	resp := HotspotResponse{MapID: m.ID}
	if area, ok := geometry.TopmostActiveHit(models.Point{X: x, Y: y}, m.Areas); ok {
		resp.Hit = true
		resp.AreaID = area.ID
		resp.Label = area.Label
		resp.Destination = area.Destination
	}
	return c.JSON(http.StatusOK, resp)
}

func parseCoordinate(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}
