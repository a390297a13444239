// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/storefront-admin/backend/internal/models"
)

// MapHandler handles boundary map persistence operations
type MapHandler interface {
	HandleListMaps(c echo.Context) error
	HandleGetActiveMap(c echo.Context) error
	HandleGetMap(c echo.Context) error
	HandleSaveMap(c echo.Context) error
	HandleActivateMap(c echo.Context) error
	HandleClearActivation(c echo.Context) error
	HandleRenameMap(c echo.Context) error
	HandleDeleteMap(c echo.Context) error
	HandleGetMapMsgpack(c echo.Context) error
	HandleExportMap(c echo.Context) error
	HandleImportMap(c echo.Context) error
}

// BackgroundHandler handles room background images and asset content
type BackgroundHandler interface {
	HandleGetBackground(c echo.Context) error
	HandleUploadBackground(c echo.Context) error
	HandleGetAsset(c echo.Context) error
}

// StorefrontHandler serves the public hotspot lookup
type StorefrontHandler interface {
	HandleHotspot(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// MapService is the boundary map repository as seen by the HTTP layer.
// This allows mocking in tests
type MapService interface {
	ListMaps(ctx context.Context, roomID string) ([]models.MapSummary, error)
	LoadMap(ctx context.Context, roomID, mapID string) (*models.BoundaryMap, error)
	SaveMap(ctx context.Context, draft *models.BoundaryMap) (*models.BoundaryMap, error)
	ActivateMap(ctx context.Context, roomID, mapID string) error
	ClearActivation(ctx context.Context, roomID string) error
	RenameMap(ctx context.Context, mapID, name string) (*models.BoundaryMap, error)
	DeleteMap(ctx context.Context, mapID string) error
}
