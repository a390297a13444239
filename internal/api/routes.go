// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/storefront-admin/backend/internal/imagery"
	"github.com/storefront-admin/backend/internal/notify"
	"github.com/storefront-admin/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Maps    MapService
	Assets  storage.Store
	Images  imagery.Provider
	Edits   *imagery.EditManager
	Notices *notify.Recorder
	Version string
}

// Handlers holds all handler instances
type Handlers struct {
	Health     HealthHandler
	Map        MapHandler
	Background BackgroundHandler
	Storefront StorefrontHandler
	Edits      *EditHub
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	h := &Handlers{
		Health:     NewHealthHandler(deps.Version, deps.Edits != nil),
		Map:        NewMapHandler(deps.Maps),
		Background: NewBackgroundHandler(deps.Images, deps.Assets),
		Storefront: NewStorefrontHandler(deps.Maps),
	}
	if deps.Edits != nil {
		h.Edits = NewEditHub(deps.Edits, deps.Notices)
	}
	return h
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Boundary map routes. Static segments win over :mapId in echo's router.
	maps := apiGroup.Group("/rooms/:roomId/maps")
	maps.GET("", handlers.Map.HandleListMaps)
	maps.POST("", handlers.Map.HandleSaveMap)
	maps.GET("/active", handlers.Map.HandleGetActiveMap)
	maps.POST("/active/clear", handlers.Map.HandleClearActivation)
	maps.POST("/import", handlers.Map.HandleImportMap)
	maps.GET("/:mapId", handlers.Map.HandleGetMap)
	maps.DELETE("/:mapId", handlers.Map.HandleDeleteMap)
	maps.POST("/:mapId/activate", handlers.Map.HandleActivateMap)
	maps.POST("/:mapId/rename", handlers.Map.HandleRenameMap)
	maps.GET("/:mapId/msgpack", handlers.Map.HandleGetMapMsgpack)
	maps.GET("/:mapId/export", handlers.Map.HandleExportMap)

	// Background routes
	apiGroup.GET("/rooms/:roomId/background", handlers.Background.HandleGetBackground)
	apiGroup.POST("/rooms/:roomId/background", handlers.Background.HandleUploadBackground)
	apiGroup.GET("/assets/:id", handlers.Background.HandleGetAsset)

	// Public storefront lookup
	apiGroup.GET("/storefront/rooms/:roomId/hotspot", handlers.Storefront.HandleHotspot)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	if handlers.Edits == nil {
		return
	}
	e.GET("/api/ws/image-edits", handlers.Edits.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}
