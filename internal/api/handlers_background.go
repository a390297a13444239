// handlers_background.go - Room background and asset handlers
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/storefront-admin/backend/internal/imagery"
	"github.com/storefront-admin/backend/internal/models"
	"github.com/storefront-admin/backend/internal/storage"
)

// BackgroundHandlerImpl implements the BackgroundHandler interface
type BackgroundHandlerImpl struct {
	images imagery.Provider
	assets storage.Store
}

// NewBackgroundHandler creates a new background handler
func NewBackgroundHandler(images imagery.Provider, assets storage.Store) BackgroundHandler {
	return &BackgroundHandlerImpl{
		images: images,
		assets: assets,
	}
}

// HandleGetBackground returns the room's resolved background image
func (h *BackgroundHandlerImpl) HandleGetBackground(c echo.Context) error {
	roomID := c.Param("roomId")
	img, err := h.images.Resolve(c.Request().Context(), roomID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return NewNotFoundError("background", roomID)
		}
		return FromDomainError(err)
	}
	return c.JSON(http.StatusOK, img)
}

// HandleUploadBackground stores a multipart "file" upload and makes it the
// room's background
func (h *BackgroundHandlerImpl) HandleUploadBackground(c echo.Context) error {
	ctx := c.Request().Context()
	roomID := c.Param("roomId")

	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	// Generic browser content types are replaced by the decoded format
	contentType := file.Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(contentType, "image/") {
		contentType = ""
	}

	uploaded, err := h.images.Upload(ctx, file.Filename, contentType, src)
	if err != nil {
		return FromDomainError(err)
	}
	img, err := h.images.Replace(ctx, roomID, uploaded.Ref)
	if err != nil {
		return FromDomainError(err)
	}
	return c.JSON(http.StatusCreated, img)
}

// HandleGetAsset streams a stored image
func (h *BackgroundHandlerImpl) HandleGetAsset(c echo.Context) error {
	id := c.Param("id")
	meta, err := h.assets.Get(id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return NewNotFoundError("asset", id)
		}
		return FromDomainError(err)
	}

	rc, err := h.assets.Open(id)
	if err != nil {
		return FromDomainError(err)
	}
	defer rc.Close()

	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
