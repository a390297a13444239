// handlers_map.go - Boundary map operation handlers
package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/storefront-admin/backend/internal/boundarymap"
	"github.com/storefront-admin/backend/internal/models"
)

// maxDocumentBytes caps an imported YAML document.
const maxDocumentBytes = 4 << 20

// MapHandlerImpl implements the MapHandler interface
type MapHandlerImpl struct {
	maps MapService
}

// NewMapHandler creates a new map handler instance
func NewMapHandler(maps MapService) MapHandler {
	return &MapHandlerImpl{maps: maps}
}

// HandleListMaps returns summaries of a room's maps ordered by creation time
func (h *MapHandlerImpl) HandleListMaps(c echo.Context) error {
	list, err := h.maps.ListMaps(c.Request().Context(), c.Param("roomId"))
	if err != nil {
		return FromDomainError(err)
	}
	return c.JSON(http.StatusOK, list)
}

// HandleGetActiveMap returns the room's active map, or an empty draft
func (h *MapHandlerImpl) HandleGetActiveMap(c echo.Context) error {
	m, err := h.maps.LoadMap(c.Request().Context(), c.Param("roomId"), "")
	if err != nil {
		return FromDomainError(err)
	}
	return c.JSON(http.StatusOK, m)
}

// HandleGetMap returns one map of the room
func (h *MapHandlerImpl) HandleGetMap(c echo.Context) error {
	m, err := h.roomMap(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// HandleSaveMap creates a map (no id) or overwrites one in place
func (h *MapHandlerImpl) HandleSaveMap(c echo.Context) error {
	var draft models.BoundaryMap
	if err := c.Bind(&draft); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	roomID := c.Param("roomId")
	if draft.RoomID != "" && draft.RoomID != roomID {
		return NewBadRequestError(fmt.Sprintf("map belongs to room %s, not %s", draft.RoomID, roomID), nil)
	}
	draft.RoomID = roomID
	if draft.Areas == nil {
		draft.Areas = make([]models.Area, 0)
	}
	creating := draft.IsDraft()

	saved, err := h.maps.SaveMap(c.Request().Context(), &draft)
	if err != nil {
		return FromDomainError(err)
	}
	if creating {
		return c.JSON(http.StatusCreated, saved)
	}
	return c.JSON(http.StatusOK, saved)
}

// HandleActivateMap makes the map the room's only active map
func (h *MapHandlerImpl) HandleActivateMap(c echo.Context) error {
	roomID, mapID := c.Param("roomId"), c.Param("mapId")
	if err := h.maps.ActivateMap(c.Request().Context(), roomID, mapID); err != nil {
		return FromDomainError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"roomId": roomID,
		"mapId":  mapID,
		"active": true,
	})
}

// HandleClearActivation leaves the room without an active map
func (h *MapHandlerImpl) HandleClearActivation(c echo.Context) error {
	if err := h.maps.ClearActivation(c.Request().Context(), c.Param("roomId")); err != nil {
		return FromDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleRenameMap changes a map's name
func (h *MapHandlerImpl) HandleRenameMap(c echo.Context) error {
	var req renameMapRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}
	if _, err := h.roomMap(c); err != nil {
		return err
	}

	m, err := h.maps.RenameMap(c.Request().Context(), c.Param("mapId"), req.Name)
	if err != nil {
		return FromDomainError(err)
	}
	return c.JSON(http.StatusOK, m)
}

// HandleDeleteMap removes a map; the active map cannot be deleted
func (h *MapHandlerImpl) HandleDeleteMap(c echo.Context) error {
	if _, err := h.roomMap(c); err != nil {
		return err
	}
	if err := h.maps.DeleteMap(c.Request().Context(), c.Param("mapId")); err != nil {
		return FromDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleGetMapMsgpack returns the full map msgpack-encoded
func (h *MapHandlerImpl) HandleGetMapMsgpack(c echo.Context) error {
	m, err := h.roomMap(c)
	if err != nil {
		return err
	}
	data, err := boundarymap.EncodeMap(m)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleExportMap returns the map as a YAML document download
func (h *MapHandlerImpl) HandleExportMap(c echo.Context) error {
	m, err := h.roomMap(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := boundarymap.ExportYAML(&buf, m); err != nil {
		return NewInternalError("failed to export map", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", exportFileName(m)))
	return c.Blob(http.StatusOK, "application/x-yaml", buf.Bytes())
}

// HandleImportMap creates a new map from a YAML document in the body,
// activating it when the document asks for it
func (h *MapHandlerImpl) HandleImportMap(c echo.Context) error {
	ctx := c.Request().Context()
	roomID := c.Param("roomId")

	doc, err := boundarymap.ParseDocument(io.LimitReader(c.Request().Body, maxDocumentBytes))
	if err != nil {
		return FromDomainError(err)
	}
	draft, err := doc.Draft(roomID)
	if err != nil {
		return FromDomainError(err)
	}

	saved, err := h.maps.SaveMap(ctx, draft)
	if err != nil {
		return FromDomainError(err)
	}
	if doc.Activate && !saved.Active {
		if err := h.maps.ActivateMap(ctx, roomID, saved.ID); err != nil {
			return FromDomainError(err)
		}
		saved.Active = true
	}
	return c.JSON(http.StatusCreated, saved)
}

// Helper methods

// roomMap loads the :mapId map and checks it belongs to :roomId.
func (h *MapHandlerImpl) roomMap(c echo.Context) (*models.BoundaryMap, error) {
	m, err := h.maps.LoadMap(c.Request().Context(), c.Param("roomId"), c.Param("mapId"))
	if err != nil {
		return nil, FromDomainError(err)
	}
	return m, nil
}

func exportFileName(m *models.BoundaryMap) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, m.Name)
	if name == "" {
		name = m.ID
	}
	return name + ".yaml"
}

// Request types

type renameMapRequest struct {
	Name string `json:"name"`
}

func (r *renameMapRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return NewValidationError("name")
	}
	return nil
}
